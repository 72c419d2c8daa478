package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolcoop/models"
	"schoolcoop/utils"
)

// RegisterMemberDTO представляет данные для регистрации участника
type RegisterMemberDTO struct {
	SchoolID              uint                     `json:"schoolId" validate:"required"`
	FirstName             string                   `json:"firstName" validate:"required,min=2,max=50"`
	LastName              string                   `json:"lastName" validate:"required,min=2,max=50"`
	Email                 string                   `json:"email" validate:"omitempty,email,max=100"`
	Phone                 string                   `json:"phone" validate:"max=30"`
	JoinDate              time.Time                `json:"joinDate" validate:"required"`
	ExpectedMonthlySaving decimal.NullDecimal      `json:"expectedMonthlySaving"`
	Address               *models.Address          `json:"address"`
	EmergencyContact      *models.EmergencyContact `json:"emergencyContact"`
}

// MemberFilter ограничивает список участников
type MemberFilter struct {
	SchoolID uint
	Status   models.MemberStatus
}

// CommitmentDTO - обязательство по одному типу паев
type CommitmentDTO struct {
	ShareTypeID            uint            `json:"shareTypeId" validate:"required"`
	MonthlyCommittedAmount decimal.Decimal `json:"monthlyCommittedAmount" validate:"gte=0"`
}

// SetCommitmentsDTO заменяет все обязательства участника
type SetCommitmentsDTO struct {
	Commitments []CommitmentDTO `json:"commitments" validate:"dive"`
}

// CloseAccountDTO представляет данные для закрытия счета
type CloseAccountDTO struct {
	Channel        models.DepositChannel `json:"channel" validate:"required,oneof=Cash Bank Wallet"`
	SourceName     string                `json:"sourceName" validate:"max=100"`
	TransactionRef string                `json:"transactionRef" validate:"max=100"`
	EvidenceRef    string                `json:"evidenceRef" validate:"max=255"`
	Notes          string                `json:"notes" validate:"max=255"`
}

// ClosureResult - расчет выплаты при закрытии счета
type ClosureResult struct {
	MemberID           uint            `json:"memberId"`
	ClosedAt           time.Time       `json:"closedAt"`
	SavingsBalance     decimal.Decimal `json:"savingsBalance"`
	ShareValue         decimal.Decimal `json:"shareValue"`
	ChargesSettled     decimal.Decimal `json:"chargesSettled"`
	Payout             decimal.Decimal `json:"payout"`
	WithdrawalSavingID *uint           `json:"withdrawalSavingId,omitempty"`
	RedeemedShares     int64           `json:"redeemedShares"`
	SettledCharges     int64           `json:"settledCharges"`
}

// MemberService предоставляет методы для работы с участниками
type MemberService struct {
	db        *gorm.DB
	uow       UnitOfWork
	validator *validator.Validate
	notifier  Notifier
	now       func() time.Time
}

// NewMemberService создает новый экземпляр MemberService
func NewMemberService(db *gorm.DB, notifier Notifier) *MemberService {
	return &MemberService{
		db:        db,
		uow:       NewUnitOfWork(db),
		validator: NewValidator(),
		notifier:  notifier,
		now:       time.Now,
	}
}

// Register регистрирует нового участника
func (s *MemberService) Register(ctx context.Context, dto RegisterMemberDTO) (*models.Member, error) {
	dto.FirstName = strings.TrimSpace(dto.FirstName)
	dto.LastName = strings.TrimSpace(dto.LastName)
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}
	if dto.ExpectedMonthlySaving.Valid && dto.ExpectedMonthlySaving.Decimal.IsNegative() {
		return nil, fmt.Errorf("%w: поле ExpectedMonthlySaving не может быть отрицательным", ErrValidation)
	}

	db := s.db.WithContext(ctx)
	var school models.School
	if err := db.First(&school, dto.SchoolID).Error; err != nil {
		return nil, wrapLookup(err, "школа", dto.SchoolID)
	}

	member := &models.Member{
		SchoolID:              dto.SchoolID,
		FirstName:             dto.FirstName,
		LastName:              dto.LastName,
		Email:                 strings.TrimSpace(dto.Email),
		Phone:                 dto.Phone,
		JoinDate:              calendarDate(dto.JoinDate),
		Status:                models.MemberStatusActive,
		SavingsBalance:        decimal.Zero,
		ExpectedMonthlySaving: dto.ExpectedMonthlySaving,
	}
	if dto.Address != nil && dto.Address.IsPresent() {
		member.Address = *dto.Address
	}
	if dto.EmergencyContact != nil && dto.EmergencyContact.IsPresent() {
		member.EmergencyContact = *dto.EmergencyContact
	}

	if err := db.Create(member).Error; err != nil {
		return nil, fmt.Errorf("ошибка при регистрации участника: %w", err)
	}
	member.School = &school

	utils.LogInfo("member %d registered in school %d", member.ID, member.SchoolID)
	return member, nil
}

// Get возвращает участника с обязательствами по паям
func (s *MemberService) Get(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).
		Preload("School").
		Preload("ShareCommitments.ShareType").
		First(&member, id).Error; err != nil {
		return nil, wrapLookup(err, "участник", id)
	}
	return &member, nil
}

// List возвращает участников по фильтру
func (s *MemberService) List(ctx context.Context, filter MemberFilter) ([]models.Member, error) {
	query := s.db.WithContext(ctx).Preload("School").Order("last_name ASC, first_name ASC, id ASC")
	if filter.SchoolID != 0 {
		query = query.Where("school_id = ?", filter.SchoolID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var members []models.Member
	if err := query.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении участников: %w", err)
	}
	return members, nil
}

// SetCommitments заменяет обязательства участника. Каждый тип паев должен существовать.
func (s *MemberService) SetCommitments(ctx context.Context, memberID uint, dto SetCommitmentsDTO) ([]models.ShareCommitment, error) {
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(dto.Commitments))
	for _, c := range dto.Commitments {
		if seen[c.ShareTypeID] {
			return nil, fmt.Errorf("%w: тип пая #%d указан дважды", ErrValidation, c.ShareTypeID)
		}
		seen[c.ShareTypeID] = true
	}

	var commitments []models.ShareCommitment
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if _, err := activeMember(tx, memberID); err != nil {
			return err
		}

		for _, c := range dto.Commitments {
			var shareType models.ShareType
			if err := tx.First(&shareType, c.ShareTypeID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: тип пая #%d не найден", ErrValidation, c.ShareTypeID)
				}
				return fmt.Errorf("ошибка при получении типа пая: %w", err)
			}
		}

		if err := tx.Where("member_id = ?", memberID).Delete(&models.ShareCommitment{}).Error; err != nil {
			return fmt.Errorf("ошибка при удалении обязательств: %w", err)
		}

		for _, c := range dto.Commitments {
			commitment := models.ShareCommitment{
				MemberID:               memberID,
				ShareTypeID:            c.ShareTypeID,
				MonthlyCommittedAmount: decimal.NewNullDecimal(c.MonthlyCommittedAmount),
			}
			if err := tx.Create(&commitment).Error; err != nil {
				return fmt.Errorf("ошибка при создании обязательства: %w", err)
			}
			commitments = append(commitments, commitment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commitments, nil
}

// Close закрывает счет участника и рассчитывает выплату: сбережения плюс
// стоимость одобренных паев минус неоплаченные сборы, не меньше нуля.
func (s *MemberService) Close(ctx context.Context, memberID uint, dto CloseAccountDTO) (*ClosureResult, error) {
	startTime := time.Now()
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}

	now := s.now()
	deposit := models.DepositDetails{
		Channel:        dto.Channel,
		SourceName:     dto.SourceName,
		TransactionRef: dto.TransactionRef,
		EvidenceRef:    dto.EvidenceRef,
	}
	result := &ClosureResult{MemberID: memberID, ClosedAt: now}
	var memberEmail string

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		member, err := activeMember(tx, memberID)
		if err != nil {
			return err
		}
		memberEmail = member.Email

		var openLoans int64
		if err := tx.Model(&models.Loan{}).
			Where("member_id = ? AND status IN ?", memberID, []models.LoanStatus{models.LoanStatusActive, models.LoanStatusOverdue}).
			Count(&openLoans).Error; err != nil {
			return fmt.Errorf("ошибка при проверке займов: %w", err)
		}
		if openLoans > 0 {
			return ErrActiveLoanExists
		}

		var shares []models.Share
		if err := tx.Where("member_id = ? AND status = ?", memberID, models.ShareStatusApproved).
			Find(&shares).Error; err != nil {
			return fmt.Errorf("ошибка при получении паев: %w", err)
		}
		shareValue := decimal.Zero
		for _, share := range shares {
			shareValue = shareValue.Add(share.AllocatedValue())
		}

		var charges []models.AppliedServiceCharge
		if err := tx.Where("member_id = ? AND status = ?", memberID, models.ChargeStatusPending).
			Find(&charges).Error; err != nil {
			return fmt.Errorf("ошибка при получении сборов: %w", err)
		}
		chargesTotal := decimal.Zero
		for _, charge := range charges {
			chargesTotal = chargesTotal.Add(charge.AmountCharged)
		}

		result.SavingsBalance = member.SavingsBalance
		result.ShareValue = shareValue
		result.ChargesSettled = chargesTotal
		result.Payout = nonNegative(member.SavingsBalance.Add(shareValue).Sub(chargesTotal))

		if member.SavingsBalance.IsPositive() {
			withdrawal := models.Saving{
				MemberID:   memberID,
				MemberName: member.FullName(),
				Amount:     member.SavingsBalance,
				Date:       now,
				Type:       models.SavingTypeWithdrawal,
				Status:     models.SavingStatusApproved,
				Notes:      "Account closure",
				Deposit:    deposit,
				ApprovedAt: &now,
			}
			if err := tx.Create(&withdrawal).Error; err != nil {
				return fmt.Errorf("ошибка при создании выплаты сбережений: %w", err)
			}
			result.WithdrawalSavingID = &withdrawal.ID
		}

		// Незавершенные операции по сбережениям закрытого счета больше не проводятся
		if err := tx.Model(&models.Saving{}).
			Where("member_id = ? AND status = ?", memberID, models.SavingStatusPending).
			Updates(map[string]interface{}{"status": models.SavingStatusRejected, "notes": "Account closed"}).Error; err != nil {
			return fmt.Errorf("ошибка при отклонении операций: %w", err)
		}

		redeemed := tx.Model(&models.Share{}).
			Where("member_id = ? AND status = ?", memberID, models.ShareStatusApproved).
			Update("status", models.ShareStatusRedeemed)
		if redeemed.Error != nil {
			return fmt.Errorf("ошибка при выкупе паев: %w", redeemed.Error)
		}
		result.RedeemedShares = redeemed.RowsAffected

		settled := tx.Model(&models.AppliedServiceCharge{}).
			Where("member_id = ? AND status = ?", memberID, models.ChargeStatusPending).
			Updates(map[string]interface{}{
				"status":  models.ChargeStatusPaid,
				"paid_at": now,
				"notes":   fmt.Sprintf("Settled on account closure %s", now.Format("2006-01-02")),
			})
		if settled.Error != nil {
			return fmt.Errorf("ошибка при погашении сборов: %w", settled.Error)
		}
		result.SettledCharges = settled.RowsAffected

		closure := models.MemberClosure{
			MemberID:           memberID,
			ClosedAt:           now,
			SavingsBalance:     result.SavingsBalance,
			ShareValue:         result.ShareValue,
			ChargesSettled:     result.ChargesSettled,
			Payout:             result.Payout,
			WithdrawalSavingID: result.WithdrawalSavingID,
			Deposit:            deposit,
			Notes:              dto.Notes,
		}
		if err := tx.Create(&closure).Error; err != nil {
			return fmt.Errorf("ошибка при сохранении закрытия счета: %w", err)
		}

		if err := tx.Model(member).Updates(map[string]interface{}{
			"status":          models.MemberStatusInactive,
			"savings_balance": decimal.Zero,
		}).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении участника: %w", err)
		}
		return nil
	})

	utils.GetMetrics().RecordOperation(utils.OpAccountClosed, err)
	utils.LogOperation(fmt.Sprintf("close account member=%d", memberID), startTime, err)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil && memberEmail != "" {
		notify("account closed", func() error {
			return s.notifier.SendAccountClosedNotification(memberEmail, *result)
		})
	}
	return result, nil
}

// activeMember загружает участника и проверяет, что он активен
func activeMember(tx *gorm.DB, memberID uint) (*models.Member, error) {
	var member models.Member
	if err := tx.First(&member, memberID).Error; err != nil {
		return nil, wrapLookup(err, "участник", memberID)
	}
	if !member.IsActive() {
		return nil, fmt.Errorf("участник #%d: %w", memberID, ErrMemberInactive)
	}
	return &member, nil
}
