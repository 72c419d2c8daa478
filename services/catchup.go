package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolcoop/models"
	"schoolcoop/utils"
)

// CatchUpNote - примечание на всех записях, созданных погашением задолженности
const CatchUpNote = "Overdue catch-up payment"

// CatchUpRequest - один платеж участника, разнесенный по сбережениям, паям и сборам
type CatchUpRequest struct {
	MemberID            uint                     `json:"memberId" validate:"required"`
	MemberName          string                   `json:"memberName"`
	SavingsAmount       decimal.Decimal          `json:"savingsAmount"`
	ShareAmounts        map[uint]decimal.Decimal `json:"shareAmounts"` // id типа пая -> сумма
	ServiceChargeAmount decimal.Decimal          `json:"serviceChargeAmount"`
	PaymentDate         time.Time                `json:"paymentDate" validate:"required"`
	Channel             models.DepositChannel    `json:"channel" validate:"required,oneof=Cash Bank Wallet"`
	SourceName          string                   `json:"sourceName" validate:"max=100"`
	TransactionRef      string                   `json:"transactionRef" validate:"max=100"`
	EvidenceRef         string                   `json:"evidenceRef" validate:"max=255"`
	RecordedBy          uint                     `json:"-"` // сотрудник из токена
}

func (r CatchUpRequest) deposit() models.DepositDetails {
	return models.DepositDetails{
		Channel:        r.Channel,
		SourceName:     r.SourceName,
		TransactionRef: r.TransactionRef,
		EvidenceRef:    r.EvidenceRef,
	}
}

// CatchUpResult - итог проведенного платежа по всем трем направлениям
type CatchUpResult struct {
	BatchRef    string                        `json:"batchRef"`
	MemberID    uint                          `json:"memberId"`
	MemberName  string                        `json:"memberName"`
	PaymentDate time.Time                     `json:"paymentDate"`
	RecordedBy  *uint                         `json:"recordedBy,omitempty"`
	Saving      *models.Saving                `json:"saving,omitempty"`
	Shares      []models.Share                `json:"shares"`
	PaidCharges []models.AppliedServiceCharge `json:"paidCharges"`
}

// CatchUpService проводит платежи в погашение задолженности
//
// Два одновременных платежа одного участника не блокируют друг друга:
// оба могут прочитать один и тот же набор неоплаченных сборов и отметить
// один сбор оплаченным дважды. Вызывающая сторона не должна отправлять
// параллельные платежи одного участника.
type CatchUpService struct {
	uow         UnitOfWork
	validator   *validator.Validate
	notifier    Notifier
	newBatchRef func() string
}

// NewCatchUpService создает новый экземпляр CatchUpService
func NewCatchUpService(uow UnitOfWork, notifier Notifier) *CatchUpService {
	return &CatchUpService{
		uow:         uow,
		validator:   NewValidator(),
		notifier:    notifier,
		newBatchRef: func() string { return uuid.NewString() },
	}
}

// Record проводит платеж одной транзакцией. Ошибка любой записи откатывает
// весь платеж и возвращается как ErrCatchUpFailed.
func (s *CatchUpService) Record(ctx context.Context, req CatchUpRequest) (*CatchUpResult, error) {
	startTime := time.Now()

	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	result := &CatchUpResult{
		BatchRef:    s.newBatchRef(),
		MemberID:    req.MemberID,
		MemberName:  req.MemberName,
		PaymentDate: req.PaymentDate,
		RecordedBy:  adminRef(req.RecordedBy),
		Shares:      []models.Share{},
		PaidCharges: []models.AppliedServiceCharge{},
	}
	var memberEmail string

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		var member models.Member
		if err := tx.First(&member, req.MemberID).Error; err != nil {
			return wrapLookup(err, "участник", req.MemberID)
		}
		if result.MemberName == "" {
			result.MemberName = member.FullName()
		}
		memberEmail = member.Email
		req.MemberName = result.MemberName

		saving, err := savingsLeg(tx, req, result.BatchRef)
		if err != nil {
			return err
		}
		result.Saving = saving

		shares, err := sharesLeg(tx, req, result.BatchRef)
		if err != nil {
			return err
		}
		result.Shares = append(result.Shares, shares...)

		charges, err := serviceChargeLeg(tx, req, result.BatchRef)
		if err != nil {
			return err
		}
		result.PaidCharges = append(result.PaidCharges, charges...)
		return nil
	})

	utils.GetMetrics().RecordOperation(utils.OpCatchUpPayment, err)
	utils.LogOperation(fmt.Sprintf("catch-up payment member=%d batch=%s", req.MemberID, result.BatchRef), startTime, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatchUpFailed, err)
	}

	if s.notifier != nil && memberEmail != "" {
		notify("catch-up receipt", func() error {
			return s.notifier.SendCatchUpReceipt(memberEmail, result)
		})
	}

	return result, nil
}

// savingsLeg создает ожидающий одобрения взнос в сбережения
func savingsLeg(tx *gorm.DB, req CatchUpRequest, batchRef string) (*models.Saving, error) {
	if !req.SavingsAmount.IsPositive() {
		return nil, nil
	}

	saving := &models.Saving{
		MemberID:   req.MemberID,
		MemberName: req.MemberName,
		Amount:     req.SavingsAmount,
		Date:       req.PaymentDate,
		Type:       models.SavingTypeDeposit,
		Status:     models.SavingStatusPending,
		Notes:      CatchUpNote,
		Deposit:    req.deposit(),
		BatchRef:   batchRef,
		RecordedBy: adminRef(req.RecordedBy),
	}
	if err := tx.Create(saving).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании взноса в сбережения: %w", err)
	}
	return saving, nil
}

// sharesLeg покупает целое число паев на каждую сумму. Остаток от деления
// не учитывается: contributionAmount хранит запрошенную сумму, а в задолженность
// засчитывается только стоимость купленных паев.
func sharesLeg(tx *gorm.DB, req CatchUpRequest, batchRef string) ([]models.Share, error) {
	shareTypeIDs := make([]uint, 0, len(req.ShareAmounts))
	for id, amount := range req.ShareAmounts {
		if amount.IsPositive() {
			shareTypeIDs = append(shareTypeIDs, id)
		}
	}
	sort.Slice(shareTypeIDs, func(i, j int) bool { return shareTypeIDs[i] < shareTypeIDs[j] })

	var shares []models.Share
	for _, shareTypeID := range shareTypeIDs {
		amount := req.ShareAmounts[shareTypeID]

		var shareType models.ShareType
		err := tx.Limit(1).Find(&shareType, shareTypeID).Error
		if err != nil {
			return nil, fmt.Errorf("ошибка при получении типа пая #%d: %w", shareTypeID, err)
		}
		if shareType.ID == 0 || !shareType.ValuePerShare.IsPositive() {
			utils.LogDebug("catch-up: share type %d is unknown or has no positive value, %s skipped",
				shareTypeID, amount.StringFixed(2))
			continue
		}

		count := amount.Div(shareType.ValuePerShare).Floor().IntPart()
		if count <= 0 {
			continue
		}

		share := models.Share{
			MemberID:                req.MemberID,
			MemberName:              req.MemberName,
			ShareTypeID:             shareType.ID,
			NumberOfShares:          count,
			ValuePerShare:           shareType.ValuePerShare,
			TotalValueForAllocation: decimal.NewNullDecimal(shareType.ValuePerShare.Mul(decimal.NewFromInt(count))),
			ContributionAmount:      decimal.NewNullDecimal(amount),
			Status:                  models.ShareStatusPending,
			AllocationDate:          req.PaymentDate,
			Notes:                   CatchUpNote,
			Deposit:                 req.deposit(),
			BatchRef:                batchRef,
			RecordedBy:              adminRef(req.RecordedBy),
		}
		if err := tx.Create(&share).Error; err != nil {
			return nil, fmt.Errorf("ошибка при создании паев типа #%d: %w", shareTypeID, err)
		}
		shares = append(shares, share)
	}
	return shares, nil
}

// serviceChargeLeg гасит неоплаченные сборы от старых к новым, только целиком.
// Обход останавливается на первом сборе, который не покрывается остатком.
func serviceChargeLeg(tx *gorm.DB, req CatchUpRequest, batchRef string) ([]models.AppliedServiceCharge, error) {
	if !req.ServiceChargeAmount.IsPositive() {
		return nil, nil
	}

	var pending []models.AppliedServiceCharge
	if err := tx.Where("member_id = ? AND status = ?", req.MemberID, models.ChargeStatusPending).
		Order("date_applied ASC, id ASC").
		Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении неоплаченных сборов: %w", err)
	}

	remaining := req.ServiceChargeAmount
	paidAt := req.PaymentDate
	var paid []models.AppliedServiceCharge
	for _, charge := range pending {
		if remaining.LessThan(charge.AmountCharged) {
			break
		}

		charge.Status = models.ChargeStatusPaid
		charge.PaidAt = &paidAt
		charge.Notes = fmt.Sprintf("Paid via overdue catch-up on %s", req.PaymentDate.Format("2006-01-02"))
		charge.BatchRef = batchRef
		if err := tx.Save(&charge).Error; err != nil {
			return nil, fmt.Errorf("ошибка при оплате сбора #%d: %w", charge.ID, err)
		}

		remaining = remaining.Sub(charge.AmountCharged)
		paid = append(paid, charge)
	}

	// TODO: решить, зачислять ли нераспределенный остаток участнику как кредит.
	// Сейчас он не сохраняется и не возвращается.
	if remaining.IsPositive() {
		utils.LogDebug("catch-up: member %d service charge remainder %s left unallocated",
			req.MemberID, remaining.StringFixed(2))
	}

	return paid, nil
}
