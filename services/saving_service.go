package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolcoop/models"
	"schoolcoop/utils"
)

// RecordSavingDTO представляет данные операции по сбережениям
type RecordSavingDTO struct {
	Amount         decimal.Decimal       `json:"amount" validate:"gt=0"`
	Type           models.SavingType     `json:"type" validate:"required,oneof=deposit withdrawal"`
	Date           time.Time             `json:"date"`
	Channel        models.DepositChannel `json:"channel" validate:"required,oneof=Cash Bank Wallet"`
	SourceName     string                `json:"sourceName" validate:"max=100"`
	TransactionRef string                `json:"transactionRef" validate:"max=100"`
	EvidenceRef    string                `json:"evidenceRef" validate:"max=255"`
	Notes          string                `json:"notes" validate:"max=255"`
	RecordedBy     uint                  `json:"-"` // заполняется из токена сотрудника
}

// SavingService предоставляет методы для работы со сбережениями
type SavingService struct {
	db        *gorm.DB
	uow       UnitOfWork
	validator *validator.Validate
	now       func() time.Time
}

// NewSavingService создает новый экземпляр SavingService
func NewSavingService(db *gorm.DB) *SavingService {
	return &SavingService{
		db:        db,
		uow:       NewUnitOfWork(db),
		validator: NewValidator(),
		now:       time.Now,
	}
}

// Record создает операцию в статусе pending. Баланс меняется только при одобрении.
func (s *SavingService) Record(ctx context.Context, memberID uint, dto RecordSavingDTO) (*models.Saving, error) {
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}
	if dto.Date.IsZero() {
		dto.Date = s.now()
	}

	db := s.db.WithContext(ctx)
	member, err := activeMember(db, memberID)
	if err != nil {
		return nil, err
	}

	saving := &models.Saving{
		MemberID:   memberID,
		MemberName: member.FullName(),
		Amount:     dto.Amount,
		Date:       dto.Date,
		Type:       dto.Type,
		Status:     models.SavingStatusPending,
		Notes:      dto.Notes,
		RecordedBy: adminRef(dto.RecordedBy),
		Deposit: models.DepositDetails{
			Channel:        dto.Channel,
			SourceName:     dto.SourceName,
			TransactionRef: dto.TransactionRef,
			EvidenceRef:    dto.EvidenceRef,
		},
	}
	if err := db.Create(saving).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании операции: %w", err)
	}
	return saving, nil
}

// Approve проводит операцию: взнос увеличивает баланс, снятие уменьшает.
// adminID - одобривший сотрудник.
func (s *SavingService) Approve(ctx context.Context, savingID, adminID uint) (*models.Saving, error) {
	startTime := time.Now()
	var saving models.Saving

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&saving, savingID).Error; err != nil {
			return wrapLookup(err, "операция", savingID)
		}
		if saving.Status != models.SavingStatusPending {
			return fmt.Errorf("операция #%d в статусе %s: %w", savingID, saving.Status, ErrInvalidStatus)
		}

		member, err := activeMember(tx, saving.MemberID)
		if err != nil {
			return err
		}

		balance := member.SavingsBalance
		switch saving.Type {
		case models.SavingTypeDeposit:
			balance = balance.Add(saving.Amount)
		case models.SavingTypeWithdrawal:
			if balance.LessThan(saving.Amount) {
				return fmt.Errorf("баланс %s, запрошено %s: %w",
					balance.StringFixed(2), saving.Amount.StringFixed(2), ErrInsufficientSavings)
			}
			balance = balance.Sub(saving.Amount)
		default:
			return fmt.Errorf("%w: неизвестный тип операции %s", ErrValidation, saving.Type)
		}

		if err := tx.Model(member).Update("savings_balance", balance).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении баланса: %w", err)
		}

		now := s.now()
		saving.Status = models.SavingStatusApproved
		saving.ApprovedAt = &now
		saving.ApprovedBy = adminRef(adminID)
		if err := tx.Save(&saving).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении операции: %w", err)
		}
		return nil
	})

	utils.GetMetrics().RecordOperation(utils.OpSavingApproved, err)
	utils.LogOperation(fmt.Sprintf("approve saving %d", savingID), startTime, err)
	if err != nil {
		return nil, err
	}
	return &saving, nil
}

// Reject отклоняет операцию в статусе pending
func (s *SavingService) Reject(ctx context.Context, savingID uint, reason string) (*models.Saving, error) {
	var saving models.Saving
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&saving, savingID).Error; err != nil {
			return wrapLookup(err, "операция", savingID)
		}
		if saving.Status != models.SavingStatusPending {
			return fmt.Errorf("операция #%d в статусе %s: %w", savingID, saving.Status, ErrInvalidStatus)
		}

		saving.Status = models.SavingStatusRejected
		if reason != "" {
			saving.Notes = reason
		}
		if err := tx.Save(&saving).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении операции: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saving, nil
}

// ListByMember возвращает операции участника, новые первыми
func (s *SavingService) ListByMember(ctx context.Context, memberID uint) ([]models.Saving, error) {
	var savings []models.Saving
	if err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("date DESC, id DESC").
		Find(&savings).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении операций: %w", err)
	}
	return savings, nil
}
