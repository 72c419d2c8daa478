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
)

// CreateServiceChargeDTO представляет данные записи каталога сборов
type CreateServiceChargeDTO struct {
	Name        string          `json:"name" validate:"required,min=2,max=100"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"max=255"`
}

// ApplyChargeDTO начисляет сбор списку участников
type ApplyChargeDTO struct {
	MemberIDs   []uint    `json:"memberIds" validate:"required,min=1,dive,required"`
	DateApplied time.Time `json:"dateApplied"`
}

// ServiceChargeService предоставляет методы для работы со сборами
type ServiceChargeService struct {
	db        *gorm.DB
	uow       UnitOfWork
	validator *validator.Validate
	now       func() time.Time
}

// NewServiceChargeService создает новый экземпляр ServiceChargeService
func NewServiceChargeService(db *gorm.DB) *ServiceChargeService {
	return &ServiceChargeService{
		db:        db,
		uow:       NewUnitOfWork(db),
		validator: NewValidator(),
		now:       time.Now,
	}
}

// Create добавляет сбор в каталог
func (s *ServiceChargeService) Create(ctx context.Context, dto CreateServiceChargeDTO) (*models.ServiceCharge, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var existing models.ServiceCharge
	err := db.Where("LOWER(name) = LOWER(?)", dto.Name).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("сбор %q: %w", dto.Name, ErrDuplicate)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ошибка при поиске сбора: %w", err)
	}

	charge := &models.ServiceCharge{Name: dto.Name, Amount: dto.Amount, Description: dto.Description}
	if err := db.Create(charge).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании сбора: %w", err)
	}
	return charge, nil
}

// List возвращает каталог сборов
func (s *ServiceChargeService) List(ctx context.Context) ([]models.ServiceCharge, error) {
	var charges []models.ServiceCharge
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&charges).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении сборов: %w", err)
	}
	return charges, nil
}

// Apply начисляет сбор каждому участнику из списка с суммой на дату начисления
func (s *ServiceChargeService) Apply(ctx context.Context, chargeID uint, dto ApplyChargeDTO) ([]models.AppliedServiceCharge, error) {
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}
	if dto.DateApplied.IsZero() {
		dto.DateApplied = s.now()
	}

	var applied []models.AppliedServiceCharge
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		var charge models.ServiceCharge
		if err := tx.First(&charge, chargeID).Error; err != nil {
			return wrapLookup(err, "сбор", chargeID)
		}

		for _, memberID := range dto.MemberIDs {
			if _, err := activeMember(tx, memberID); err != nil {
				return err
			}
			item, err := applyCharge(tx, memberID, &charge.ID, charge.Name, charge.Amount, dto.DateApplied)
			if err != nil {
				return err
			}
			applied = append(applied, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// PendingByMember возвращает неоплаченные сборы участника, старые первыми
func (s *ServiceChargeService) PendingByMember(ctx context.Context, memberID uint) ([]models.AppliedServiceCharge, error) {
	var charges []models.AppliedServiceCharge
	if err := s.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, models.ChargeStatusPending).
		Order("date_applied ASC, id ASC").
		Find(&charges).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении сборов: %w", err)
	}
	return charges, nil
}

// applyCharge создает начисленный сбор; используется также планировщиком для штрафов
func applyCharge(tx *gorm.DB, memberID uint, chargeID *uint, description string, amount decimal.Decimal, applied time.Time) (*models.AppliedServiceCharge, error) {
	item := &models.AppliedServiceCharge{
		MemberID:        memberID,
		ServiceChargeID: chargeID,
		Description:     description,
		AmountCharged:   amount,
		Status:          models.ChargeStatusPending,
		DateApplied:     applied,
	}
	if err := tx.Create(item).Error; err != nil {
		return nil, fmt.Errorf("ошибка при начислении сбора участнику #%d: %w", memberID, err)
	}
	return item, nil
}
