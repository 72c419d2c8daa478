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

// CreateShareTypeDTO представляет данные для создания типа паев
type CreateShareTypeDTO struct {
	Name          string          `json:"name" validate:"required,min=2,max=100"`
	ValuePerShare decimal.Decimal `json:"valuePerShare" validate:"gt=0"`
	Description   string          `json:"description" validate:"max=255"`
}

// AllocateSharesDTO представляет данные для распределения паев участнику
type AllocateSharesDTO struct {
	ShareTypeID    uint                  `json:"shareTypeId" validate:"required"`
	NumberOfShares int64                 `json:"numberOfShares" validate:"gt=0"`
	AllocationDate time.Time             `json:"allocationDate"`
	Channel        models.DepositChannel `json:"channel" validate:"required,oneof=Cash Bank Wallet"`
	SourceName     string                `json:"sourceName" validate:"max=100"`
	TransactionRef string                `json:"transactionRef" validate:"max=100"`
	EvidenceRef    string                `json:"evidenceRef" validate:"max=255"`
	Notes          string                `json:"notes" validate:"max=255"`
	RecordedBy     uint                  `json:"-"` // заполняется из токена сотрудника
}

// ShareService предоставляет методы для работы с паями
type ShareService struct {
	db        *gorm.DB
	uow       UnitOfWork
	validator *validator.Validate
	now       func() time.Time
}

// NewShareService создает новый экземпляр ShareService
func NewShareService(db *gorm.DB) *ShareService {
	return &ShareService{
		db:        db,
		uow:       NewUnitOfWork(db),
		validator: NewValidator(),
		now:       time.Now,
	}
}

// CreateType добавляет тип паев в каталог
func (s *ShareService) CreateType(ctx context.Context, dto CreateShareTypeDTO) (*models.ShareType, error) {
	dto.Name = strings.TrimSpace(dto.Name)
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var existing models.ShareType
	err := db.Where("LOWER(name) = LOWER(?)", dto.Name).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("тип пая %q: %w", dto.Name, ErrDuplicate)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ошибка при поиске типа пая: %w", err)
	}

	shareType := &models.ShareType{
		Name:          dto.Name,
		ValuePerShare: dto.ValuePerShare,
		Description:   dto.Description,
	}
	if err := db.Create(shareType).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании типа пая: %w", err)
	}
	return shareType, nil
}

// ListTypes возвращает каталог типов паев
func (s *ShareService) ListTypes(ctx context.Context) ([]models.ShareType, error) {
	var shareTypes []models.ShareType
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&shareTypes).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении типов паев: %w", err)
	}
	return shareTypes, nil
}

// Allocate создает распределение паев в статусе pending по текущей стоимости пая
func (s *ShareService) Allocate(ctx context.Context, memberID uint, dto AllocateSharesDTO) (*models.Share, error) {
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}
	if dto.AllocationDate.IsZero() {
		dto.AllocationDate = s.now()
	}

	var share models.Share
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		member, err := activeMember(tx, memberID)
		if err != nil {
			return err
		}

		var shareType models.ShareType
		if err := tx.First(&shareType, dto.ShareTypeID).Error; err != nil {
			return wrapLookup(err, "тип пая", dto.ShareTypeID)
		}

		share = models.Share{
			MemberID:                memberID,
			MemberName:              member.FullName(),
			ShareTypeID:             shareType.ID,
			NumberOfShares:          dto.NumberOfShares,
			ValuePerShare:           shareType.ValuePerShare,
			TotalValueForAllocation: decimal.NewNullDecimal(shareType.ValuePerShare.Mul(decimal.NewFromInt(dto.NumberOfShares))),
			Status:                  models.ShareStatusPending,
			AllocationDate:          dto.AllocationDate,
			Notes:                   dto.Notes,
			RecordedBy:              adminRef(dto.RecordedBy),
			Deposit: models.DepositDetails{
				Channel:        dto.Channel,
				SourceName:     dto.SourceName,
				TransactionRef: dto.TransactionRef,
				EvidenceRef:    dto.EvidenceRef,
			},
		}
		if err := tx.Create(&share).Error; err != nil {
			return fmt.Errorf("ошибка при распределении паев: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// Approve одобряет распределение: только одобренные паи засчитываются в обязательства
func (s *ShareService) Approve(ctx context.Context, shareID, adminID uint) (*models.Share, error) {
	startTime := time.Now()
	var share models.Share

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&share, shareID).Error; err != nil {
			return wrapLookup(err, "распределение паев", shareID)
		}
		if share.Status != models.ShareStatusPending {
			return fmt.Errorf("распределение #%d в статусе %s: %w", shareID, share.Status, ErrInvalidStatus)
		}
		if _, err := activeMember(tx, share.MemberID); err != nil {
			return err
		}

		now := s.now()
		share.Status = models.ShareStatusApproved
		share.ApprovedAt = &now
		share.ApprovedBy = adminRef(adminID)
		if err := tx.Save(&share).Error; err != nil {
			return fmt.Errorf("ошибка при одобрении паев: %w", err)
		}
		return nil
	})

	utils.GetMetrics().RecordOperation(utils.OpShareApproved, err)
	utils.LogOperation(fmt.Sprintf("approve share %d", shareID), startTime, err)
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// ListByMember возвращает распределения паев участника
func (s *ShareService) ListByMember(ctx context.Context, memberID uint) ([]models.Share, error) {
	var shares []models.Share
	if err := s.db.WithContext(ctx).
		Preload("ShareType").
		Where("member_id = ?", memberID).
		Order("allocation_date DESC, id DESC").
		Find(&shares).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении паев: %w", err)
	}
	return shares, nil
}
