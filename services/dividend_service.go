package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolcoop/models"
	"schoolcoop/utils"
)

// DistributeDividendsDTO представляет данные распределения дивидендов
type DistributeDividendsDTO struct {
	Year      int             `json:"year" validate:"required,gte=2000,lte=2100"`
	TotalPool decimal.Decimal `json:"totalPool" validate:"gt=0"`
	AsOf      time.Time       `json:"asOf"` // по умолчанию 31 декабря указанного года
}

// DividendService распределяет дивиденды пропорционально стоимости паев
type DividendService struct {
	db        *gorm.DB
	uow       UnitOfWork
	validator *validator.Validate
}

// NewDividendService создает новый экземпляр DividendService
func NewDividendService(db *gorm.DB) *DividendService {
	return &DividendService{
		db:        db,
		uow:       NewUnitOfWork(db),
		validator: NewValidator(),
	}
}

// Distribute делит фонд между активными участниками по стоимости одобренных паев
// на дату AsOf. Доли округляются вниз до копеек, остаток сохраняется в распределении.
// Каждая доля зачисляется ожидающим одобрения взносом в сбережения.
func (s *DividendService) Distribute(ctx context.Context, dto DistributeDividendsDTO) (*models.DividendDistribution, error) {
	startTime := time.Now()
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}
	if dto.AsOf.IsZero() {
		dto.AsOf = time.Date(dto.Year, time.December, 31, 23, 59, 59, 0, time.UTC)
	}

	var distribution models.DividendDistribution
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.DividendDistribution{}).Where("year = ?", dto.Year).Count(&existing).Error; err != nil {
			return fmt.Errorf("ошибка при проверке распределений: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("%d: %w", dto.Year, ErrDividendAlreadyDistributed)
		}

		var members []models.Member
		if err := tx.Where("status = ?", models.MemberStatusActive).Find(&members).Error; err != nil {
			return fmt.Errorf("ошибка при получении участников: %w", err)
		}
		byID := make(map[uint]models.Member, len(members))
		ids := make([]uint, 0, len(members))
		for _, m := range members {
			byID[m.ID] = m
			ids = append(ids, m.ID)
		}

		shareValue := make(map[uint]decimal.Decimal)
		total := decimal.Zero
		if len(ids) > 0 {
			var shares []models.Share
			if err := tx.Where("member_id IN ? AND status = ? AND allocation_date <= ?",
				ids, models.ShareStatusApproved, dto.AsOf).
				Find(&shares).Error; err != nil {
				return fmt.Errorf("ошибка при получении паев: %w", err)
			}
			for _, share := range shares {
				value := share.AllocatedValue()
				shareValue[share.MemberID] = shareValue[share.MemberID].Add(value)
				total = total.Add(value)
			}
		}
		if !total.IsPositive() {
			return ErrNoShareValue
		}

		holders := make([]uint, 0, len(shareValue))
		for id := range shareValue {
			holders = append(holders, id)
		}
		sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })

		note := fmt.Sprintf("Dividend %d", dto.Year)
		distributed := decimal.Zero
		var payouts []models.DividendPayout
		for _, memberID := range holders {
			value := shareValue[memberID]
			amount := dto.TotalPool.Mul(value).Div(total).RoundFloor(2)
			if !amount.IsPositive() {
				continue
			}

			member := byID[memberID]
			saving := models.Saving{
				MemberID:   memberID,
				MemberName: member.FullName(),
				Amount:     amount,
				Date:       dto.AsOf,
				Type:       models.SavingTypeDeposit,
				Status:     models.SavingStatusPending,
				Notes:      note,
			}
			if err := tx.Create(&saving).Error; err != nil {
				return fmt.Errorf("ошибка при зачислении дивидендов участнику #%d: %w", memberID, err)
			}

			distributed = distributed.Add(amount)
			payouts = append(payouts, models.DividendPayout{
				MemberID:   memberID,
				ShareValue: value,
				Amount:     amount,
				SavingID:   saving.ID,
			})
		}

		distribution = models.DividendDistribution{
			Year:              dto.Year,
			TotalPool:         dto.TotalPool,
			TotalShareValue:   total,
			DistributedAmount: distributed,
			Remainder:         dto.TotalPool.Sub(distributed),
			AsOf:              dto.AsOf,
			Payouts:           payouts,
		}
		if err := tx.Create(&distribution).Error; err != nil {
			return fmt.Errorf("ошибка при сохранении распределения: %w", err)
		}
		return nil
	})

	utils.GetMetrics().RecordOperation(utils.OpDividendsPaid, err)
	utils.LogOperation(fmt.Sprintf("distribute dividends %d", dto.Year), startTime, err)
	if err != nil {
		return nil, err
	}
	return &distribution, nil
}

// List возвращает все распределения с долями участников
func (s *DividendService) List(ctx context.Context) ([]models.DividendDistribution, error) {
	var distributions []models.DividendDistribution
	if err := s.db.WithContext(ctx).Preload("Payouts").Order("year DESC").Find(&distributions).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении распределений: %w", err)
	}
	return distributions, nil
}
