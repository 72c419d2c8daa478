package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolcoop/models"
	"schoolcoop/utils"
)

// InstallmentScheduler периодически отмечает просроченные взносы по займам
type InstallmentScheduler struct {
	uow      UnitOfWork
	interval time.Duration
	lateFee  decimal.Decimal
	now      func() time.Time
}

// NewInstallmentScheduler создает новый экземпляр InstallmentScheduler.
// Нулевой lateFee отключает начисление штрафов.
func NewInstallmentScheduler(db *gorm.DB, interval time.Duration, lateFee decimal.Decimal) *InstallmentScheduler {
	return &InstallmentScheduler{
		uow:      NewUnitOfWork(db),
		interval: interval,
		lateFee:  lateFee,
		now:      time.Now,
	}
}

// Start запускает обработку просроченных взносов до отмены ctx
func (s *InstallmentScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				utils.LogInfo("installment scheduler stopped")
				return
			case <-ticker.C:
				if _, err := s.ProcessOverdue(ctx); err != nil {
					utils.LogError("Ошибка при обработке просроченных взносов: %v", err)
				}
			}
		}
	}()
}

// ProcessOverdue отмечает просроченными запланированные взносы со сроком в прошлом,
// переводит займы в статус OVERDUE и начисляет штраф. Возвращает число обработанных взносов.
func (s *InstallmentScheduler) ProcessOverdue(ctx context.Context) (int, error) {
	startTime := time.Now()
	now := s.now()
	processed := 0

	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		// Получаем все взносы, срок которых прошел
		var installments []models.LoanInstallment
		if err := tx.Where("due_date < ? AND status = ?", now, models.InstallmentStatusPlanned).
			Order("due_date ASC, id ASC").
			Find(&installments).Error; err != nil {
			return fmt.Errorf("ошибка при получении взносов: %w", err)
		}

		loans := make(map[uint]*models.Loan)
		for _, installment := range installments {
			loan, ok := loans[installment.LoanID]
			if !ok {
				loan = &models.Loan{}
				if err := tx.First(loan, installment.LoanID).Error; err != nil {
					return wrapLookup(err, "заем", installment.LoanID)
				}
				loans[installment.LoanID] = loan
			}

			if err := s.markOverdue(tx, loan, installment, now); err != nil {
				return err
			}
			processed++
		}
		return nil
	})

	for i := 0; err == nil && i < processed; i++ {
		utils.GetMetrics().RecordOperation(utils.OpInstallmentOverdue, nil)
	}
	utils.LogOperation(fmt.Sprintf("process overdue installments (%d)", processed), startTime, err)
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// markOverdue обрабатывает один просроченный взнос
func (s *InstallmentScheduler) markOverdue(tx *gorm.DB, loan *models.Loan, installment models.LoanInstallment, now time.Time) error {
	updates := map[string]interface{}{"status": models.InstallmentStatusOverdue}

	if s.lateFee.IsPositive() && !installment.LateFeeApplied {
		description := fmt.Sprintf("Late fee: loan #%d installment due %s", loan.ID, installment.DueDate.Format("2006-01-02"))
		if _, err := applyCharge(tx, loan.MemberID, nil, description, s.lateFee, now); err != nil {
			return err
		}
		updates["late_fee_applied"] = true
	}

	if err := tx.Model(&installment).Updates(updates).Error; err != nil {
		return fmt.Errorf("ошибка при обновлении просроченного взноса: %w", err)
	}

	// Обновляем статус займа
	if loan.Status == models.LoanStatusActive {
		if err := tx.Model(loan).Update("status", models.LoanStatusOverdue).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении статуса займа: %w", err)
		}
		loan.Status = models.LoanStatusOverdue
	}
	return nil
}
