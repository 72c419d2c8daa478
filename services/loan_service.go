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

// IssueLoanDTO представляет данные для выдачи займа
type IssueLoanDTO struct {
	MemberID   uint            `json:"memberId" validate:"required"`
	Principal  decimal.Decimal `json:"principal" validate:"gt=0"`
	Rate       decimal.Decimal `json:"rate" validate:"gte=0,lte=100"` // годовая ставка в процентах
	TermMonths int             `json:"termMonths" validate:"required,gt=0,lte=120"`
	StartDate  time.Time       `json:"startDate"`
}

// RepayLoanDTO представляет данные платежа по займу
type RepayLoanDTO struct {
	Amount         decimal.Decimal       `json:"amount" validate:"gt=0"`
	Channel        models.DepositChannel `json:"channel" validate:"required,oneof=Cash Bank Wallet"`
	SourceName     string                `json:"sourceName" validate:"max=100"`
	TransactionRef string                `json:"transactionRef" validate:"max=100"`
	EvidenceRef    string                `json:"evidenceRef" validate:"max=255"`
}

// InstallmentDTO представляет взнос по графику
type InstallmentDTO struct {
	ID         uint            `json:"id"`
	DueDate    time.Time       `json:"dueDate"`
	Amount     decimal.Decimal `json:"amount"`
	InitAmount decimal.Decimal `json:"initAmount"`
	Status     string          `json:"status"`
	PaidDate   *time.Time      `json:"paidDate,omitempty"`
}

// LoanResponseDTO представляет ответ с данными займа
type LoanResponseDTO struct {
	ID                 uint             `json:"id"`
	MemberID           uint             `json:"memberId"`
	Principal          decimal.Decimal  `json:"principal"`
	Rate               decimal.Decimal  `json:"rate"`
	TermMonths         int              `json:"termMonths"`
	OutstandingBalance decimal.Decimal  `json:"outstandingBalance"`
	Status             string           `json:"status"`
	StartDate          time.Time        `json:"startDate"`
	EndDate            time.Time        `json:"endDate"`
	Installments       []InstallmentDTO `json:"installments"`
	NextInstallment    *InstallmentDTO  `json:"nextInstallment,omitempty"`
}

// RepaymentResult - итог платежа по займу
type RepaymentResult struct {
	Installment        InstallmentDTO       `json:"installment"`
	Repayment          models.LoanRepayment `json:"repayment"`
	LoanStatus         string               `json:"loanStatus"`
	OutstandingBalance decimal.Decimal      `json:"outstandingBalance"`
}

// LoanService предоставляет методы для работы с займами
type LoanService struct {
	db        *gorm.DB
	uow       UnitOfWork
	validator *validator.Validate
	notifier  Notifier
	now       func() time.Time
}

// NewLoanService создает новый экземпляр LoanService
func NewLoanService(db *gorm.DB, notifier Notifier) *LoanService {
	return &LoanService{
		db:        db,
		uow:       NewUnitOfWork(db),
		validator: NewValidator(),
		notifier:  notifier,
		now:       time.Now,
	}
}

// annuityPayment рассчитывает размер аннуитетного платежа до округления
func annuityPayment(principal, rate decimal.Decimal, months int) decimal.Decimal {
	n := decimal.NewFromInt(int64(months))
	if rate.IsZero() {
		return principal.Div(n)
	}

	// Конвертируем годовую ставку в месячную (в долях)
	monthlyRate := rate.Div(decimal.NewFromInt(1200))
	growth := decimal.NewFromInt(1).Add(monthlyRate).Pow(n)

	// P * r * (1+r)^n / ((1+r)^n - 1)
	return principal.Mul(monthlyRate).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
}

// addMonths сдвигает дату на n месяцев. День прижимается к концу месяца:
// 31 января плюс месяц дает 28 февраля, а не 3 марта.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// BuildSchedule строит график взносов, округленных до копеек.
// Последний взнос закрывает остаток долга с процентами и поглощает разницу округления.
func BuildSchedule(principal, rate decimal.Decimal, months int, start time.Time) []models.LoanInstallment {
	payment := annuityPayment(principal, rate, months).Round(2)
	monthlyRate := rate.Div(decimal.NewFromInt(1200))
	remaining := principal

	installments := make([]models.LoanInstallment, months)
	for i := 0; i < months; i++ {
		interest := remaining.Mul(monthlyRate).Round(2)
		amount := payment
		if i == months-1 {
			amount = remaining.Add(interest)
		}
		remaining = remaining.Sub(amount.Sub(interest))

		installments[i] = models.LoanInstallment{
			DueDate:    addMonths(start, i+1),
			Amount:     amount,
			InitAmount: amount,
			Status:     models.InstallmentStatusPlanned,
		}
	}
	return installments
}

func toInstallmentDTO(installment models.LoanInstallment) InstallmentDTO {
	return InstallmentDTO{
		ID:         installment.ID,
		DueDate:    installment.DueDate,
		Amount:     installment.Amount,
		InitAmount: installment.InitAmount,
		Status:     string(installment.Status),
		PaidDate:   installment.PaidDate,
	}
}

func toLoanResponse(loan models.Loan) *LoanResponseDTO {
	response := &LoanResponseDTO{
		ID:                 loan.ID,
		MemberID:           loan.MemberID,
		Principal:          loan.Principal,
		Rate:               loan.Rate,
		TermMonths:         loan.TermMonths,
		OutstandingBalance: loan.OutstandingBalance,
		Status:             string(loan.Status),
		StartDate:          loan.StartDate,
		EndDate:            loan.EndDate,
		Installments:       make([]InstallmentDTO, 0, len(loan.Installments)),
	}
	for _, installment := range loan.Installments {
		dto := toInstallmentDTO(installment)
		response.Installments = append(response.Installments, dto)
		if response.NextInstallment == nil && installment.IsUnpaid() {
			next := dto
			response.NextInstallment = &next
		}
	}
	return response
}

// Issue выдает заем активному участнику и сохраняет график взносов
func (s *LoanService) Issue(ctx context.Context, dto IssueLoanDTO) (*LoanResponseDTO, error) {
	startTime := time.Now()
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}
	if dto.StartDate.IsZero() {
		dto.StartDate = s.now()
	}

	var loan models.Loan
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if _, err := activeMember(tx, dto.MemberID); err != nil {
			return err
		}

		// Проверяем, нет ли уже непогашенного займа
		var open int64
		if err := tx.Model(&models.Loan{}).
			Where("member_id = ? AND status IN ?", dto.MemberID, []models.LoanStatus{models.LoanStatusActive, models.LoanStatusOverdue}).
			Count(&open).Error; err != nil {
			return fmt.Errorf("ошибка при проверке займов: %w", err)
		}
		if open > 0 {
			return ErrActiveLoanExists
		}

		installments := BuildSchedule(dto.Principal, dto.Rate, dto.TermMonths, dto.StartDate)
		total := decimal.Zero
		for _, installment := range installments {
			total = total.Add(installment.Amount)
		}

		loan = models.Loan{
			MemberID:           dto.MemberID,
			Principal:          dto.Principal,
			Rate:               dto.Rate,
			TermMonths:         dto.TermMonths,
			OutstandingBalance: total,
			Status:             models.LoanStatusActive,
			StartDate:          dto.StartDate,
			EndDate:            addMonths(dto.StartDate, dto.TermMonths),
		}
		if err := tx.Create(&loan).Error; err != nil {
			return fmt.Errorf("ошибка при создании займа: %w", err)
		}

		for i := range installments {
			installments[i].LoanID = loan.ID
		}
		if err := tx.Create(&installments).Error; err != nil {
			return fmt.Errorf("ошибка при создании графика взносов: %w", err)
		}
		loan.Installments = installments
		return nil
	})

	utils.GetMetrics().RecordOperation(utils.OpLoanIssued, err)
	utils.LogOperation(fmt.Sprintf("issue loan member=%d", dto.MemberID), startTime, err)
	if err != nil {
		return nil, err
	}
	return toLoanResponse(loan), nil
}

// Get возвращает заем с графиком взносов
func (s *LoanService) Get(ctx context.Context, id uint) (*LoanResponseDTO, error) {
	var loan models.Loan
	if err := s.db.WithContext(ctx).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_date ASC, id ASC")
		}).
		First(&loan, id).Error; err != nil {
		return nil, wrapLookup(err, "заем", id)
	}
	return toLoanResponse(loan), nil
}

// ListByMember возвращает все займы участника
func (s *LoanService) ListByMember(ctx context.Context, memberID uint) ([]LoanResponseDTO, error) {
	var loans []models.Loan
	if err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_date ASC, id ASC")
		}).
		Order("created_at DESC").
		Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении займов: %w", err)
	}

	responses := make([]LoanResponseDTO, 0, len(loans))
	for _, loan := range loans {
		responses = append(responses, *toLoanResponse(loan))
	}
	return responses, nil
}

// Repay гасит самый ранний неоплаченный взнос. Сумма должна покрывать взнос целиком.
func (s *LoanService) Repay(ctx context.Context, loanID uint, dto RepayLoanDTO) (*RepaymentResult, error) {
	startTime := time.Now()
	if err := validate(s.validator, dto); err != nil {
		return nil, err
	}

	var (
		result      RepaymentResult
		loanPaid    bool
		memberEmail string
	)
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		var loan models.Loan
		if err := tx.First(&loan, loanID).Error; err != nil {
			return wrapLookup(err, "заем", loanID)
		}
		if loan.Status != models.LoanStatusActive && loan.Status != models.LoanStatusOverdue {
			return fmt.Errorf("заем #%d в статусе %s: %w", loanID, loan.Status, ErrInvalidStatus)
		}

		// Находим самый ранний неоплаченный взнос
		var installments []models.LoanInstallment
		if err := tx.Where("loan_id = ? AND status IN ?", loanID,
			[]models.InstallmentStatus{models.InstallmentStatusPlanned, models.InstallmentStatusOverdue}).
			Order("due_date ASC, id ASC").
			Limit(1).
			Find(&installments).Error; err != nil {
			return fmt.Errorf("ошибка при получении взносов: %w", err)
		}
		if len(installments) == 0 {
			return ErrNoUnpaidInstallments
		}
		installment := installments[0]

		// Проверяем сумму платежа
		if dto.Amount.LessThan(installment.Amount) {
			return fmt.Errorf("взнос %s, внесено %s: %w",
				installment.Amount.StringFixed(2), dto.Amount.StringFixed(2), ErrRepaymentTooSmall)
		}

		now := s.now()
		installment.Status = models.InstallmentStatusPaid
		installment.PaidDate = &now
		installment.Amount = dto.Amount
		if err := tx.Save(&installment).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении взноса: %w", err)
		}

		balanceAfter := nonNegative(loan.OutstandingBalance.Sub(dto.Amount))
		repayment := models.LoanRepayment{
			LoanID:        loanID,
			InstallmentID: installment.ID,
			Amount:        dto.Amount,
			BalanceBefore: loan.OutstandingBalance,
			BalanceAfter:  balanceAfter,
			Date:          now,
			Deposit: models.DepositDetails{
				Channel:        dto.Channel,
				SourceName:     dto.SourceName,
				TransactionRef: dto.TransactionRef,
				EvidenceRef:    dto.EvidenceRef,
			},
		}
		if err := tx.Create(&repayment).Error; err != nil {
			return fmt.Errorf("ошибка при записи платежа: %w", err)
		}

		// Проверяем, погашен ли заем
		var unpaid, overdue int64
		if err := tx.Model(&models.LoanInstallment{}).
			Where("loan_id = ? AND status IN ?", loanID,
				[]models.InstallmentStatus{models.InstallmentStatusPlanned, models.InstallmentStatusOverdue}).
			Count(&unpaid).Error; err != nil {
			return fmt.Errorf("ошибка при проверке оставшихся взносов: %w", err)
		}
		if err := tx.Model(&models.LoanInstallment{}).
			Where("loan_id = ? AND status = ?", loanID, models.InstallmentStatusOverdue).
			Count(&overdue).Error; err != nil {
			return fmt.Errorf("ошибка при проверке просроченных взносов: %w", err)
		}

		status := loan.Status
		switch {
		case unpaid == 0:
			status = models.LoanStatusPaid
			balanceAfter = decimal.Zero
			loanPaid = true
		case overdue == 0:
			status = models.LoanStatusActive
		}

		if err := tx.Model(&loan).Updates(map[string]interface{}{
			"outstanding_balance": balanceAfter,
			"status":              status,
		}).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении займа: %w", err)
		}

		if loanPaid {
			var member models.Member
			if err := tx.First(&member, loan.MemberID).Error; err == nil {
				memberEmail = member.Email
			}
		}

		result = RepaymentResult{
			Installment:        toInstallmentDTO(installment),
			Repayment:          repayment,
			LoanStatus:         string(status),
			OutstandingBalance: balanceAfter,
		}
		return nil
	})

	utils.GetMetrics().RecordOperation(utils.OpLoanRepayment, err)
	utils.LogOperation(fmt.Sprintf("repay loan %d", loanID), startTime, err)
	if err != nil {
		return nil, err
	}

	// Отправляем уведомление о погашении займа
	if loanPaid && s.notifier != nil && memberEmail != "" {
		notify("loan paid", func() error {
			return s.notifier.SendLoanPaidNotification(memberEmail, loanID)
		})
	}
	return &result, nil
}
