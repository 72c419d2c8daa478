package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Loan представляет заем, выданный участнику
type Loan struct {
	gorm.Model
	MemberID           uint              `gorm:"not null;index"`
	Member             *Member           `gorm:"foreignKey:MemberID"`
	Principal          decimal.Decimal   `gorm:"type:decimal(20,2);not null"`
	Rate               decimal.Decimal   `gorm:"type:decimal(8,4);not null"` // годовая ставка в процентах
	TermMonths         int               `gorm:"not null"`
	OutstandingBalance decimal.Decimal   `gorm:"type:decimal(20,2);not null"`
	Status             LoanStatus        `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	Installments       []LoanInstallment `gorm:"foreignKey:LoanID"`
	StartDate          time.Time         `gorm:"not null"`
	EndDate            time.Time         `gorm:"not null"`
}

// LoanStatus представляет статус займа
type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusPaid    LoanStatus = "PAID"
	LoanStatusOverdue LoanStatus = "OVERDUE"
)

// TableName возвращает имя таблицы для модели Loan
func (Loan) TableName() string {
	return "loans"
}

// InstallmentStatus представляет статус взноса по графику
type InstallmentStatus string

const (
	InstallmentStatusPlanned InstallmentStatus = "PLANNED" // Запланированный взнос
	InstallmentStatusPaid    InstallmentStatus = "PAID"    // Оплаченный взнос
	InstallmentStatusOverdue InstallmentStatus = "OVERDUE" // Просроченный взнос
)

// LoanInstallment представляет взнос по графику погашения займа
type LoanInstallment struct {
	gorm.Model
	LoanID         uint              `gorm:"not null;index"`
	Loan           *Loan             `gorm:"foreignKey:LoanID"`
	DueDate        time.Time         `gorm:"not null;index"`              // Планируемая дата взноса
	Amount         decimal.Decimal   `gorm:"type:decimal(20,2);not null"` // Сумма взноса
	InitAmount     decimal.Decimal   `gorm:"type:decimal(20,2);not null"` // Начальная сумма взноса
	Status         InstallmentStatus `gorm:"type:varchar(20);not null;default:'PLANNED'"`
	LateFeeApplied bool              `gorm:"not null;default:false"`
	PaidDate       *time.Time        // Дата фактической оплаты
}

// TableName возвращает имя таблицы для модели LoanInstallment
func (LoanInstallment) TableName() string {
	return "loan_installments"
}

// IsUnpaid сообщает, ожидает ли взнос оплаты
func (i LoanInstallment) IsUnpaid() bool {
	return i.Status == InstallmentStatusPlanned || i.Status == InstallmentStatusOverdue
}

// LoanRepayment - запись журнала погашений займа
type LoanRepayment struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"`
	LoanID        uint            `gorm:"column:loan_id;not null;index"`
	InstallmentID uint            `gorm:"column:installment_id;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(20,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:decimal(20,2);not null"`
	Date          time.Time       `gorm:"column:date;not null"`
	Deposit       DepositDetails  `gorm:"embedded"`
	CreatedAt     time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

func (LoanRepayment) TableName() string {
	return "loan_repayments"
}
