package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingType представляет тип операции по сбережениям
type SavingType string

const (
	SavingTypeDeposit    SavingType = "deposit"
	SavingTypeWithdrawal SavingType = "withdrawal"
)

// SavingStatus представляет статус операции по сбережениям
type SavingStatus string

const (
	SavingStatusPending  SavingStatus = "pending"
	SavingStatusApproved SavingStatus = "approved"
	SavingStatusRejected SavingStatus = "rejected"
)

// Saving - операция по сбережениям участника. Баланс участника меняется только при одобрении.
type Saving struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID   uint            `gorm:"column:member_id;not null;index" json:"memberId"`
	MemberName string          `gorm:"column:member_name;size:100" json:"memberName,omitempty"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Date       time.Time       `gorm:"column:date;not null" json:"date"`
	Type       SavingType      `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Status     SavingStatus    `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes      string          `gorm:"column:notes;size:255" json:"notes,omitempty"`
	Deposit    DepositDetails  `gorm:"embedded" json:"deposit"`
	BatchRef   string          `gorm:"column:batch_ref;size:36;index" json:"batchRef,omitempty"`
	RecordedBy *uint           `gorm:"column:recorded_by" json:"recordedBy,omitempty"` // сотрудник, принявший деньги
	ApprovedBy *uint           `gorm:"column:approved_by" json:"approvedBy,omitempty"`
	ApprovedAt *time.Time      `gorm:"column:approved_at" json:"approvedAt,omitempty"`
	CreatedAt  time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Saving) TableName() string {
	return "savings"
}
