package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceCharge - запись каталога сборов
type ServiceCharge struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"column:name;unique;not null;size:100" json:"name"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Description string          `gorm:"column:description;size:255" json:"description,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (ServiceCharge) TableName() string {
	return "service_charges"
}

// ChargeStatus представляет статус начисленного сбора
type ChargeStatus string

const (
	ChargeStatusPending ChargeStatus = "pending"
	ChargeStatusPaid    ChargeStatus = "paid"
)

// AppliedServiceCharge - сбор, начисленный участнику. После оплаты не изменяется.
type AppliedServiceCharge struct {
	ID              uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID        uint            `gorm:"column:member_id;not null;index" json:"memberId"`
	ServiceChargeID *uint           `gorm:"column:service_charge_id;index" json:"serviceChargeId,omitempty"`
	Description     string          `gorm:"column:description;size:255" json:"description,omitempty"`
	AmountCharged   decimal.Decimal `gorm:"column:amount_charged;type:decimal(20,2);not null" json:"amountCharged"`
	Status          ChargeStatus    `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	DateApplied     time.Time       `gorm:"column:date_applied;not null;index" json:"dateApplied"`
	PaidAt          *time.Time      `gorm:"column:paid_at" json:"paidAt,omitempty"`
	Notes           string          `gorm:"column:notes;size:255" json:"notes,omitempty"`
	BatchRef        string          `gorm:"column:batch_ref;size:36;index" json:"batchRef,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (AppliedServiceCharge) TableName() string {
	return "applied_service_charges"
}
