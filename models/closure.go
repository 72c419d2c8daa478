package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MemberClosure хранит расчет выплаты при закрытии счета участника
type MemberClosure struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID           uint            `gorm:"column:member_id;unique;not null" json:"memberId"`
	ClosedAt           time.Time       `gorm:"column:closed_at;not null" json:"closedAt"`
	SavingsBalance     decimal.Decimal `gorm:"column:savings_balance;type:decimal(20,2);not null" json:"savingsBalance"`
	ShareValue         decimal.Decimal `gorm:"column:share_value;type:decimal(20,2);not null" json:"shareValue"`
	ChargesSettled     decimal.Decimal `gorm:"column:charges_settled;type:decimal(20,2);not null" json:"chargesSettled"`
	Payout             decimal.Decimal `gorm:"column:payout;type:decimal(20,2);not null" json:"payout"`
	WithdrawalSavingID *uint           `gorm:"column:withdrawal_saving_id" json:"withdrawalSavingId,omitempty"`
	Deposit            DepositDetails  `gorm:"embedded" json:"deposit"`
	Notes              string          `gorm:"column:notes;size:255" json:"notes,omitempty"`
	CreatedAt          time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (MemberClosure) TableName() string {
	return "member_closures"
}
