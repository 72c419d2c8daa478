package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DividendDistribution - распределение дивидендов за год
type DividendDistribution struct {
	ID                uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	Year              int              `gorm:"column:year;unique;not null" json:"year"`
	TotalPool         decimal.Decimal  `gorm:"column:total_pool;type:decimal(20,2);not null" json:"totalPool"`
	TotalShareValue   decimal.Decimal  `gorm:"column:total_share_value;type:decimal(20,2);not null" json:"totalShareValue"`
	DistributedAmount decimal.Decimal  `gorm:"column:distributed_amount;type:decimal(20,2);not null" json:"distributedAmount"`
	Remainder         decimal.Decimal  `gorm:"column:remainder;type:decimal(20,2);not null" json:"remainder"`
	AsOf              time.Time        `gorm:"column:as_of;not null" json:"asOf"`
	Payouts           []DividendPayout `gorm:"foreignKey:DistributionID" json:"payouts,omitempty"`
	CreatedAt         time.Time        `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (DividendDistribution) TableName() string {
	return "dividend_distributions"
}

// DividendPayout - доля участника в распределении
type DividendPayout struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	DistributionID uint            `gorm:"column:distribution_id;not null;index" json:"distributionId"`
	MemberID       uint            `gorm:"column:member_id;not null;index" json:"memberId"`
	ShareValue     decimal.Decimal `gorm:"column:share_value;type:decimal(20,2);not null" json:"shareValue"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	SavingID       uint            `gorm:"column:saving_id" json:"savingId"`
	CreatedAt      time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (DividendPayout) TableName() string {
	return "dividend_payouts"
}
