package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShareType - запись каталога типов паев
type ShareType struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"column:name;unique;not null;size:100" json:"name"`
	ValuePerShare decimal.Decimal `gorm:"column:value_per_share;type:decimal(20,2);not null" json:"valuePerShare"`
	Description   string          `gorm:"column:description;size:255" json:"description,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (ShareType) TableName() string {
	return "share_types"
}

// ShareCommitment - обязательство участника ежемесячно вносить сумму в паи определенного типа
type ShareCommitment struct {
	ID                     uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID               uint                `gorm:"column:member_id;not null;index" json:"memberId"`
	ShareTypeID            uint                `gorm:"column:share_type_id;not null;index" json:"shareTypeId"`
	ShareType              *ShareType          `gorm:"foreignKey:ShareTypeID" json:"shareType,omitempty"`
	MonthlyCommittedAmount decimal.NullDecimal `gorm:"column:monthly_committed_amount;type:decimal(20,2)" json:"monthlyCommittedAmount"`
	CreatedAt              time.Time           `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt              time.Time           `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (ShareCommitment) TableName() string {
	return "share_commitments"
}

// ShareStatus представляет статус распределения паев
type ShareStatus string

const (
	ShareStatusPending  ShareStatus = "pending"
	ShareStatusApproved ShareStatus = "approved"
	ShareStatusRedeemed ShareStatus = "redeemed" // паи выкуплены при закрытии счета
)

// Share - запись о распределении паев участнику
type Share struct {
	ID                      uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID                uint                `gorm:"column:member_id;not null;index" json:"memberId"`
	MemberName              string              `gorm:"column:member_name;size:100" json:"memberName,omitempty"`
	ShareTypeID             uint                `gorm:"column:share_type_id;not null;index" json:"shareTypeId"`
	ShareType               *ShareType          `gorm:"foreignKey:ShareTypeID" json:"shareType,omitempty"`
	NumberOfShares          int64               `gorm:"column:number_of_shares;not null" json:"numberOfShares"`
	ValuePerShare           decimal.Decimal     `gorm:"column:value_per_share;type:decimal(20,2);not null" json:"valuePerShare"` // снимок на дату распределения
	TotalValueForAllocation decimal.NullDecimal `gorm:"column:total_value_for_allocation;type:decimal(20,2)" json:"totalValueForAllocation"`
	ContributionAmount      decimal.NullDecimal `gorm:"column:contribution_amount;type:decimal(20,2)" json:"contributionAmount"`
	Status                  ShareStatus         `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	AllocationDate          time.Time           `gorm:"column:allocation_date;not null" json:"allocationDate"`
	Notes                   string              `gorm:"column:notes;size:255" json:"notes,omitempty"`
	Deposit                 DepositDetails      `gorm:"embedded" json:"deposit"`
	BatchRef                string              `gorm:"column:batch_ref;size:36;index" json:"batchRef,omitempty"`
	RecordedBy              *uint               `gorm:"column:recorded_by" json:"recordedBy,omitempty"`
	ApprovedBy              *uint               `gorm:"column:approved_by" json:"approvedBy,omitempty"`
	ApprovedAt              *time.Time          `gorm:"column:approved_at" json:"approvedAt,omitempty"`
	CreatedAt               time.Time           `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt               time.Time           `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Share) TableName() string {
	return "shares"
}

// AllocatedValue возвращает стоимость распределения. Без явно сохраненного значения
// это количество паев, умноженное на стоимость пая.
func (s Share) AllocatedValue() decimal.Decimal {
	if s.TotalValueForAllocation.Valid {
		return s.TotalValueForAllocation.Decimal
	}
	return s.ValuePerShare.Mul(decimal.NewFromInt(s.NumberOfShares))
}
