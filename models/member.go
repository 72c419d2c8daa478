package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MemberStatus представляет статус участника
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

// Address - необязательный адрес участника
type Address struct {
	Street string `gorm:"column:street;size:150" json:"street,omitempty"`
	City   string `gorm:"column:city;size:100" json:"city,omitempty"`
	Region string `gorm:"column:region;size:100" json:"region,omitempty"`
}

// IsPresent сообщает, заполнен ли адрес хотя бы частично
func (a Address) IsPresent() bool {
	return strings.TrimSpace(a.Street) != "" || strings.TrimSpace(a.City) != "" || strings.TrimSpace(a.Region) != ""
}

// EmergencyContact - необязательный контакт для экстренной связи
type EmergencyContact struct {
	Name         string `gorm:"column:name;size:100" json:"name,omitempty"`
	Phone        string `gorm:"column:phone;size:30" json:"phone,omitempty"`
	Relationship string `gorm:"column:relationship;size:50" json:"relationship,omitempty"`
}

// IsPresent сообщает, указан ли контакт. Без имени или телефона контакт бесполезен.
func (c EmergencyContact) IsPresent() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Phone) != ""
}

// Member представляет участника кассы взаимопомощи
type Member struct {
	ID                    uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	SchoolID              uint                `gorm:"column:school_id;not null;index" json:"schoolId"`
	School                *School             `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
	FirstName             string              `gorm:"column:first_name;not null;size:50" json:"firstName"`
	LastName              string              `gorm:"column:last_name;not null;size:50" json:"lastName"`
	Email                 string              `gorm:"column:email;size:100;index" json:"email,omitempty"`
	Phone                 string              `gorm:"column:phone;size:30" json:"phone,omitempty"`
	JoinDate              time.Time           `gorm:"column:join_date;type:date;not null" json:"joinDate"`
	Status                MemberStatus        `gorm:"column:status;type:varchar(20);not null;default:'active';index" json:"status"`
	SavingsBalance        decimal.Decimal     `gorm:"column:savings_balance;type:decimal(20,2);not null;default:0" json:"savingsBalance"`
	ExpectedMonthlySaving decimal.NullDecimal `gorm:"column:expected_monthly_saving;type:decimal(20,2)" json:"expectedMonthlySaving"`
	Address               Address             `gorm:"embedded;embeddedPrefix:address_" json:"address"`
	EmergencyContact      EmergencyContact    `gorm:"embedded;embeddedPrefix:emergency_" json:"emergencyContact"`
	ShareCommitments      []ShareCommitment   `gorm:"foreignKey:MemberID" json:"shareCommitments,omitempty"`
	CreatedAt             time.Time           `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Member) TableName() string {
	return "members"
}

// FullName возвращает имя и фамилию участника
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// IsActive сообщает, активен ли участник
func (m Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

// BeforeCreate хук для валидации перед созданием
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if len(m.FirstName) < 2 || len(m.FirstName) > 50 {
		return errors.New("first name must be between 2 and 50 characters")
	}
	if len(m.LastName) < 2 || len(m.LastName) > 50 {
		return errors.New("last name must be between 2 and 50 characters")
	}
	if m.Status == "" {
		m.Status = MemberStatusActive
	}
	return nil
}
