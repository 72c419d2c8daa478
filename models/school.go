package models

import (
	"time"
)

// School представляет школу, при которой работает касса
type School struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;unique;not null;size:150" json:"name"`
	Address   string    `gorm:"column:address;size:255" json:"address,omitempty"`
	Members   []Member  `gorm:"foreignKey:SchoolID" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (School) TableName() string {
	return "schools"
}
