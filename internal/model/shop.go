package model

import (
	"time"
)

// Shop storefront owned by exactly one trader
type Shop struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement;comment:shop id" json:"id"`
	TraderID    uint64    `gorm:"uniqueIndex;not null;comment:owning trader" json:"trader_id"`
	Name        string    `gorm:"type:varchar(100);not null;comment:display name" json:"name"`
	Description string    `gorm:"type:text;comment:display description" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Trader *User `gorm:"foreignKey:TraderID" json:"trader,omitempty"`
}

// TableName set name
func (Shop) TableName() string {
	return "shops"
}
