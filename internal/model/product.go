package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category product category
type Category struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
}

// TableName set name
func (Category) TableName() string {
	return "categories"
}

// Product listing of a shop
type Product struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement;comment:product id" json:"id"`
	ShopID        uint64          `gorm:"not null;index;comment:owning shop" json:"shop_id"`
	CategoryID    uint64          `gorm:"not null;index;comment:category" json:"category_id"`
	Name          string          `gorm:"type:varchar(200);not null;comment:product name" json:"name"`
	Description   string          `gorm:"type:text;comment:product description" json:"description"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:unit price" json:"price"`
	StockQuantity int             `gorm:"not null;default:0;comment:units on hand" json:"stock_quantity"`
	Status        string          `gorm:"type:varchar(20);not null;index;comment:active, inactive" json:"status"`
	// ModerationLocked products were deactivated by moderation and stay inactive until an admin lifts it
	ModerationLocked bool            `gorm:"not null;comment:deactivated by moderation" json:"moderation_locked"`
	Rating           decimal.Decimal `gorm:"type:decimal(3,2);not null;default:0;comment:average rating 0-5" json:"rating"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Shop     *Shop     `gorm:"foreignKey:ShopID" json:"shop,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// TableName set name
func (Product) TableName() string {
	return "products"
}

// Product status
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// IsActive check if product can be sold
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

// HasStock check if qty units are on hand
func (p *Product) HasStock(qty int) bool {
	return qty > 0 && p.StockQuantity >= qty
}
