package model

import (
	"time"
)

// CartItem one product line in a customer's cart
type CartItem struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_cart_user_product;comment:customer" json:"user_id"`
	ProductID uint64    `gorm:"not null;uniqueIndex:idx_cart_user_product;comment:product" json:"product_id"`
	Quantity  int       `gorm:"not null;comment:units" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName set name
func (CartItem) TableName() string {
	return "cart_items"
}
