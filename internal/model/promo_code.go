package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromoCode discount rule; usage is derived from completed orders
type PromoCode struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Code           string          `gorm:"type:varchar(32);uniqueIndex;not null;comment:upper-case code" json:"code"`
	DiscountType   string          `gorm:"type:varchar(20);not null;comment:percentage, fixed" json:"discount_type"`
	DiscountValue  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount_value"`
	MinOrderAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"min_order_amount"`
	MaxUses        int64           `gorm:"not null;default:0;comment:0 is unlimited" json:"max_uses"`
	ValidFrom      time.Time       `gorm:"not null" json:"valid_from"`
	ValidUntil     time.Time       `gorm:"not null" json:"valid_until"`
	IsActive       bool            `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// UsageCount is filled by queries, never stored
	UsageCount int64 `gorm:"-" json:"usage_count"`
}

// TableName set name
func (PromoCode) TableName() string {
	return "promo_codes"
}

// Discount types
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// IsUnlimited check if the code has no usage cap
func (p *PromoCode) IsUnlimited() bool {
	return p.MaxUses == 0
}

// InWindow check if now lies within [ValidFrom, ValidUntil]
func (p *PromoCode) InWindow(now time.Time) bool {
	return !now.Before(p.ValidFrom) && !now.After(p.ValidUntil)
}
