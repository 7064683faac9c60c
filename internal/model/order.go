package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order customer order; items are an immutable price snapshot
type Order struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement;comment:order id" json:"id"`
	OrderNo        string          `gorm:"type:varchar(32);uniqueIndex;not null;comment:order number" json:"order_no"`
	UserID         uint64          `gorm:"not null;index;comment:customer" json:"user_id"`
	OrderStatus    string          `gorm:"type:varchar(20);not null;index;comment:fulfilment status" json:"order_status"`
	PaymentStatus  string          `gorm:"type:varchar(20);not null;index;comment:payment status" json:"payment_status"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:sum of item subtotals" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:promo discount" json:"discount_amount"`
	PointsDiscount decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:value of redeemed points" json:"points_discount"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:tax" json:"tax_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:amount charged" json:"total_amount"`
	PointsUsed     int64           `gorm:"not null;default:0;comment:points redeemed" json:"points_used"`
	PointsEarned   int64           `gorm:"not null;default:0;comment:points credited on payment" json:"points_earned"`
	PromoCode      *string         `gorm:"type:varchar(32);index;comment:applied promo code" json:"promo_code,omitempty"`
	TransactionRef *string         `gorm:"type:varchar(64);comment:gateway transaction" json:"transaction_ref,omitempty"`
	FailureReason  *string         `gorm:"type:varchar(255);comment:gateway failure reason" json:"failure_reason,omitempty"`
	RefundReason   *string         `gorm:"type:varchar(255);comment:admin refund reason" json:"refund_reason,omitempty"`
	PaidAt         *time.Time      `gorm:"index;comment:payment completed" json:"paid_at,omitempty"`
	RefundedAt     *time.Time      `gorm:"comment:refund time" json:"refunded_at,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// TableName set name
func (Order) TableName() string {
	return "orders"
}

// OrderItem snapshot of one purchased line, never updated after creation
type OrderItem struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     uint64          `gorm:"not null;index;comment:order" json:"order_id"`
	ProductID   uint64          `gorm:"not null;index;comment:product" json:"product_id"`
	ShopID      uint64          `gorm:"not null;index;comment:selling shop" json:"shop_id"`
	ProductName string          `gorm:"type:varchar(200);not null;comment:name at purchase" json:"product_name"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:price at purchase" json:"unit_price"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName set name
func (OrderItem) TableName() string {
	return "order_items"
}

// Order status
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment status
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// fulfilment rank for forward-only transitions
var orderStatusRank = map[string]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// IsFulfilmentStatus reports whether s can be set through a status update
func IsFulfilmentStatus(s string) bool {
	_, ok := orderStatusRank[s]
	return ok
}

// IsForwardTransition reports whether from -> to advances exactly one step
func IsForwardTransition(from, to string) bool {
	f, ok1 := orderStatusRank[from]
	t, ok2 := orderStatusRank[to]
	return ok1 && ok2 && t == f+1
}

// IsPaymentPending check if payment is awaited
func (o *Order) IsPaymentPending() bool {
	return o.PaymentStatus == PaymentStatusPending
}

// IsPaid check if payment completed
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusCompleted
}

// IsCancelled check if order is cancelled
func (o *Order) IsCancelled() bool {
	return o.OrderStatus == OrderStatusCancelled
}

// CanRefund check if an admin refund is allowed
func (o *Order) CanRefund() bool {
	return o.IsPaid() && !o.IsCancelled()
}

// HasShop reports whether any item was sold by shopID
func (o *Order) HasShop(shopID uint64) bool {
	for _, item := range o.Items {
		if item.ShopID == shopID {
			return true
		}
	}
	return false
}
