package model

import (
	"time"
)

// StockLog audit row written with every stock mutation
type StockLog struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint64    `gorm:"not null;index;comment:product" json:"product_id"`
	Operation string    `gorm:"type:varchar(20);not null;comment:decrement, increment, set" json:"operation"`
	Quantity  int       `gorm:"not null;comment:units moved, or new level for set" json:"quantity"`
	OrderNo   *string   `gorm:"type:varchar(32);index;comment:related order" json:"order_no,omitempty"`
	Operator  string    `gorm:"type:varchar(50);not null;comment:who changed it" json:"operator"`
	Remark    string    `gorm:"type:varchar(255)" json:"remark"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName set name
func (StockLog) TableName() string {
	return "stock_logs"
}

// Stock operations
const (
	StockOpDecrement = "decrement"
	StockOpIncrement = "increment"
	StockOpSet       = "set"
)
