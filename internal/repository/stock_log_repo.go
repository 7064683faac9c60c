package repository

import (
	"context"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// StockLogRepository stock log repository interface
type StockLogRepository interface {
	// Create creates a stock log
	Create(ctx context.Context, log *model.StockLog) error

	// ListByProduct gets the latest stock logs of a product
	ListByProduct(ctx context.Context, productID uint64, limit int) ([]model.StockLog, error)

	// ListByOrderNo gets stock logs written for an order
	ListByOrderNo(ctx context.Context, orderNo string) ([]model.StockLog, error)
}

// stockLogRepository stock log repository implementation
type stockLogRepository struct {
	db *gorm.DB
}

// NewStockLogRepository creates a stock log repository
func NewStockLogRepository(db *gorm.DB) StockLogRepository {
	return &stockLogRepository{
		db: db,
	}
}

// Create creates a stock log
func (r *stockLogRepository) Create(ctx context.Context, log *model.StockLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByProduct gets stock logs by product ID
func (r *stockLogRepository) ListByProduct(ctx context.Context, productID uint64, limit int) ([]model.StockLog, error) {
	var logs []model.StockLog
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// ListByOrderNo gets stock logs by order number
func (r *stockLogRepository) ListByOrderNo(ctx context.Context, orderNo string) ([]model.StockLog, error) {
	var logs []model.StockLog
	err := r.db.WithContext(ctx).
		Where("order_no = ?", orderNo).
		Order("id").
		Find(&logs).Error
	return logs, err
}
