package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/model"
)

// OrderRepository order repository interface
type OrderRepository interface {
	// Create order with its items
	Create(ctx context.Context, order *model.Order) error

	// Get order by ID with items
	GetByID(ctx context.Context, id uint64) (*model.Order, error)

	// Get order by order number with items
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)

	// MarkPaid moves a pending payment to completed; false when the order was not pending
	MarkPaid(ctx context.Context, id uint64, transactionRef string, paidAt time.Time) (bool, error)

	// MarkFailed moves a pending payment to failed and cancels the order
	MarkFailed(ctx context.Context, id uint64, reason string) (bool, error)

	// MarkRefunded moves a completed, not cancelled order to cancelled/refunded
	MarkRefunded(ctx context.Context, id uint64, reason string, refundedAt time.Time) (bool, error)

	// UpdateOrderStatus compares and sets the fulfilment status
	UpdateOrderStatus(ctx context.Context, id uint64, from, to string) (bool, error)

	// DeletePending removes an order still awaiting payment, with its items
	DeletePending(ctx context.Context, id uint64) (bool, error)

	// CountPromoUsage counts completed orders using code, optionally plus pending ones
	CountPromoUsage(ctx context.Context, code string, includePending bool) (int64, error)

	// CountPromoUsageByCodes counts completed orders per code
	CountPromoUsageByCodes(ctx context.Context, codes []string) (map[string]int64, error)

	// ListExpiredPending lists orders awaiting payment created before the cutoff
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Order, error)

	// List orders
	List(ctx context.Context, filter OrderFilter) ([]*model.Order, int64, error)

	// SalesSummary aggregates completed orders
	SalesSummary(ctx context.Context, shopID uint64, from, to time.Time) (*SalesSummary, error)
}

// OrderFilter order list filter
type OrderFilter struct {
	UserID        uint64
	ShopID        uint64
	OrderStatus   string
	PaymentStatus string
	OrderNo       string
	From          time.Time
	To            time.Time
	Pagination
}

// SalesSummary revenue of completed orders
type SalesSummary struct {
	OrderCount int64           `json:"order_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	ItemsSold  int64           `json:"items_sold"`
}

// orderRepository order repository implementation
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates an order
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Create order
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return err
		}

		// Create order items
		if len(order.Items) > 0 {
			for i := range order.Items {
				order.Items[i].OrderID = order.ID
			}
			if err := tx.Create(&order.Items).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// GetByID gets an order by ID
func (r *orderRepository) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// GetByOrderNo gets an order by order number
func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// MarkPaid completes payment (compare-and-set on payment_status). The order
// moves to processing only from pending; a later fulfilment status is kept.
func (r *orderRepository) MarkPaid(ctx context.Context, id uint64, transactionRef string, paidAt time.Time) (bool, error) {
	status := gorm.Expr("CASE WHEN order_status = ? THEN ? ELSE order_status END",
		model.OrderStatusPending, model.OrderStatusProcessing)
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND payment_status = ?", id, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status":  model.PaymentStatusCompleted,
			"order_status":    status,
			"transaction_ref": transactionRef,
			"paid_at":         paidAt,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkFailed records a gateway failure
func (r *orderRepository) MarkFailed(ctx context.Context, id uint64, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND payment_status = ?", id, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status": model.PaymentStatusFailed,
			"order_status":   model.OrderStatusCancelled,
			"failure_reason": reason,
		})
	return result.RowsAffected > 0, result.Error
}

// MarkRefunded refunds a completed order
func (r *orderRepository) MarkRefunded(ctx context.Context, id uint64, reason string, refundedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND payment_status = ? AND order_status <> ?",
			id, model.PaymentStatusCompleted, model.OrderStatusCancelled).
		Updates(map[string]interface{}{
			"payment_status": model.PaymentStatusRefunded,
			"order_status":   model.OrderStatusCancelled,
			"refund_reason":  reason,
			"refunded_at":    refundedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// UpdateOrderStatus updates the fulfilment status if it still equals from
func (r *orderRepository) UpdateOrderStatus(ctx context.Context, id uint64, from, to string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND order_status = ?", id, from).
		Update("order_status", to)
	return result.RowsAffected > 0, result.Error
}

// DeletePending deletes the order row first so a concurrent payment cannot
// complete an order whose items are already gone
func (r *orderRepository) DeletePending(ctx context.Context, id uint64) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND payment_status = ?", id, model.PaymentStatusPending).
		Delete(&model.Order{})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Delete(&model.OrderItem{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

// CountPromoUsage counts orders that used the code
func (r *orderRepository) CountPromoUsage(ctx context.Context, code string, includePending bool) (int64, error) {
	statuses := []string{model.PaymentStatusCompleted}
	if includePending {
		statuses = append(statuses, model.PaymentStatusPending)
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("promo_code = ? AND payment_status IN ?", code, statuses).
		Count(&count).Error
	return count, err
}

// CountPromoUsageByCodes counts completed orders per code
func (r *orderRepository) CountPromoUsageByCodes(ctx context.Context, codes []string) (map[string]int64, error) {
	usage := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return usage, nil
	}

	var rows []struct {
		PromoCode string
		Uses      int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("promo_code, COUNT(*) AS uses").
		Where("promo_code IN ? AND payment_status = ?", codes, model.PaymentStatusCompleted).
		Group("promo_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		usage[row.PromoCode] = row.Uses
	}
	return usage, nil
}

// ListExpiredPending lists abandoned payments
func (r *orderRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order

	err := r.db.WithContext(ctx).
		Where("payment_status = ?", model.PaymentStatusPending).
		Where("created_at < ?", before).
		Order("created_at").
		Limit(limit).
		Find(&orders).Error

	return orders, err
}

// List lists orders
func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Order{})

	if filter.UserID > 0 {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.ShopID > 0 {
		db = db.Where("id IN (?)", r.db.Model(&model.OrderItem{}).
			Select("order_id").
			Where("shop_id = ?", filter.ShopID))
	}
	if filter.OrderStatus != "" {
		db = db.Where("order_status = ?", filter.OrderStatus)
	}
	if filter.PaymentStatus != "" {
		db = db.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.OrderNo != "" {
		db = db.Where("order_no LIKE ?", "%"+filter.OrderNo+"%")
	}
	if !filter.From.IsZero() {
		db = db.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		db = db.Where("created_at <= ?", filter.To)
	}

	// Get total count
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get list
	err := db.Scopes(filter.Pagination.scope).
		Order("created_at DESC").
		Preload("Items").
		Find(&orders).Error

	return orders, total, err
}

// SalesSummary aggregates completed payments only. With a shop, revenue is the
// sum of that shop's item subtotals.
func (r *orderRepository) SalesSummary(ctx context.Context, shopID uint64, from, to time.Time) (*SalesSummary, error) {
	paid := func(db *gorm.DB) *gorm.DB {
		db = db.Where("o.payment_status = ?", model.PaymentStatusCompleted)
		if !from.IsZero() {
			db = db.Where("o.paid_at >= ?", from)
		}
		if !to.IsZero() {
			db = db.Where("o.paid_at <= ?", to)
		}
		return db
	}
	items := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Table("order_items AS oi").
			Joins("JOIN orders AS o ON o.id = oi.order_id").
			Scopes(paid)
	}

	var row struct {
		OrderCount int64
		Revenue    decimal.Decimal
		ItemsSold  int64
	}

	if shopID > 0 {
		err := items().
			Select("COUNT(DISTINCT o.id) AS order_count, COALESCE(SUM(oi.subtotal), 0) AS revenue, COALESCE(SUM(oi.quantity), 0) AS items_sold").
			Where("oi.shop_id = ?", shopID).
			Scan(&row).Error
		if err != nil {
			return nil, err
		}
	} else {
		err := r.db.WithContext(ctx).
			Table("orders AS o").
			Select("COUNT(*) AS order_count, COALESCE(SUM(o.total_amount), 0) AS revenue").
			Scopes(paid).
			Scan(&row).Error
		if err != nil {
			return nil, err
		}
		err = items().
			Select("COALESCE(SUM(oi.quantity), 0)").
			Scan(&row.ItemsSold).Error
		if err != nil {
			return nil, err
		}
	}

	return &SalesSummary{
		OrderCount: row.OrderCount,
		Revenue:    row.Revenue.Round(2),
		ItemsSold:  row.ItemsSold,
	}, nil
}
