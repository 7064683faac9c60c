package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"marketplace/internal/config"
	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/payment"
	"marketplace/internal/repository"
	"marketplace/internal/service/promo"
	"marketplace/internal/session"
	"marketplace/pkg/log"
	"marketplace/pkg/snowflake"
	"marketplace/pkg/utils"
)

// Options business rules of the order lifecycle
type Options struct {
	PointsPerCurrencyUnit int64
	EarnRate              decimal.Decimal
	TaxRate               decimal.Decimal
	RefundPolicy          string
	StatusPolicy          string
	PaymentTimeout        time.Duration
	SweepBatchSize        int
}

// OptionsFromConfig reads the marketplace section
func OptionsFromConfig(m config.MarketplaceConfig) Options {
	return Options{
		PointsPerCurrencyUnit: m.PointsPerCurrencyUnit,
		EarnRate:              m.EarnRate(),
		TaxRate:               m.Tax(),
		RefundPolicy:          m.RefundPolicy,
		StatusPolicy:          m.StatusPolicy,
		PaymentTimeout:        m.PaymentTimeout,
		SweepBatchSize:        m.SweepBatchSize,
	}
}

func (o *Options) setDefaults() {
	if o.PointsPerCurrencyUnit <= 0 {
		o.PointsPerCurrencyUnit = 100
	}
	if o.RefundPolicy == "" {
		o.RefundPolicy = config.RefundFinancialOnly
	}
	if o.StatusPolicy == "" {
		o.StatusPolicy = config.StatusPermissive
	}
	if o.PaymentTimeout <= 0 {
		o.PaymentTimeout = 30 * time.Minute
	}
	if o.SweepBatchSize <= 0 {
		o.SweepBatchSize = 100
	}
}

// LineItem one requested product
type LineItem struct {
	ProductID uint64 `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CreateOrderRequest checkout request. With FromCart the cart is the item
// list and purchased lines are removed from it.
type CreateOrderRequest struct {
	Items       []LineItem `json:"items" binding:"omitempty,dive"`
	FromCart    bool       `json:"from_cart"`
	PromoCode   string     `json:"promo_code"`
	PointsToUse int64      `json:"points_to_use" binding:"gte=0"`
}

// Totals order amounts derived from the snapshot
type Totals struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	PointsDiscount decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	PointsEarned   int64
}

// ComputeTotals applies discount, points and tax to subtotal. The taxable
// amount never drops below zero.
func ComputeTotals(subtotal, discount, pointsDiscount decimal.Decimal, opts Options) Totals {
	taxable := subtotal.Sub(discount).Sub(pointsDiscount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	tax := taxable.Mul(opts.TaxRate).Round(2)
	total := taxable.Add(tax).Round(2)

	return Totals{
		Subtotal:       subtotal.Round(2),
		Discount:       discount.Round(2),
		PointsDiscount: pointsDiscount.Round(2),
		Tax:            tax,
		Total:          total,
		PointsEarned:   total.Mul(opts.EarnRate).Floor().IntPart(),
	}
}

// OrderService order lifecycle service interface
type OrderService interface {
	// CreateOrder checks out atomically: stock, points and promo either all apply or none do
	CreateOrder(ctx context.Context, customerID uint64, req *CreateOrderRequest) (*model.Order, error)

	// CompletePayment is idempotent for a repeated callback with the same reference
	CompletePayment(ctx context.Context, orderID uint64, transactionRef string) (*model.Order, error)
	FailPayment(ctx context.Context, orderID uint64, reason string) error
	// CancelPendingPayment restores stock, cart and points and deletes the order
	CancelPendingPayment(ctx context.Context, orderID uint64) error
	AdminRefund(ctx context.Context, orderID uint64, reason string) (*model.Order, error)
	UpdateStatus(ctx context.Context, actor *session.Identity, orderID uint64, status string) (*model.Order, error)

	// HandlePaymentEvent dispatches a queued gateway callback
	HandlePaymentEvent(ctx context.Context, event *model.PaymentEvent) error
	// HandleExpiredOrders cancels payments abandoned for longer than the timeout
	HandleExpiredOrders(ctx context.Context, now time.Time) (int, error)

	// GetOrder returns an order visible to actor
	GetOrder(ctx context.Context, actor *session.Identity, orderID uint64) (*model.Order, error)
	ListUserOrders(ctx context.Context, userID uint64, filter repository.OrderFilter) ([]*model.Order, int64, error)
	ListShopOrders(ctx context.Context, traderID uint64, filter repository.OrderFilter) ([]*model.Order, int64, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*model.Order, int64, error)
}

// orderService order service implementation
type orderService struct {
	repos       *repository.Repositories
	gateway     payment.Gateway
	idGenerator *snowflake.Generator
	metrics     *monitor.MetricsCollector
	opts        Options
	now         func() time.Time
}

// NewOrderService creates an order service. metrics may be nil.
func NewOrderService(
	repos *repository.Repositories,
	gateway payment.Gateway,
	idGenerator *snowflake.Generator,
	metrics *monitor.MetricsCollector,
	opts Options,
) OrderService {
	opts.setDefaults()
	return &orderService{
		repos:       repos,
		gateway:     gateway,
		idGenerator: idGenerator,
		metrics:     metrics,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder creates an order
func (s *orderService) CreateOrder(ctx context.Context, customerID uint64, req *CreateOrderRequest) (order *model.Order, err error) {
	ctx, span := monitor.StartSpan(ctx, "order.create",
		attribute.Int64("order.customer_id", int64(customerID)),
		attribute.Bool("order.from_cart", req.FromCart),
	)
	defer func() { monitor.EndSpan(span, err) }()

	if req.PointsToUse < 0 {
		return nil, utils.NewError(utils.CodeInvalidParam, "points_to_use must be non-negative")
	}
	if !req.FromCart && len(req.Items) == 0 {
		return nil, utils.NewError(utils.CodeInvalidParam, "order has no items")
	}
	code := utils.NormalizePromoCode(req.PromoCode)
	now := s.now()

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		customer, err := tx.Users.GetByID(ctx, customerID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if !customer.IsActive() {
			return utils.ErrAccountDisabled
		}

		lines := req.Items
		if req.FromCart {
			if lines, err = cartLines(ctx, tx, customerID); err != nil {
				return err
			}
		}
		lines, err = mergeLines(lines)
		if err != nil {
			return err
		}

		orderNo := s.idGenerator.NextOrderNo()
		items, subtotal, err := s.reserveStock(ctx, tx, orderNo, lines)
		if err != nil {
			return err
		}

		discount := decimal.Zero
		var promoCode *string
		if code != "" {
			if discount, err = s.applyPromo(ctx, tx, code, subtotal, now); err != nil {
				return err
			}
			promoCode = &code
		}

		pointsDiscount := decimal.Zero
		if req.PointsToUse > 0 {
			pointsDiscount = decimal.NewFromInt(req.PointsToUse).
				Div(decimal.NewFromInt(s.opts.PointsPerCurrencyUnit)).
				Round(2)
			if pointsDiscount.GreaterThan(subtotal.Sub(discount)) {
				return utils.NewError(utils.CodeInvalidParam, "points exceed the amount due")
			}
			if err := tx.Users.DebitPoints(ctx, customerID, req.PointsToUse); err != nil {
				if errors.Is(err, repository.ErrInsufficientPoints) {
					return utils.ErrPointsNotEnough
				}
				return err
			}
		}

		totals := ComputeTotals(subtotal, discount, pointsDiscount, s.opts)
		order = &model.Order{
			OrderNo:        orderNo,
			UserID:         customerID,
			OrderStatus:    model.OrderStatusPending,
			PaymentStatus:  model.PaymentStatusPending,
			Subtotal:       totals.Subtotal,
			DiscountAmount: totals.Discount,
			PointsDiscount: totals.PointsDiscount,
			TaxAmount:      totals.Tax,
			TotalAmount:    totals.Total,
			PointsUsed:     req.PointsToUse,
			PointsEarned:   totals.PointsEarned,
			PromoCode:      promoCode,
			Items:          items,
		}
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}

		if req.FromCart {
			ids := make([]uint64, 0, len(items))
			for _, item := range items {
				ids = append(ids, item.ProductID)
			}
			if err := tx.Carts.DeleteProducts(ctx, customerID, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrStockNotEnough) {
			s.metrics.RecordStockRejection()
		}
		s.metrics.RecordOrderEvent(monitor.OrderRejected)
		log.WithContext(ctx).WithFields(map[string]interface{}{
			"customer_id": customerID,
			"promo_code":  code,
			"error":       err.Error(),
		}).Warn("checkout rejected")
		return nil, asAppError(err)
	}

	s.metrics.RecordOrderEvent(monitor.OrderCreated)
	span.SetAttributes(attribute.String("order.no", order.OrderNo))
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_no":      order.OrderNo,
		"customer_id":   customerID,
		"items":         len(order.Items),
		"total":         order.TotalAmount.String(),
		"points_used":   order.PointsUsed,
		"points_earned": order.PointsEarned,
	}).Info("order created")
	return order, nil
}

// reserveStock snapshots each line and decrements stock conditionally. Lines
// are processed in product id order so concurrent checkouts lock rows in the
// same sequence.
func (s *orderService) reserveStock(ctx context.Context, tx *repository.Repositories, orderNo string, lines []LineItem) ([]model.OrderItem, decimal.Decimal, error) {
	ids := make([]uint64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := tx.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	byID := make(map[uint64]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]model.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, decimal.Zero, utils.NewError(utils.CodeProductNotFound,
				fmt.Sprintf("product %d not found", line.ProductID))
		}
		if !p.IsActive() {
			return nil, decimal.Zero, utils.NewError(utils.CodeInvalidState,
				fmt.Sprintf("%s is no longer available", p.Name))
		}

		if err := tx.Products.DecrStock(ctx, p.ID, line.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				return nil, decimal.Zero, utils.NewError(utils.CodeStockNotEnough,
					fmt.Sprintf("insufficient stock for %s", p.Name))
			}
			return nil, decimal.Zero, err
		}
		if err := tx.StockLogs.Create(ctx, &model.StockLog{
			ProductID: p.ID,
			Operation: model.StockOpDecrement,
			Quantity:  line.Quantity,
			OrderNo:   &orderNo,
			Operator:  "checkout",
		}); err != nil {
			return nil, decimal.Zero, err
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		items = append(items, model.OrderItem{
			ProductID:   p.ID,
			ShopID:      p.ShopID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    line.Quantity,
			Subtotal:    lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}
	return items, subtotal, nil
}

// applyPromo re-validates the code under a row lock. Orders still awaiting
// payment count toward the cap so concurrent checkouts cannot overshoot it.
func (s *orderService) applyPromo(ctx context.Context, tx *repository.Repositories, code string, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	p, err := tx.Promos.GetByCodeForUpdate(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return decimal.Zero, utils.NewError(utils.CodePromoInvalid, promo.ReasonNotFound)
	}
	if err != nil {
		return decimal.Zero, err
	}

	var usage int64
	if !p.IsUnlimited() {
		if usage, err = tx.Orders.CountPromoUsage(ctx, code, true); err != nil {
			return decimal.Zero, err
		}
	}

	res := promo.Evaluate(p, usage, subtotal, now)
	if !res.Valid {
		return decimal.Zero, utils.NewError(utils.CodePromoInvalid, res.Reason)
	}
	return res.Discount, nil
}

// CompletePayment marks an order paid and credits the points it earns
func (s *orderService) CompletePayment(ctx context.Context, orderID uint64, transactionRef string) (order *model.Order, err error) {
	ctx, span := monitor.StartSpan(ctx, "order.complete_payment", attribute.Int64("order.id", int64(orderID)))
	defer func() { monitor.EndSpan(span, err) }()

	transactionRef = strings.TrimSpace(transactionRef)
	if transactionRef == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "transaction reference is required")
	}

	replay := false
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		paid, err := tx.Orders.MarkPaid(ctx, orderID, transactionRef, s.now())
		if err != nil {
			return err
		}

		order, err = tx.Orders.GetByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if !paid {
			if order.IsPaid() && order.TransactionRef != nil && *order.TransactionRef == transactionRef {
				replay = true
				return nil
			}
			return utils.NewError(utils.CodeInvalidState,
				fmt.Sprintf("order payment is %s", order.PaymentStatus))
		}

		if order.PointsEarned > 0 {
			return tx.Users.CreditPoints(ctx, order.UserID, order.PointsEarned)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}

	if replay {
		log.WithContext(ctx).WithField("order_no", order.OrderNo).Info("duplicate payment callback ignored")
		return order, nil
	}

	s.metrics.RecordOrderEvent(monitor.OrderPaid)
	s.metrics.RecordRevenue(order.TotalAmount.InexactFloat64())
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_no":        order.OrderNo,
		"transaction_ref": transactionRef,
		"points_earned":   order.PointsEarned,
	}).Info("order paid")
	return order, nil
}

// FailPayment records a gateway failure. Stock and points are released but
// the order row is kept.
func (s *orderService) FailPayment(ctx context.Context, orderID uint64, reason string) (err error) {
	ctx, span := monitor.StartSpan(ctx, "order.fail_payment", attribute.Int64("order.id", int64(orderID)))
	defer func() { monitor.EndSpan(span, err) }()

	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "payment failed"
	}

	var order *model.Order
	replay := false
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		failed, err := tx.Orders.MarkFailed(ctx, orderID, reason)
		if err != nil {
			return err
		}

		order, err = tx.Orders.GetByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if !failed {
			if order.PaymentStatus == model.PaymentStatusFailed {
				replay = true
				return nil
			}
			return utils.NewError(utils.CodeInvalidState,
				fmt.Sprintf("order payment is %s", order.PaymentStatus))
		}

		if err := restoreStock(ctx, tx, order, "payment failed"); err != nil {
			return err
		}
		if order.PointsUsed > 0 {
			return tx.Users.CreditPoints(ctx, order.UserID, order.PointsUsed)
		}
		return nil
	})
	if err != nil {
		return asAppError(err)
	}
	if replay {
		return nil
	}

	s.metrics.RecordOrderEvent(monitor.OrderFailed)
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_no": order.OrderNo,
		"reason":   reason,
	}).Warn("order payment failed")
	return nil
}

// CancelPendingPayment undoes an order abandoned at the payment step
func (s *orderService) CancelPendingPayment(ctx context.Context, orderID uint64) (err error) {
	ctx, span := monitor.StartSpan(ctx, "order.cancel_pending", attribute.Int64("order.id", int64(orderID)))
	defer func() { monitor.EndSpan(span, err) }()

	var order *model.Order
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		order, err = tx.Orders.GetByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		if !order.IsPaymentPending() {
			return utils.NewError(utils.CodeInvalidState,
				fmt.Sprintf("order payment is %s", order.PaymentStatus))
		}

		deleted, err := tx.Orders.DeletePending(ctx, orderID)
		if err != nil {
			return err
		}
		if !deleted {
			return utils.NewError(utils.CodeInvalidState, "order payment changed concurrently, retry")
		}

		if err := restoreStock(ctx, tx, order, "payment cancelled"); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := tx.Carts.Upsert(ctx, order.UserID, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if order.PointsUsed > 0 {
			return tx.Users.CreditPoints(ctx, order.UserID, order.PointsUsed)
		}
		return nil
	})
	if err != nil {
		return asAppError(err)
	}

	s.metrics.RecordOrderEvent(monitor.OrderCancelled)
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_no":    order.OrderNo,
		"customer_id": order.UserID,
		"points_used": order.PointsUsed,
	}).Info("pending payment cancelled")
	return nil
}

// AdminRefund cancels a paid order and refunds it through the gateway. The
// gateway call is the last step of the transaction so a failed refund leaves
// the order untouched.
func (s *orderService) AdminRefund(ctx context.Context, orderID uint64, reason string) (order *model.Order, err error) {
	ctx, span := monitor.StartSpan(ctx, "order.refund", attribute.Int64("order.id", int64(orderID)))
	defer func() { monitor.EndSpan(span, err) }()

	if reason = strings.TrimSpace(reason); reason == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "refund reason is required")
	}

	restore := s.opts.RefundPolicy == config.RefundRestoreInventory
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		order, err = tx.Orders.GetByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		if !order.CanRefund() {
			return utils.NewError(utils.CodeInvalidState, "only paid orders that are not cancelled can be refunded")
		}

		refunded, err := tx.Orders.MarkRefunded(ctx, orderID, reason, s.now())
		if err != nil {
			return err
		}
		if !refunded {
			return utils.NewError(utils.CodeInvalidState, "order changed concurrently, retry")
		}

		if restore {
			if err := restoreStock(ctx, tx, order, "refund"); err != nil {
				return err
			}
			if order.PointsUsed > 0 {
				if err := tx.Users.CreditPoints(ctx, order.UserID, order.PointsUsed); err != nil {
					return err
				}
			}
			if order.PointsEarned > 0 {
				if err := tx.Users.ClawbackPoints(ctx, order.UserID, order.PointsEarned); err != nil {
					return err
				}
			}
		}

		if order.TransactionRef == nil {
			return nil
		}
		if err := s.gateway.Refund(ctx, *order.TransactionRef, order.TotalAmount); err != nil {
			return utils.NewErrorWithErr(utils.CodeGatewayError, "payment gateway refused the refund", err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}

	order, err = s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, asAppError(err)
	}

	s.metrics.RecordOrderEvent(monitor.OrderRefunded)
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_no": order.OrderNo,
		"amount":   order.TotalAmount.String(),
		"reason":   reason,
		"policy":   s.opts.RefundPolicy,
	}).Info("order refunded")
	return order, nil
}

// UpdateStatus changes the fulfilment status
func (s *orderService) UpdateStatus(ctx context.Context, actor *session.Identity, orderID uint64, status string) (*model.Order, error) {
	if status == model.OrderStatusCancelled {
		return nil, utils.NewError(utils.CodeInvalidParam, "orders are cancelled through a refund")
	}
	if !model.IsFulfilmentStatus(status) {
		return nil, utils.NewError(utils.CodeInvalidParam, fmt.Sprintf("unknown order status %q", status))
	}

	order, err := s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, asAppError(err)
	}
	if err := s.checkManage(ctx, actor, order); err != nil {
		return nil, err
	}

	if order.IsCancelled() {
		return nil, utils.NewError(utils.CodeInvalidState, "order is cancelled")
	}
	if order.OrderStatus == status {
		return order, nil
	}
	if s.opts.StatusPolicy == config.StatusStrict {
		if !order.IsPaid() {
			return nil, utils.NewError(utils.CodeInvalidState,
				fmt.Sprintf("order payment is %s", order.PaymentStatus))
		}
		if !model.IsForwardTransition(order.OrderStatus, status) {
			return nil, utils.NewError(utils.CodeInvalidState,
				fmt.Sprintf("cannot move order from %s to %s", order.OrderStatus, status))
		}
	}

	updated, err := s.repos.Orders.UpdateOrderStatus(ctx, orderID, order.OrderStatus, status)
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	if !updated {
		return nil, utils.NewError(utils.CodeInvalidState, "order changed concurrently, retry")
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_no": order.OrderNo,
		"from":     order.OrderStatus,
		"to":       status,
		"actor":    actor.Username,
		"role":     actor.Capability.String(),
	}).Info("order status updated")

	order.OrderStatus = status
	return order, nil
}

// HandlePaymentEvent handles a gateway callback
func (s *orderService) HandlePaymentEvent(ctx context.Context, event *model.PaymentEvent) error {
	if event.RequestID != "" {
		ctx = log.ContextWithRequestID(ctx, event.RequestID)
	}

	switch event.Status {
	case model.PaymentEventCompleted:
		_, err := s.CompletePayment(ctx, event.OrderID, event.TransactionRef)
		return err
	case model.PaymentEventCancelled:
		return s.CancelPendingPayment(ctx, event.OrderID)
	case model.PaymentEventFailed:
		return s.FailPayment(ctx, event.OrderID, event.Reason)
	default:
		return utils.NewError(utils.CodeInvalidParam, fmt.Sprintf("unknown payment status %q", event.Status))
	}
}

// HandleExpiredOrders cancels abandoned payments, one batch per call
func (s *orderService) HandleExpiredOrders(ctx context.Context, now time.Time) (int, error) {
	orders, err := s.repos.Orders.ListExpiredPending(ctx, now.Add(-s.opts.PaymentTimeout), s.opts.SweepBatchSize)
	if err != nil {
		return 0, utils.DatabaseError(err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	cancelled := 0
	for _, order := range orders {
		if err := s.CancelPendingPayment(ctx, order.ID); err != nil {
			// a callback may have settled it in the meantime
			log.WithContext(ctx).WithFields(map[string]interface{}{
				"order_no": order.OrderNo,
				"error":    err.Error(),
			}).Warn("failed to cancel expired order")
			continue
		}
		cancelled++
	}

	s.metrics.RecordSwept(cancelled)
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"found":     len(orders),
		"cancelled": cancelled,
	}).Info("expired orders processed")
	return cancelled, nil
}

// GetOrder gets an order the actor may see
func (s *orderService) GetOrder(ctx context.Context, actor *session.Identity, orderID uint64) (*model.Order, error) {
	order, err := s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, asAppError(err)
	}

	if actor.Is(session.CapabilityCustomer) {
		if order.UserID != actor.UserID {
			// do not reveal other customers' orders
			return nil, utils.ErrOrderNotFound
		}
		return order, nil
	}
	if err := s.checkManage(ctx, actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID uint64, filter repository.OrderFilter) ([]*model.Order, int64, error) {
	filter.UserID = userID
	filter.ShopID = 0
	return s.ListOrders(ctx, filter)
}

func (s *orderService) ListShopOrders(ctx context.Context, traderID uint64, filter repository.OrderFilter) ([]*model.Order, int64, error) {
	shop, err := s.repos.Shops.GetByTraderID(ctx, traderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, 0, utils.ErrShopNotFound
	}
	if err != nil {
		return nil, 0, utils.DatabaseError(err)
	}

	filter.ShopID = shop.ID
	filter.UserID = 0
	return s.ListOrders(ctx, filter)
}

func (s *orderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*model.Order, int64, error) {
	orders, total, err := s.repos.Orders.List(ctx, filter)
	if err != nil {
		return nil, 0, utils.DatabaseError(err)
	}
	return orders, total, nil
}

// checkManage allows admins on every order and traders on orders holding
// at least one item of their shop
func (s *orderService) checkManage(ctx context.Context, actor *session.Identity, order *model.Order) error {
	switch {
	case actor.Is(session.CapabilityAdmin):
		return nil
	case actor.Is(session.CapabilityTrader):
		shop, err := s.repos.Shops.GetByTraderID(ctx, actor.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrForbidden
		}
		if err != nil {
			return utils.DatabaseError(err)
		}
		if !order.HasShop(shop.ID) {
			return utils.NewError(utils.CodeForbidden, "order has no items from your shop")
		}
		return nil
	default:
		return utils.ErrForbidden
	}
}

// restoreStock puts every item of order back on the shelf
func restoreStock(ctx context.Context, tx *repository.Repositories, order *model.Order, remark string) error {
	for _, item := range order.Items {
		if err := tx.Products.IncrStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
		if err := tx.StockLogs.Create(ctx, &model.StockLog{
			ProductID: item.ProductID,
			Operation: model.StockOpIncrement,
			Quantity:  item.Quantity,
			OrderNo:   &order.OrderNo,
			Operator:  "system",
			Remark:    remark,
		}); err != nil {
			return err
		}
	}
	return nil
}

func cartLines(ctx context.Context, tx *repository.Repositories, userID uint64) ([]LineItem, error) {
	cart, err := tx.Carts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	lines := make([]LineItem, 0, len(cart))
	for _, item := range cart {
		lines = append(lines, LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines, nil
}

// mergeLines folds duplicate products together and sorts by product id
func mergeLines(lines []LineItem) ([]LineItem, error) {
	if len(lines) == 0 {
		return nil, utils.NewError(utils.CodeInvalidParam, "order has no items")
	}

	qty := make(map[uint64]int, len(lines))
	for _, line := range lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return nil, utils.NewError(utils.CodeInvalidParam, "every item needs a product and a positive quantity")
		}
		qty[line.ProductID] += line.Quantity
	}

	merged := make([]LineItem, 0, len(qty))
	for id, q := range qty {
		merged = append(merged, LineItem{ProductID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

// asAppError keeps business errors and hides datastore errors behind the generic one
func asAppError(err error) error {
	if _, ok := utils.IsAppError(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrOrderNotFound
	}
	return utils.DatabaseError(err)
}
