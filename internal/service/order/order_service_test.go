package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketplace/internal/config"
	"marketplace/internal/model"
	"marketplace/internal/payment"
	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/internal/testutil"
	"marketplace/pkg/snowflake"
	"marketplace/pkg/utils"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) error {
	args := m.Called(ctx, transactionRef, amount)
	return args.Error(0)
}

func amountOf(s string) interface{} {
	want := testutil.Money(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func identity(u *model.User) *session.Identity {
	c, _ := session.CapabilityFromRole(u.Role)
	return &session.Identity{UserID: u.ID, Username: u.Username, Capability: c}
}

type fixture struct {
	svc      OrderService
	db       *gorm.DB
	gateway  *mockGateway
	customer *model.User
	trader   *model.User
	shop     *model.Shop
	pen      *model.Product
	book     *model.Product
}

func defaultOptions() Options {
	return Options{
		PointsPerCurrencyUnit: 100,
		EarnRate:              decimal.RequireFromString("0.1"),
		TaxRate:               decimal.RequireFromString("0.08"),
		RefundPolicy:          config.RefundFinancialOnly,
		StatusPolicy:          config.StatusPermissive,
		PaymentTimeout:        30 * time.Minute,
	}
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.NewDB(t), opts)
}

func newFixtureOn(t *testing.T, db *gorm.DB, opts Options) *fixture {
	t.Helper()

	ids, err := snowflake.New(1)
	require.NoError(t, err)

	gw := &mockGateway{}
	f := &fixture{
		svc:     NewOrderService(repository.NewRepositories(db), gw, ids, nil, opts),
		db:      db,
		gateway: gw,
	}
	f.customer = testutil.CreateUser(t, db, "cathy", model.RoleCustomer, model.UserStatusActive, 1000)
	f.trader, f.shop = testutil.CreateTrader(t, db, "tom")
	f.pen = testutil.CreateProduct(t, db, f.shop.ID, "Pen", "2.50", 10)
	f.book = testutil.CreateProduct(t, db, f.shop.ID, "Book", "20.00", 2)
	return f
}

func (f *fixture) stock(t *testing.T, p *model.Product) int {
	return testutil.Reload[model.Product](t, f.db, p.ID).StockQuantity
}

func (f *fixture) points(t *testing.T) int64 {
	return testutil.Reload[model.User](t, f.db, f.customer.ID).LoyaltyPoints
}

func (f *fixture) checkout(t *testing.T) *model.Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), f.customer.ID, &CreateOrderRequest{
		Items: []LineItem{{ProductID: f.pen.ID, Quantity: 4}, {ProductID: f.book.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	return order
}

func TestComputeTotals(t *testing.T) {
	opts := defaultOptions()

	got := ComputeTotals(testutil.Money("100"), testutil.Money("20"), testutil.Money("5"), opts)
	assert.Equal(t, "6.00", got.Tax.StringFixed(2))
	assert.Equal(t, "81.00", got.Total.StringFixed(2))
	assert.Equal(t, int64(8), got.PointsEarned)

	got = ComputeTotals(testutil.Money("10"), testutil.Money("15"), decimal.Zero, opts)
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Total.IsZero())
	assert.Equal(t, int64(0), got.PointsEarned)
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	testutil.CreatePromo(t, f.db, "SAVE10", model.DiscountPercentage, "10", "0", 0)

	order, err := f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{
		Items: []LineItem{
			{ProductID: f.book.ID, Quantity: 1},
			{ProductID: f.pen.ID, Quantity: 3},
			{ProductID: f.pen.ID, Quantity: 1},
		},
		PromoCode:   " save10 ",
		PointsToUse: 200,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, order.OrderNo)
	assert.Equal(t, model.OrderStatusPending, order.OrderStatus)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "30.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "3.00", order.DiscountAmount.StringFixed(2))
	assert.Equal(t, "2.00", order.PointsDiscount.StringFixed(2))
	assert.Equal(t, "2.00", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "27.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, int64(200), order.PointsUsed)
	assert.Equal(t, int64(2), order.PointsEarned)
	require.NotNil(t, order.PromoCode)
	assert.Equal(t, "SAVE10", *order.PromoCode)

	require.Len(t, order.Items, 2)
	assert.Equal(t, f.pen.ID, order.Items[0].ProductID)
	assert.Equal(t, 4, order.Items[0].Quantity)
	assert.Equal(t, "10.00", order.Items[0].Subtotal.StringFixed(2))

	assert.Equal(t, 6, f.stock(t, f.pen))
	assert.Equal(t, 1, f.stock(t, f.book))
	assert.Equal(t, int64(800), f.points(t))

	var logs []model.StockLog
	require.NoError(t, f.db.Where("order_no = ?", order.OrderNo).Find(&logs).Error)
	assert.Len(t, logs, 2)
}

func TestCreateOrder_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	testutil.CreatePromo(t, f.db, "BIGSPEND", model.DiscountFixed, "5", "100", 0)

	assertUntouched := func(t *testing.T) {
		assert.Equal(t, 10, f.stock(t, f.pen))
		assert.Equal(t, 2, f.stock(t, f.book))
		assert.Equal(t, int64(1000), f.points(t))
		var count int64
		require.NoError(t, f.db.Model(&model.Order{}).Count(&count).Error)
		assert.Zero(t, count)
	}

	cases := []struct {
		name string
		req  *CreateOrderRequest
		want error
	}{
		{"NoItems", &CreateOrderRequest{}, utils.ErrInvalidParam},
		{"UnknownProduct", &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 1}, {ProductID: 999, Quantity: 1}}}, utils.ErrProductNotFound},
		{"InsufficientStock", &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 2}, {ProductID: f.book.ID, Quantity: 3}}}, utils.ErrStockNotEnough},
		{"PromoBelowMinimum", &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 1}}, PromoCode: "BIGSPEND"}, utils.ErrPromoInvalid},
		{"UnknownPromo", &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 1}}, PromoCode: "NOPE"}, utils.ErrPromoInvalid},
		{"PointsExceedAmount", &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 1}}, PointsToUse: 300}, utils.ErrInvalidParam},
		{"NegativePoints", &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 1}}, PointsToUse: -1}, utils.ErrInvalidParam},
		{"NotEnoughPoints", &CreateOrderRequest{Items: []LineItem{{ProductID: f.book.ID, Quantity: 1}}, PointsToUse: 1500}, utils.ErrPointsNotEnough},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, f.customer.ID, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assertUntouched(t)
		})
	}

	t.Run("InactiveProduct", func(t *testing.T) {
		require.NoError(t, f.db.Model(f.book).Update("status", model.ProductStatusInactive).Error)
		defer f.db.Model(f.book).Update("status", model.ProductStatusActive)

		_, err := f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{Items: []LineItem{{ProductID: f.book.ID, Quantity: 1}}})
		assert.ErrorIs(t, err, utils.ErrInvalidState)
		assertUntouched(t)
	})

	t.Run("DisabledCustomer", func(t *testing.T) {
		require.NoError(t, f.db.Model(f.customer).Update("status", model.UserStatusDisabled).Error)
		defer f.db.Model(f.customer).Update("status", model.UserStatusActive)

		_, err := f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 1}}})
		assert.ErrorIs(t, err, utils.ErrAccountDisabled)
		assertUntouched(t)
	})
}

func TestCreateOrder_ConcurrentStock(t *testing.T) {
	f := newFixtureOn(t, testutil.NewConcurrentDB(t), defaultOptions())
	lamp := testutil.CreateProduct(t, f.db, f.shop.ID, "Lamp", "15.00", 5)
	other := testutil.CreateUser(t, f.db, "carl", model.RoleCustomer, model.UserStatusActive, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, userID := range []uint64{f.customer.ID, other.ID} {
		wg.Add(1)
		go func(i int, userID uint64) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(context.Background(), userID, &CreateOrderRequest{
				Items: []LineItem{{ProductID: lamp.ID, Quantity: 3}},
			})
		}(i, userID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, utils.ErrStockNotEnough)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, f.stock(t, lamp))
}

func TestCreateOrder_FromCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	repos := repository.NewRepositories(f.db)
	require.NoError(t, repos.Carts.Upsert(ctx, f.customer.ID, f.pen.ID, 2))
	require.NoError(t, repos.Carts.Upsert(ctx, f.customer.ID, f.book.ID, 1))

	order, err := f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{FromCart: true})
	require.NoError(t, err)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, "25.00", order.Subtotal.StringFixed(2))

	cart, err := repos.Carts.List(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart)

	_, err = f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{FromCart: true})
	assert.ErrorIs(t, err, utils.ErrInvalidParam)
}

func TestCreateOrder_SnapshotSurvivesPriceChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	order := f.checkout(t)

	require.NoError(t, f.db.Model(f.pen).Updates(map[string]interface{}{"price": "9.99", "name": "Fancy Pen"}).Error)

	got, err := f.svc.GetOrder(ctx, identity(f.customer), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pen", got.Items[0].ProductName)
	assert.Equal(t, "2.50", got.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, order.TotalAmount.StringFixed(2), got.TotalAmount.StringFixed(2))
}

func TestCreateOrder_PromoCapCountsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	testutil.CreatePromo(t, f.db, "ONCE", model.DiscountFixed, "1", "0", 1)
	req := &CreateOrderRequest{Items: []LineItem{{ProductID: f.pen.ID, Quantity: 1}}, PromoCode: "ONCE"}

	_, err := f.svc.CreateOrder(ctx, f.customer.ID, req)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, f.customer.ID, req)
	var appErr *utils.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, utils.CodePromoInvalid, appErr.Code)
}

func TestCompletePayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	order := f.checkout(t)

	paid, err := f.svc.CompletePayment(ctx, order.ID, "TX-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, paid.PaymentStatus)
	assert.Equal(t, model.OrderStatusProcessing, paid.OrderStatus)
	assert.NotNil(t, paid.PaidAt)
	// 32.40 total earns 3 points
	assert.Equal(t, int64(3), paid.PointsEarned)
	assert.Equal(t, int64(1003), f.points(t))

	t.Run("ReplayIsIdempotent", func(t *testing.T) {
		again, err := f.svc.CompletePayment(ctx, order.ID, "TX-1")
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusCompleted, again.PaymentStatus)
		assert.Equal(t, int64(1003), f.points(t))
	})

	t.Run("DifferentReferenceRejected", func(t *testing.T) {
		_, err := f.svc.CompletePayment(ctx, order.ID, "TX-2")
		assert.ErrorIs(t, err, utils.ErrInvalidState)
	})

	t.Run("MissingReference", func(t *testing.T) {
		_, err := f.svc.CompletePayment(ctx, order.ID, " ")
		assert.ErrorIs(t, err, utils.ErrInvalidParam)
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		_, err := f.svc.CompletePayment(ctx, 999, "TX-3")
		assert.ErrorIs(t, err, utils.ErrOrderNotFound)
	})
}

func TestFailPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	order, err := f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{
		Items:       []LineItem{{ProductID: f.book.ID, Quantity: 2}},
		PointsToUse: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, f.book))

	require.NoError(t, f.svc.FailPayment(ctx, order.ID, "card declined"))
	require.NoError(t, f.svc.FailPayment(ctx, order.ID, "card declined"))

	failed := testutil.Reload[model.Order](t, f.db, order.ID)
	assert.Equal(t, model.PaymentStatusFailed, failed.PaymentStatus)
	assert.Equal(t, model.OrderStatusCancelled, failed.OrderStatus)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "card declined", *failed.FailureReason)
	assert.Equal(t, 2, f.stock(t, f.book))
	assert.Equal(t, int64(1000), f.points(t))

	_, err = f.svc.CompletePayment(ctx, order.ID, "TX-late")
	assert.ErrorIs(t, err, utils.ErrInvalidState)
}

func TestCancelPendingPayment_RestoresEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	repos := repository.NewRepositories(f.db)
	require.NoError(t, repos.Carts.Upsert(ctx, f.customer.ID, f.pen.ID, 3))

	order, err := f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{FromCart: true, PointsToUse: 100})
	require.NoError(t, err)
	assert.Equal(t, 7, f.stock(t, f.pen))
	assert.Equal(t, int64(900), f.points(t))

	require.NoError(t, f.svc.CancelPendingPayment(ctx, order.ID))

	assert.Equal(t, 10, f.stock(t, f.pen))
	assert.Equal(t, int64(1000), f.points(t))
	cart, err := repos.Carts.List(ctx, f.customer.ID)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, 3, cart[0].Quantity)

	var orders, items int64
	require.NoError(t, f.db.Model(&model.Order{}).Count(&orders).Error)
	require.NoError(t, f.db.Model(&model.OrderItem{}).Count(&items).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)

	assert.ErrorIs(t, f.svc.CancelPendingPayment(ctx, order.ID), utils.ErrOrderNotFound)
}

func TestCancelPendingPayment_PaidOrderRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	order := f.checkout(t)
	_, err := f.svc.CompletePayment(ctx, order.ID, "TX-1")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.CancelPendingPayment(ctx, order.ID), utils.ErrInvalidState)
	assert.Equal(t, 6, f.stock(t, f.pen))
}

func TestAdminRefund(t *testing.T) {
	ctx := context.Background()

	paidOrder := func(t *testing.T, f *fixture) *model.Order {
		order, err := f.svc.CreateOrder(ctx, f.customer.ID, &CreateOrderRequest{
			Items:       []LineItem{{ProductID: f.book.ID, Quantity: 1}},
			PointsToUse: 100,
		})
		require.NoError(t, err)
		_, err = f.svc.CompletePayment(ctx, order.ID, "TX-9")
		require.NoError(t, err)
		// 19.00 taxed at 8% is 20.52 and earns 2 points
		assert.Equal(t, int64(902), f.points(t))
		return order
	}

	t.Run("FinancialOnly", func(t *testing.T) {
		f := newFixture(t, defaultOptions())
		order := paidOrder(t, f)
		f.gateway.On("Refund", mock.Anything, "TX-9", amountOf("20.52")).Return(nil).Once()

		refunded, err := f.svc.AdminRefund(ctx, order.ID, "damaged in transit")
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusRefunded, refunded.PaymentStatus)
		assert.Equal(t, model.OrderStatusCancelled, refunded.OrderStatus)
		require.NotNil(t, refunded.RefundReason)
		assert.Equal(t, "damaged in transit", *refunded.RefundReason)

		assert.Equal(t, 1, f.stock(t, f.book))
		assert.Equal(t, int64(902), f.points(t))
		f.gateway.AssertExpectations(t)

		_, err = f.svc.AdminRefund(ctx, order.ID, "again")
		assert.ErrorIs(t, err, utils.ErrInvalidState)
	})

	t.Run("RestoreInventory", func(t *testing.T) {
		opts := defaultOptions()
		opts.RefundPolicy = config.RefundRestoreInventory
		f := newFixture(t, opts)
		order := paidOrder(t, f)
		f.gateway.On("Refund", mock.Anything, "TX-9", amountOf("20.52")).Return(nil).Once()

		_, err := f.svc.AdminRefund(ctx, order.ID, "customer request")
		require.NoError(t, err)
		assert.Equal(t, 2, f.stock(t, f.book))
		assert.Equal(t, int64(1000), f.points(t))
	})

	t.Run("GatewayFailureRollsBack", func(t *testing.T) {
		opts := defaultOptions()
		opts.RefundPolicy = config.RefundRestoreInventory
		f := newFixture(t, opts)
		order := paidOrder(t, f)
		f.gateway.On("Refund", mock.Anything, "TX-9", mock.Anything).Return(payment.ErrUnavailable).Once()

		_, err := f.svc.AdminRefund(ctx, order.ID, "customer request")
		assert.ErrorIs(t, err, utils.ErrGatewayError)

		still := testutil.Reload[model.Order](t, f.db, order.ID)
		assert.Equal(t, model.PaymentStatusCompleted, still.PaymentStatus)
		assert.Equal(t, model.OrderStatusProcessing, still.OrderStatus)
		assert.Equal(t, 1, f.stock(t, f.book))
		assert.Equal(t, int64(902), f.points(t))
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t, defaultOptions())
		order := f.checkout(t)

		_, err := f.svc.AdminRefund(ctx, order.ID, "")
		assert.ErrorIs(t, err, utils.ErrInvalidParam)
		_, err = f.svc.AdminRefund(ctx, order.ID, "unpaid")
		assert.ErrorIs(t, err, utils.ErrInvalidState)
		_, err = f.svc.AdminRefund(ctx, 999, "missing")
		assert.ErrorIs(t, err, utils.ErrOrderNotFound)
		f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	admin := &session.Identity{UserID: 100, Username: "root", Capability: session.CapabilityAdmin}

	t.Run("Permissive", func(t *testing.T) {
		f := newFixture(t, defaultOptions())
		order := f.checkout(t)

		got, err := f.svc.UpdateStatus(ctx, identity(f.trader), order.ID, model.OrderStatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusDelivered, got.OrderStatus)

		got, err = f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusShipped)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusShipped, got.OrderStatus)

		_, err = f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusCancelled)
		assert.ErrorIs(t, err, utils.ErrInvalidParam)
		_, err = f.svc.UpdateStatus(ctx, admin, order.ID, "lost")
		assert.ErrorIs(t, err, utils.ErrInvalidParam)
	})

	t.Run("Strict", func(t *testing.T) {
		opts := defaultOptions()
		opts.StatusPolicy = config.StatusStrict
		f := newFixture(t, opts)

		unpaid := f.checkout(t)
		_, err := f.svc.UpdateStatus(ctx, admin, unpaid.ID, model.OrderStatusProcessing)
		assert.ErrorIs(t, err, utils.ErrInvalidState)
		_, err = f.svc.UpdateStatus(ctx, admin, unpaid.ID, model.OrderStatusDelivered)
		assert.ErrorIs(t, err, utils.ErrInvalidState)
		assert.Equal(t, model.OrderStatusPending, testutil.Reload[model.Order](t, f.db, unpaid.ID).OrderStatus)

		order := f.checkout(t)
		_, err = f.svc.CompletePayment(ctx, order.ID, "TX-S")
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusDelivered)
		assert.ErrorIs(t, err, utils.ErrInvalidState)

		_, err = f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusShipped)
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusProcessing)
		assert.ErrorIs(t, err, utils.ErrInvalidState)

		got, err := f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusShipped)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusShipped, got.OrderStatus)

		got, err = f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusDelivered, got.OrderStatus)
	})

	t.Run("PaymentKeepsLaterStatus", func(t *testing.T) {
		f := newFixture(t, defaultOptions())
		order := f.checkout(t)

		_, err := f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusDelivered)
		require.NoError(t, err)

		paid, err := f.svc.CompletePayment(ctx, order.ID, "TX-L")
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusDelivered, paid.OrderStatus)
		assert.Equal(t, model.PaymentStatusCompleted, paid.PaymentStatus)
	})

	t.Run("Permissions", func(t *testing.T) {
		f := newFixture(t, defaultOptions())
		order := f.checkout(t)
		stranger, _ := testutil.CreateTrader(t, f.db, "sam")

		_, err := f.svc.UpdateStatus(ctx, identity(stranger), order.ID, model.OrderStatusShipped)
		assert.ErrorIs(t, err, utils.ErrForbidden)
		_, err = f.svc.UpdateStatus(ctx, identity(f.customer), order.ID, model.OrderStatusShipped)
		assert.ErrorIs(t, err, utils.ErrForbidden)
	})

	t.Run("CancelledIsTerminal", func(t *testing.T) {
		f := newFixture(t, defaultOptions())
		order := f.checkout(t)
		require.NoError(t, f.svc.FailPayment(ctx, order.ID, "declined"))

		_, err := f.svc.UpdateStatus(ctx, admin, order.ID, model.OrderStatusShipped)
		assert.ErrorIs(t, err, utils.ErrInvalidState)
	})
}

func TestHandlePaymentEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	first := f.checkout(t)
	second := f.checkout(t)

	require.NoError(t, f.svc.HandlePaymentEvent(ctx, &model.PaymentEvent{
		OrderID: first.ID, TransactionRef: "TX-1", Status: model.PaymentEventCompleted, RequestID: "req-1",
	}))
	require.NoError(t, f.svc.HandlePaymentEvent(ctx, &model.PaymentEvent{
		OrderID: second.ID, Status: model.PaymentEventCancelled,
	}))

	assert.True(t, testutil.Reload[model.Order](t, f.db, first.ID).IsPaid())
	assert.Equal(t, 6, f.stock(t, f.pen))

	err := f.svc.HandlePaymentEvent(ctx, &model.PaymentEvent{OrderID: first.ID, Status: "unknown"})
	assert.ErrorIs(t, err, utils.ErrInvalidParam)
}

func TestHandleExpiredOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	stale := f.checkout(t)
	paid := f.checkout(t)
	_, err := f.svc.CompletePayment(ctx, paid.ID, "TX-1")
	require.NoError(t, err)

	n, err := f.svc.HandleExpiredOrders(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.HandleExpiredOrders(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int64
	require.NoError(t, f.db.Model(&model.Order{}).Where("id = ?", stale.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, 6, f.stock(t, f.pen))
}

func TestGetAndListOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOptions())
	order := f.checkout(t)
	other := testutil.CreateUser(t, f.db, "carl", model.RoleCustomer, model.UserStatusActive, 0)
	stranger, _ := testutil.CreateTrader(t, f.db, "sam")

	_, err := f.svc.GetOrder(ctx, identity(f.customer), order.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, identity(f.trader), order.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, identity(other), order.ID)
	assert.ErrorIs(t, err, utils.ErrOrderNotFound)
	_, err = f.svc.GetOrder(ctx, identity(stranger), order.ID)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	orders, total, err := f.svc.ListUserOrders(ctx, f.customer.ID, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)

	_, total, err = f.svc.ListUserOrders(ctx, other.ID, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, total, err = f.svc.ListShopOrders(ctx, f.trader.ID, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, _, err = f.svc.ListShopOrders(ctx, other.ID, repository.OrderFilter{})
	assert.ErrorIs(t, err, utils.ErrShopNotFound)
}
