package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/service/auth"
	"marketplace/internal/service/catalog"
	"marketplace/internal/service/moderation"
	"marketplace/internal/service/order"
	"marketplace/internal/service/promo"
	"marketplace/internal/session"
)

// MockAuthService is a mock implementation of auth.AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, req *auth.RegisterRequest) (*model.User, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, req *auth.LoginRequest, ip string) (*auth.TokenResponse, error) {
	args := m.Called(ctx, req, ip)
	resp, _ := args.Get(0).(*auth.TokenResponse)
	return resp, args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, identity *session.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *MockAuthService) Authenticate(ctx context.Context, token string) (*session.Identity, error) {
	args := m.Called(ctx, token)
	identity, _ := args.Get(0).(*session.Identity)
	return identity, args.Error(1)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
	args := m.Called(ctx, refreshToken)
	resp, _ := args.Get(0).(*auth.TokenResponse)
	return resp, args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	return m.Called(ctx, userID, oldPassword, newPassword).Error(0)
}

// MockCatalogService is a mock implementation of catalog.CatalogService
type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) CreateProduct(ctx context.Context, actor *session.Identity, req *catalog.ProductRequest) (*model.Product, error) {
	args := m.Called(ctx, actor, req)
	p, _ := args.Get(0).(*model.Product)
	return p, args.Error(1)
}

func (m *MockCatalogService) UpdateProduct(ctx context.Context, actor *session.Identity, productID uint64, req *catalog.ProductRequest) (*model.Product, error) {
	args := m.Called(ctx, actor, productID, req)
	p, _ := args.Get(0).(*model.Product)
	return p, args.Error(1)
}

func (m *MockCatalogService) SetStock(ctx context.Context, actor *session.Identity, productID uint64, quantity int) (*model.Product, error) {
	args := m.Called(ctx, actor, productID, quantity)
	p, _ := args.Get(0).(*model.Product)
	return p, args.Error(1)
}

func (m *MockCatalogService) SetStatus(ctx context.Context, actor *session.Identity, productID uint64, status string) (*model.Product, error) {
	args := m.Called(ctx, actor, productID, status)
	p, _ := args.Get(0).(*model.Product)
	return p, args.Error(1)
}

func (m *MockCatalogService) GetProduct(ctx context.Context, productID uint64) (*model.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(*model.Product)
	return p, args.Error(1)
}

func (m *MockCatalogService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*model.Product, int64, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]*model.Product)
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *MockCatalogService) ListShopProducts(ctx context.Context, actor *session.Identity, filter repository.ProductFilter) ([]*model.Product, int64, error) {
	args := m.Called(ctx, actor, filter)
	list, _ := args.Get(0).([]*model.Product)
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *MockCatalogService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*model.Category)
	return list, args.Error(1)
}

func (m *MockCatalogService) StockHistory(ctx context.Context, actor *session.Identity, productID uint64, limit int) ([]model.StockLog, error) {
	args := m.Called(ctx, actor, productID, limit)
	logs, _ := args.Get(0).([]model.StockLog)
	return logs, args.Error(1)
}

// MockOrderService is a mock implementation of order.OrderService
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, customerID uint64, req *order.CreateOrderRequest) (*model.Order, error) {
	args := m.Called(ctx, customerID, req)
	o, _ := args.Get(0).(*model.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) CompletePayment(ctx context.Context, orderID uint64, transactionRef string) (*model.Order, error) {
	args := m.Called(ctx, orderID, transactionRef)
	o, _ := args.Get(0).(*model.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) FailPayment(ctx context.Context, orderID uint64, reason string) error {
	return m.Called(ctx, orderID, reason).Error(0)
}

func (m *MockOrderService) CancelPendingPayment(ctx context.Context, orderID uint64) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *MockOrderService) AdminRefund(ctx context.Context, orderID uint64, reason string) (*model.Order, error) {
	args := m.Called(ctx, orderID, reason)
	o, _ := args.Get(0).(*model.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, actor *session.Identity, orderID uint64, status string) (*model.Order, error) {
	args := m.Called(ctx, actor, orderID, status)
	o, _ := args.Get(0).(*model.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) HandlePaymentEvent(ctx context.Context, event *model.PaymentEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockOrderService) HandleExpiredOrders(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor *session.Identity, orderID uint64) (*model.Order, error) {
	args := m.Called(ctx, actor, orderID)
	o, _ := args.Get(0).(*model.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) ListUserOrders(ctx context.Context, userID uint64, filter repository.OrderFilter) ([]*model.Order, int64, error) {
	args := m.Called(ctx, userID, filter)
	list, _ := args.Get(0).([]*model.Order)
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderService) ListShopOrders(ctx context.Context, traderID uint64, filter repository.OrderFilter) ([]*model.Order, int64, error) {
	args := m.Called(ctx, traderID, filter)
	list, _ := args.Get(0).([]*model.Order)
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*model.Order, int64, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]*model.Order)
	return list, args.Get(1).(int64), args.Error(2)
}

// MockPromoService is a mock implementation of promo.PromoService
type MockPromoService struct {
	mock.Mock
}

func (m *MockPromoService) Validate(ctx context.Context, userID uint64, code string, subtotal decimal.Decimal, now time.Time) (*promo.Result, error) {
	args := m.Called(ctx, userID, code, subtotal, now)
	r, _ := args.Get(0).(*promo.Result)
	return r, args.Error(1)
}

func (m *MockPromoService) Create(ctx context.Context, req *promo.CreateRequest) (*model.PromoCode, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*model.PromoCode)
	return p, args.Error(1)
}

func (m *MockPromoService) Get(ctx context.Context, id uint64) (*model.PromoCode, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.PromoCode)
	return p, args.Error(1)
}

func (m *MockPromoService) List(ctx context.Context, filter repository.PromoFilter) ([]*model.PromoCode, int64, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]*model.PromoCode)
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *MockPromoService) SetActive(ctx context.Context, id uint64, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *MockPromoService) Delete(ctx context.Context, id uint64) error {
	return m.Called(ctx, id).Error(0)
}

// MockModerationService is a mock implementation of moderation.ModerationService
type MockModerationService struct {
	mock.Mock
}

func (m *MockModerationService) RecordViolation(ctx context.Context, actor *session.Identity, req *moderation.RecordRequest) (*model.Violation, error) {
	args := m.Called(ctx, actor, req)
	v, _ := args.Get(0).(*model.Violation)
	return v, args.Error(1)
}

func (m *MockModerationService) DisableProductForViolation(ctx context.Context, actor *session.Identity, req *moderation.DisableRequest) (*moderation.DisableResult, error) {
	args := m.Called(ctx, actor, req)
	r, _ := args.Get(0).(*moderation.DisableResult)
	return r, args.Error(1)
}

func (m *MockModerationService) ResolveViolation(ctx context.Context, actor *session.Identity, violationID uint64, action, notes string) (*model.Violation, error) {
	args := m.Called(ctx, actor, violationID, action, notes)
	v, _ := args.Get(0).(*model.Violation)
	return v, args.Error(1)
}

func (m *MockModerationService) DismissViolation(ctx context.Context, actor *session.Identity, violationID uint64, notes string) (*model.Violation, error) {
	args := m.Called(ctx, actor, violationID, notes)
	v, _ := args.Get(0).(*model.Violation)
	return v, args.Error(1)
}

func (m *MockModerationService) ResetViolations(ctx context.Context, actor *session.Identity, traderID uint64) error {
	return m.Called(ctx, actor, traderID).Error(0)
}

func (m *MockModerationService) EnableAccount(ctx context.Context, actor *session.Identity, userID uint64) error {
	return m.Called(ctx, actor, userID).Error(0)
}

func (m *MockModerationService) ApproveTrader(ctx context.Context, actor *session.Identity, userID uint64) (*model.Shop, error) {
	args := m.Called(ctx, actor, userID)
	s, _ := args.Get(0).(*model.Shop)
	return s, args.Error(1)
}

func (m *MockModerationService) RejectTrader(ctx context.Context, actor *session.Identity, userID uint64) error {
	return m.Called(ctx, actor, userID).Error(0)
}

func (m *MockModerationService) GetViolation(ctx context.Context, id uint64) (*model.Violation, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*model.Violation)
	return v, args.Error(1)
}

func (m *MockModerationService) ListViolations(ctx context.Context, filter repository.ViolationFilter) ([]*model.Violation, int64, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]*model.Violation)
	return list, args.Get(1).(int64), args.Error(2)
}

func (m *MockModerationService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]*model.User)
	return list, args.Get(1).(int64), args.Error(2)
}
