package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// ProductRequest trader request to create or edit a listing
type ProductRequest struct {
	CategoryID    uint64          `json:"category_id" binding:"required"`
	Name          string          `json:"name" binding:"required,max=200"`
	Description   string          `json:"description" binding:"max=5000"`
	Price         decimal.Decimal `json:"price" binding:"positive"`
	StockQuantity int             `json:"stock_quantity" binding:"gte=0"`
}

// CatalogService product catalog and stock ledger
type CatalogService interface {
	CreateProduct(ctx context.Context, actor *session.Identity, req *ProductRequest) (*model.Product, error)
	// UpdateProduct edits listing fields; stock goes through SetStock
	UpdateProduct(ctx context.Context, actor *session.Identity, productID uint64, req *ProductRequest) (*model.Product, error)
	SetStock(ctx context.Context, actor *session.Identity, productID uint64, quantity int) (*model.Product, error)
	SetStatus(ctx context.Context, actor *session.Identity, productID uint64, status string) (*model.Product, error)

	GetProduct(ctx context.Context, productID uint64) (*model.Product, error)
	ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*model.Product, int64, error)
	// ListShopProducts lists the caller's own shop, inactive listings included
	ListShopProducts(ctx context.Context, actor *session.Identity, filter repository.ProductFilter) ([]*model.Product, int64, error)
	ListCategories(ctx context.Context) ([]*model.Category, error)
	StockHistory(ctx context.Context, actor *session.Identity, productID uint64, limit int) ([]model.StockLog, error)
}

type catalogService struct {
	repos *repository.Repositories
}

// NewCatalogService creates a catalog service
func NewCatalogService(repos *repository.Repositories) CatalogService {
	return &catalogService{repos: repos}
}

func (s *catalogService) CreateProduct(ctx context.Context, actor *session.Identity, req *ProductRequest) (*model.Product, error) {
	if err := checkProductRequest(req); err != nil {
		return nil, err
	}

	shop, err := s.traderShop(ctx, s.repos, actor)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	product := &model.Product{
		ShopID:        shop.ID,
		CategoryID:    req.CategoryID,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Price:         req.Price.Round(2),
		StockQuantity: req.StockQuantity,
		Status:        model.ProductStatusActive,
		Rating:        decimal.Zero,
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Products.Create(ctx, product); err != nil {
			return err
		}
		return tx.StockLogs.Create(ctx, &model.StockLog{
			ProductID: product.ID,
			Operation: model.StockOpSet,
			Quantity:  product.StockQuantity,
			Operator:  actor.Username,
			Remark:    "initial stock",
		})
	})
	if err != nil {
		return nil, utils.DatabaseError(err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": product.ID,
		"shop_id":    shop.ID,
		"price":      product.Price.String(),
		"stock":      product.StockQuantity,
	}).Info("product created")
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, actor *session.Identity, productID uint64, req *ProductRequest) (*model.Product, error) {
	if err := checkProductRequest(req); err != nil {
		return nil, err
	}

	product, err := s.ownedProduct(ctx, s.repos, actor, productID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	product.CategoryID = req.CategoryID
	product.Name = strings.TrimSpace(req.Name)
	product.Description = req.Description
	product.Price = req.Price.Round(2)

	// order items keep their own price snapshot, so a price edit never reaches them
	if err := s.repos.Products.UpdateDetails(ctx, product); err != nil {
		return nil, utils.DatabaseError(err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": product.ID,
		"price":      product.Price.String(),
	}).Info("product updated")
	return product, nil
}

func (s *catalogService) SetStock(ctx context.Context, actor *session.Identity, productID uint64, quantity int) (*model.Product, error) {
	if quantity < 0 {
		return nil, utils.NewError(utils.CodeInvalidParam, "stock quantity must be non-negative")
	}

	var product *model.Product
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		p, err := s.ownedProduct(ctx, tx, actor, productID)
		if err != nil {
			return err
		}
		if err := tx.Products.SetStock(ctx, p.ID, quantity); err != nil {
			return err
		}
		if err := tx.StockLogs.Create(ctx, &model.StockLog{
			ProductID: p.ID,
			Operation: model.StockOpSet,
			Quantity:  quantity,
			Operator:  actor.Username,
			Remark:    "manual adjustment",
		}); err != nil {
			return err
		}
		p.StockQuantity = quantity
		product = p
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": productID,
		"stock":      quantity,
		"operator":   actor.Username,
	}).Info("stock set")
	return product, nil
}

func (s *catalogService) SetStatus(ctx context.Context, actor *session.Identity, productID uint64, status string) (*model.Product, error) {
	if status != model.ProductStatusActive && status != model.ProductStatusInactive {
		return nil, utils.NewError(utils.CodeInvalidParam, "status must be active or inactive")
	}

	product, err := s.ownedProduct(ctx, s.repos, actor, productID)
	if err != nil {
		return nil, err
	}

	locked := product.ModerationLocked
	if actor.Is(session.CapabilityAdmin) {
		// an admin reactivation lifts the moderation lock
		if status == model.ProductStatusActive {
			locked = false
		}
	} else if locked && status == model.ProductStatusActive {
		return nil, utils.NewError(utils.CodeForbidden, "product was disabled by moderation")
	}

	if err := s.repos.Products.SetStatus(ctx, product.ID, status, locked); err != nil {
		return nil, mapError(err)
	}
	product.Status = status
	product.ModerationLocked = locked

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": product.ID,
		"status":     status,
		"operator":   actor.Username,
	}).Info("product status changed")
	return product, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID uint64) (*model.Product, error) {
	product, err := s.repos.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, mapError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*model.Product, int64, error) {
	products, total, err := s.repos.Products.List(ctx, filter)
	if err != nil {
		return nil, 0, utils.DatabaseError(err)
	}
	return products, total, nil
}

func (s *catalogService) ListShopProducts(ctx context.Context, actor *session.Identity, filter repository.ProductFilter) ([]*model.Product, int64, error) {
	shop, err := s.traderShop(ctx, s.repos, actor)
	if err != nil {
		return nil, 0, err
	}
	filter.ShopID = shop.ID
	return s.ListProducts(ctx, filter)
}

func (s *catalogService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.repos.Products.ListCategories(ctx)
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	return categories, nil
}

func (s *catalogService) StockHistory(ctx context.Context, actor *session.Identity, productID uint64, limit int) ([]model.StockLog, error) {
	if _, err := s.ownedProduct(ctx, s.repos, actor, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	logs, err := s.repos.StockLogs.ListByProduct(ctx, productID, limit)
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	return logs, nil
}

// traderShop loads the shop of an active trader
func (s *catalogService) traderShop(ctx context.Context, repos *repository.Repositories, actor *session.Identity) (*model.Shop, error) {
	if !actor.Is(session.CapabilityTrader) {
		return nil, utils.ErrForbidden
	}

	user, err := repos.Users.GetByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrUserNotFound
	}
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	if !user.IsActive() {
		return nil, utils.ErrAccountDisabled
	}

	shop, err := repos.Shops.GetByTraderID(ctx, actor.UserID)
	if err != nil {
		return nil, mapShopError(err)
	}
	return shop, nil
}

// ownedProduct loads a product the actor may manage: any product for an
// admin, the trader's own products otherwise
func (s *catalogService) ownedProduct(ctx context.Context, repos *repository.Repositories, actor *session.Identity, productID uint64) (*model.Product, error) {
	product, err := repos.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, mapError(err)
	}
	if actor.Is(session.CapabilityAdmin) {
		return product, nil
	}

	shop, err := s.traderShop(ctx, repos, actor)
	if err != nil {
		return nil, err
	}
	if product.ShopID != shop.ID {
		return nil, utils.NewError(utils.CodeForbidden, "product belongs to another shop")
	}
	return product, nil
}

func (s *catalogService) checkCategory(ctx context.Context, categoryID uint64) error {
	ok, err := s.repos.Products.CategoryExists(ctx, categoryID)
	if err != nil {
		return utils.DatabaseError(err)
	}
	if !ok {
		return utils.NewError(utils.CodeInvalidParam, "category does not exist")
	}
	return nil
}

func checkProductRequest(req *ProductRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return utils.NewError(utils.CodeInvalidParam, "name is required")
	case !req.Price.IsPositive():
		return utils.NewError(utils.CodeInvalidParam, "price must be positive")
	case req.StockQuantity < 0:
		return utils.NewError(utils.CodeInvalidParam, "stock quantity must be non-negative")
	}
	return nil
}

func mapError(err error) error {
	if _, ok := utils.IsAppError(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrProductNotFound
	}
	return utils.DatabaseError(err)
}

func mapShopError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrShopNotFound
	}
	return utils.DatabaseError(err)
}
