package cart

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// ItemRequest product and quantity to put in the cart
type ItemRequest struct {
	ProductID uint64 `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=999"`
}

// View cart lines with their current prices
type View struct {
	Items    []*model.CartItem `json:"items"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	// Unavailable lists lines whose product is inactive or short on stock
	Unavailable []uint64 `json:"unavailable,omitempty"`
}

// CartService shopping cart service
type CartService interface {
	// AddItem merges quantity into an existing line
	AddItem(ctx context.Context, userID uint64, req *ItemRequest) error
	// UpdateQuantity sets a line; zero removes it
	UpdateQuantity(ctx context.Context, userID, productID uint64, quantity int) error
	RemoveItem(ctx context.Context, userID, productID uint64) error
	List(ctx context.Context, userID uint64) (*View, error)
	Clear(ctx context.Context, userID uint64) error
}

type cartService struct {
	repos *repository.Repositories
}

// NewCartService creates a cart service
func NewCartService(repos *repository.Repositories) CartService {
	return &cartService{repos: repos}
}

func (s *cartService) AddItem(ctx context.Context, userID uint64, req *ItemRequest) error {
	if req.Quantity <= 0 {
		return utils.NewError(utils.CodeInvalidParam, "quantity must be positive")
	}
	if err := s.checkAvailable(ctx, req.ProductID, req.Quantity); err != nil {
		return err
	}

	if err := s.repos.Carts.Upsert(ctx, userID, req.ProductID, req.Quantity); err != nil {
		return utils.DatabaseError(err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":    userID,
		"product_id": req.ProductID,
		"quantity":   req.Quantity,
	}).Debug("cart item added")
	return nil
}

func (s *cartService) UpdateQuantity(ctx context.Context, userID, productID uint64, quantity int) error {
	if quantity < 0 {
		return utils.NewError(utils.CodeInvalidParam, "quantity must be non-negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	if err := s.checkAvailable(ctx, productID, quantity); err != nil {
		return err
	}

	err := s.repos.Carts.SetQuantity(ctx, userID, productID, quantity)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.NewError(utils.CodeProductNotFound, "product is not in the cart")
	}
	if err != nil {
		return utils.DatabaseError(err)
	}
	return nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID uint64) error {
	err := s.repos.Carts.Delete(ctx, userID, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.NewError(utils.CodeProductNotFound, "product is not in the cart")
	}
	if err != nil {
		return utils.DatabaseError(err)
	}
	return nil
}

func (s *cartService) List(ctx context.Context, userID uint64) (*View, error) {
	items, err := s.repos.Carts.List(ctx, userID)
	if err != nil {
		return nil, utils.DatabaseError(err)
	}

	view := &View{Items: items, Subtotal: decimal.Zero}
	for _, item := range items {
		if item.Product == nil || !item.Product.IsActive() || !item.Product.HasStock(item.Quantity) {
			view.Unavailable = append(view.Unavailable, item.ProductID)
			continue
		}
		view.Subtotal = view.Subtotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	view.Subtotal = view.Subtotal.Round(2)
	return view, nil
}

func (s *cartService) Clear(ctx context.Context, userID uint64) error {
	if err := s.repos.Carts.Clear(ctx, userID); err != nil {
		return utils.DatabaseError(err)
	}
	return nil
}

// checkAvailable is advisory: checkout re-checks stock with a conditional update
func (s *cartService) checkAvailable(ctx context.Context, productID uint64, quantity int) error {
	product, err := s.repos.Products.GetByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrProductNotFound
	}
	if err != nil {
		return utils.DatabaseError(err)
	}
	if !product.IsActive() {
		return utils.NewError(utils.CodeInvalidState, "product is not available")
	}
	if !product.HasStock(quantity) {
		return utils.ErrStockNotEnough
	}
	return nil
}
