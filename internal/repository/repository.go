package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound the requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientStock a conditional stock decrement matched no row
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientPoints a conditional points debit matched no row
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
)

// Repositories bundles every repository over one gorm handle so a service can
// run a group of writes in a single transaction
type Repositories struct {
	db *gorm.DB

	Users      UserRepository
	Shops      ShopRepository
	Products   ProductRepository
	Carts      CartRepository
	Orders     OrderRepository
	Promos     PromoRepository
	Violations ViolationRepository
	StockLogs  StockLogRepository
}

// NewRepositories creates the repository bundle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:         db,
		Users:      NewUserRepository(db),
		Shops:      NewShopRepository(db),
		Products:   NewProductRepository(db),
		Carts:      NewCartRepository(db),
		Orders:     NewOrderRepository(db),
		Promos:     NewPromoRepository(db),
		Violations: NewViolationRepository(db),
		StockLogs:  NewStockLogRepository(db),
	}
}

// Transaction runs fn with a bundle bound to one database transaction.
// Returning an error from fn rolls back every write made through tx.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// DB returns the underlying handle
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Pagination page number and size, both 1-based
type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) scope(db *gorm.DB) *gorm.DB {
	page, size := p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	return db.Offset((page - 1) * size).Limit(size)
}

// notFound maps gorm's not-found error to ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
