package repository

import (
	"context"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// ProductRepository product repository interface
type ProductRepository interface {
	// Create product
	Create(ctx context.Context, product *model.Product) error

	// Get product by ID
	GetByID(ctx context.Context, id uint64) (*model.Product, error)

	// Get products by IDs
	GetByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error)

	// UpdateDetails updates name, description, price and category
	UpdateDetails(ctx context.Context, product *model.Product) error

	// Decrement stock (atomic operation)
	DecrStock(ctx context.Context, id uint64, quantity int) error

	// Increment stock
	IncrStock(ctx context.Context, id uint64, quantity int) error

	// Set stock to an absolute level
	SetStock(ctx context.Context, id uint64, quantity int) error

	// SetStatus sets status and the moderation lock together
	SetStatus(ctx context.Context, id uint64, status string, locked bool) error

	// DeactivateByShop locks every product of a shop inactive
	DeactivateByShop(ctx context.Context, shopID uint64) (int64, error)

	// List products
	List(ctx context.Context, filter ProductFilter) ([]*model.Product, int64, error)

	// Categories
	ListCategories(ctx context.Context) ([]*model.Category, error)
	CategoryExists(ctx context.Context, id uint64) (bool, error)
}

// ProductFilter product list filter
type ProductFilter struct {
	ShopID     uint64
	CategoryID uint64
	Status     string
	Search     string
	Pagination
}

// productRepository product repository implementation
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create creates a product
func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Omit("Shop", "Category").Create(product).Error
}

// GetByID gets a product by ID
func (r *productRepository) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

// GetByIDs gets products by IDs
func (r *productRepository) GetByIDs(ctx context.Context, ids []uint64) ([]*model.Product, error) {
	var products []*model.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}

// UpdateDetails updates the editable listing fields
func (r *productRepository) UpdateDetails(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Model(product).
		Select("name", "description", "price", "category_id").
		Updates(product).Error
}

// DecrStock decrements stock (atomic operation)
func (r *productRepository) DecrStock(ctx context.Context, id uint64, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock_quantity >= ? AND status = ?", id, quantity, model.ProductStatusActive).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", quantity))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

// IncrStock increments stock
func (r *productRepository) IncrStock(ctx context.Context, id uint64, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", quantity)).Error
}

// SetStock sets the stock level
func (r *productRepository) SetStock(ctx context.Context, id uint64, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Update("stock_quantity", quantity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus sets the product status
func (r *productRepository) SetStatus(ctx context.Context, id uint64, status string, locked bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            status,
			"moderation_locked": locked,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateByShop deactivates all products of a shop
func (r *productRepository) DeactivateByShop(ctx context.Context, shopID uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("shop_id = ?", shopID).
		Updates(map[string]interface{}{
			"status":            model.ProductStatusInactive,
			"moderation_locked": true,
		})
	return result.RowsAffected, result.Error
}

// List lists products
func (r *productRepository) List(ctx context.Context, filter ProductFilter) ([]*model.Product, int64, error) {
	var products []*model.Product
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Product{})

	if filter.ShopID > 0 {
		db = db.Where("shop_id = ?", filter.ShopID)
	}
	if filter.CategoryID > 0 {
		db = db.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	// Get total count
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get list
	err := db.Scopes(filter.Pagination.scope).
		Order("created_at DESC").
		Find(&products).Error

	return products, total, err
}

// ListCategories lists all categories
func (r *productRepository) ListCategories(ctx context.Context) ([]*model.Category, error) {
	var categories []*model.Category
	err := r.db.WithContext(ctx).Order("name").Find(&categories).Error
	return categories, err
}

// CategoryExists checks if a category exists
func (r *productRepository) CategoryExists(ctx context.Context, id uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
