package repository

import (
	"context"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// ShopRepository shop repository interface
type ShopRepository interface {
	Create(ctx context.Context, shop *model.Shop) error
	GetByID(ctx context.Context, id uint64) (*model.Shop, error)
	GetByTraderID(ctx context.Context, traderID uint64) (*model.Shop, error)
	Update(ctx context.Context, shop *model.Shop) error
	DeleteByTraderID(ctx context.Context, traderID uint64) error
	List(ctx context.Context, page Pagination) ([]*model.Shop, int64, error)
}

type shopRepository struct {
	db *gorm.DB
}

// NewShopRepository creates a shop repository
func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepository{db: db}
}

func (r *shopRepository) Create(ctx context.Context, shop *model.Shop) error {
	return r.db.WithContext(ctx).Create(shop).Error
}

func (r *shopRepository) GetByID(ctx context.Context, id uint64) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shop).Error; err != nil {
		return nil, notFound(err)
	}
	return &shop, nil
}

func (r *shopRepository) GetByTraderID(ctx context.Context, traderID uint64) (*model.Shop, error) {
	var shop model.Shop
	if err := r.db.WithContext(ctx).Where("trader_id = ?", traderID).First(&shop).Error; err != nil {
		return nil, notFound(err)
	}
	return &shop, nil
}

// Update updates the display metadata
func (r *shopRepository) Update(ctx context.Context, shop *model.Shop) error {
	return r.db.WithContext(ctx).Model(shop).
		Select("name", "description").
		Updates(shop).Error
}

func (r *shopRepository) DeleteByTraderID(ctx context.Context, traderID uint64) error {
	return r.db.WithContext(ctx).Where("trader_id = ?", traderID).Delete(&model.Shop{}).Error
}

func (r *shopRepository) List(ctx context.Context, page Pagination) ([]*model.Shop, int64, error) {
	var shops []*model.Shop
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Shop{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Scopes(page.scope).Order("created_at DESC").Find(&shops).Error
	return shops, total, err
}
