package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/model"
)

// PromoRepository promo code repository interface
type PromoRepository interface {
	Create(ctx context.Context, promo *model.PromoCode) error
	GetByID(ctx context.Context, id uint64) (*model.PromoCode, error)
	GetByCode(ctx context.Context, code string) (*model.PromoCode, error)

	// GetByCodeForUpdate locks the code row until the surrounding transaction ends
	GetByCodeForUpdate(ctx context.Context, code string) (*model.PromoCode, error)

	ExistsByCode(ctx context.Context, code string) (bool, error)
	SetActive(ctx context.Context, id uint64, active bool) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, filter PromoFilter) ([]*model.PromoCode, int64, error)
}

// PromoFilter promo list filter
type PromoFilter struct {
	Active *bool
	Search string
	Pagination
}

type promoRepository struct {
	db *gorm.DB
}

// NewPromoRepository creates a promo code repository
func NewPromoRepository(db *gorm.DB) PromoRepository {
	return &promoRepository{db: db}
}

func (r *promoRepository) Create(ctx context.Context, promo *model.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *promoRepository) GetByID(ctx context.Context, id uint64) (*model.PromoCode, error) {
	var promo model.PromoCode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&promo).Error; err != nil {
		return nil, notFound(err)
	}
	return &promo, nil
}

func (r *promoRepository) GetByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var promo model.PromoCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error; err != nil {
		return nil, notFound(err)
	}
	return &promo, nil
}

// GetByCodeForUpdate is a plain read on sqlite, which has no row locks
func (r *promoRepository) GetByCodeForUpdate(ctx context.Context, code string) (*model.PromoCode, error) {
	var promo model.PromoCode
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&promo).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &promo, nil
}

func (r *promoRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PromoCode{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *promoRepository) SetActive(ctx context.Context, id uint64, active bool) error {
	result := r.db.WithContext(ctx).Model(&model.PromoCode{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *promoRepository) Delete(ctx context.Context, id uint64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PromoCode{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *promoRepository) List(ctx context.Context, filter PromoFilter) ([]*model.PromoCode, int64, error) {
	var promos []*model.PromoCode
	var total int64

	db := r.db.WithContext(ctx).Model(&model.PromoCode{})
	if filter.Active != nil {
		db = db.Where("is_active = ?", *filter.Active)
	}
	if filter.Search != "" {
		db = db.Where("code LIKE ?", "%"+filter.Search+"%")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Scopes(filter.Pagination.scope).Order("created_at DESC").Find(&promos).Error
	return promos, total, err
}
