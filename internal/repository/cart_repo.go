package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/model"
)

// CartRepository cart repository interface
type CartRepository interface {
	// Upsert adds quantity to the line, creating it if missing
	Upsert(ctx context.Context, userID, productID uint64, quantity int) error

	// SetQuantity replaces the quantity of an existing line
	SetQuantity(ctx context.Context, userID, productID uint64, quantity int) error

	// Delete removes one line
	Delete(ctx context.Context, userID, productID uint64) error

	// DeleteProducts removes the lines of the given products
	DeleteProducts(ctx context.Context, userID uint64, productIDs []uint64) error

	// Clear empties the cart
	Clear(ctx context.Context, userID uint64) error

	// List cart lines with their products
	List(ctx context.Context, userID uint64) ([]*model.CartItem, error)
}

type cartRepository struct {
	db *gorm.DB
}

// NewCartRepository creates a cart repository
func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

// Upsert relies on the (user_id, product_id) unique index
func (r *cartRepository) Upsert(ctx context.Context, userID, productID uint64, quantity int) error {
	item := &model.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
	return r.db.WithContext(ctx).
		Omit("Product").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity": gorm.Expr("quantity + ?", quantity),
			}),
		}).
		Create(item).Error
}

func (r *cartRepository) SetQuantity(ctx context.Context, userID, productID uint64, quantity int) error {
	result := r.db.WithContext(ctx).Model(&model.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, userID, productID uint64) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&model.CartItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cartRepository) DeleteProducts(ctx context.Context, userID uint64, productIDs []uint64) error {
	if len(productIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Delete(&model.CartItem{}).Error
}

func (r *cartRepository) Clear(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{}).Error
}

func (r *cartRepository) List(ctx context.Context, userID uint64) ([]*model.CartItem, error) {
	var items []*model.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("id").
		Find(&items).Error
	return items, err
}
