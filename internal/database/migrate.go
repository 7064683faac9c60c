package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"marketplace/internal/model"
	"marketplace/pkg/log"
)

// Models lists every table owned by the service
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Shop{},
		&model.Category{},
		&model.Product{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Violation{},
		&model.PromoCode{},
		&model.StockLog{},
	}
}

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("starting database migration")

	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return err
	}

	log.Info("database migration completed")
	return nil
}

// CreateIndexes adds composite indexes used by list and sweep queries
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns []string
	}{
		{"orders", "idx_orders_payment_created", []string{"payment_status", "created_at"}},
		{"orders", "idx_orders_promo_payment", []string{"promo_code", "payment_status"}},
		{"violations", "idx_violations_user_status", []string{"reported_user_id", "status"}},
		{"products", "idx_products_shop_status", []string{"shop_id", "status"}},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, strings.Join(idx.columns, ", "))
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// SeedCategories inserts the default categories if the table is empty
func SeedCategories(db *gorm.DB, names []string) error {
	var count int64
	if err := db.Model(&model.Category{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	categories := make([]model.Category, 0, len(names))
	for _, n := range names {
		categories = append(categories, model.Category{Name: n})
	}
	if len(categories) == 0 {
		return nil
	}
	return db.Create(&categories).Error
}
