// Package testutil builds in-memory databases and fixtures for service tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketplace/internal/database"
	"marketplace/internal/model"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory sqlite database with the full schema.
// It holds a single connection, so concurrent callers are serialized by the pool.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	return open(t, dsn, 1)
}

// NewConcurrentDB opens a WAL file database with several connections, so
// goroutines really race for the write lock. Transactions begin IMMEDIATE and
// wait on the busy timeout instead of failing with SQLITE_BUSY.
func NewConcurrentDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "market.db")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	return open(t, dsn, 4)
}

func open(t *testing.T, dsn string, conns int) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewRedis starts a miniredis server and a client connected to it
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

// Money parses a decimal literal
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateUser inserts an account
func CreateUser(t *testing.T, db *gorm.DB, username, role, status string, points int64) *model.User {
	t.Helper()

	user := &model.User{
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  "x",
		Salt:          "x",
		Role:          role,
		Status:        status,
		LoyaltyPoints: points,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTrader inserts an active trader and their shop
func CreateTrader(t *testing.T, db *gorm.DB, username string) (*model.User, *model.Shop) {
	t.Helper()

	trader := CreateUser(t, db, username, model.RoleTrader, model.UserStatusActive, 0)
	shop := &model.Shop{TraderID: trader.ID, Name: username + " shop"}
	require.NoError(t, db.Create(shop).Error)
	return trader, shop
}

// CreateCategory inserts a category
func CreateCategory(t *testing.T, db *gorm.DB, name string) *model.Category {
	t.Helper()

	category := &model.Category{Name: name}
	require.NoError(t, db.Create(category).Error)
	return category
}

// CreateProduct inserts an active product
func CreateProduct(t *testing.T, db *gorm.DB, shopID uint64, name, price string, stock int) *model.Product {
	t.Helper()

	product := &model.Product{
		ShopID:        shopID,
		CategoryID:    1,
		Name:          name,
		Price:         Money(price),
		StockQuantity: stock,
		Status:        model.ProductStatusActive,
	}
	require.NoError(t, db.Omit("Shop", "Category").Create(product).Error)
	return product
}

// CreatePromo inserts an active promo code valid for a day either side of now
func CreatePromo(t *testing.T, db *gorm.DB, code, discountType, value, minOrder string, maxUses int64) *model.PromoCode {
	t.Helper()

	now := time.Now().UTC()
	promo := &model.PromoCode{
		Code:           code,
		DiscountType:   discountType,
		DiscountValue:  Money(value),
		MinOrderAmount: Money(minOrder),
		MaxUses:        maxUses,
		ValidFrom:      now.Add(-24 * time.Hour),
		ValidUntil:     now.Add(24 * time.Hour),
		IsActive:       true,
	}
	require.NoError(t, db.Create(promo).Error)
	return promo
}

// Reload reads a row again by primary key
func Reload[T any](t *testing.T, db *gorm.DB, id uint64) *T {
	t.Helper()

	var v T
	require.NoError(t, db.First(&v, id).Error)
	return &v
}
