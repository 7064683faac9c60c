package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// UserRepository user repository interface
type UserRepository interface {
	// Create user
	Create(ctx context.Context, user *model.User) error

	// Get user by ID
	GetByID(ctx context.Context, id uint64) (*model.User, error)

	// Get user by username
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	// Get user by email
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// Check if username or email is taken
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Update last login info
	UpdateLastLogin(ctx context.Context, userID uint64, ip string) error

	// Replace password hash and salt
	UpdatePassword(ctx context.Context, userID uint64, hash, salt string) error

	// Set account status
	SetStatus(ctx context.Context, userID uint64, status string) error

	// DebitPoints subtracts points only when the balance covers them
	DebitPoints(ctx context.Context, userID uint64, points int64) error

	// CreditPoints adds points
	CreditPoints(ctx context.Context, userID uint64, points int64) error

	// ClawbackPoints subtracts points, flooring the balance at zero
	ClawbackPoints(ctx context.Context, userID uint64, points int64) error

	// IncrementViolationCount adds one violation and returns the fresh count
	IncrementViolationCount(ctx context.Context, userID uint64) (int, error)

	// ResetViolationCount sets the violation count to zero
	ResetViolationCount(ctx context.Context, userID uint64) error

	// List users
	List(ctx context.Context, filter UserFilter) ([]*model.User, int64, error)
}

// UserFilter user list filter
type UserFilter struct {
	Role   string
	Status string
	Search string
	Pagination
}

// userRepository user repository implementation
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a user
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID gets a user by ID
func (r *userRepository) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetByUsername gets a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetByEmail gets a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ExistsByUsername checks if username exists
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ExistsByEmail checks if email exists
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// UpdateLastLogin updates last login info
func (r *userRepository) UpdateLastLogin(ctx context.Context, userID uint64, ip string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": time.Now().UTC(),
			"last_login_ip": ip,
		}).Error
}

// UpdatePassword replaces the password hash and salt
func (r *userRepository) UpdatePassword(ctx context.Context, userID uint64, hash, salt string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash": hash,
			"salt":          salt,
		}).Error
}

// SetStatus sets the account status
func (r *userRepository) SetStatus(ctx context.Context, userID uint64, status string) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitPoints subtracts points (atomic operation)
func (r *userRepository) DebitPoints(ctx context.Context, userID uint64, points int64) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND loyalty_points >= ?", userID, points).
		Update("loyalty_points", gorm.Expr("loyalty_points - ?", points))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

// CreditPoints adds points
func (r *userRepository) CreditPoints(ctx context.Context, userID uint64, points int64) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("loyalty_points", gorm.Expr("loyalty_points + ?", points)).Error
}

// ClawbackPoints subtracts points without letting the balance go negative
func (r *userRepository) ClawbackPoints(ctx context.Context, userID uint64, points int64) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("loyalty_points", gorm.Expr(
			"CASE WHEN loyalty_points >= ? THEN loyalty_points - ? ELSE 0 END", points, points)).Error
}

// IncrementViolationCount increments in place, then re-reads the counter on the
// same handle so the caller's transaction sees its own write
func (r *userRepository) IncrementViolationCount(ctx context.Context, userID uint64) (int, error) {
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("violation_count", gorm.Expr("violation_count + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var count int
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Select("violation_count").
		Scan(&count).Error
	return count, err
}

// ResetViolationCount sets violation_count to zero
func (r *userRepository) ResetViolationCount(ctx context.Context, userID uint64) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("violation_count", 0)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List lists users
func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]*model.User, int64, error) {
	var users []*model.User
	var total int64

	db := r.db.WithContext(ctx).Model(&model.User{})
	if filter.Role != "" {
		db = db.Where("role = ?", filter.Role)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("username LIKE ? OR email LIKE ?", like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Scopes(filter.Pagination.scope).
		Order("created_at DESC").
		Find(&users).Error
	return users, total, err
}
