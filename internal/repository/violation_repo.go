package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// ViolationRepository violation repository interface
type ViolationRepository interface {
	// Create violation
	Create(ctx context.Context, violation *model.Violation) error

	// Get violation by ID
	GetByID(ctx context.Context, id uint64) (*model.Violation, error)

	// Resolve sets the outcome of a pending violation; false when it was already resolved
	Resolve(ctx context.Context, id uint64, action, notes string, resolvedAt time.Time) (bool, error)

	// List violations
	List(ctx context.Context, filter ViolationFilter) ([]*model.Violation, int64, error)
}

// ViolationFilter violation list filter
type ViolationFilter struct {
	ReportedUserID uint64
	Status         string
	Severity       string
	From           time.Time
	To             time.Time
	Pagination
}

type violationRepository struct {
	db *gorm.DB
}

// NewViolationRepository creates a violation repository
func NewViolationRepository(db *gorm.DB) ViolationRepository {
	return &violationRepository{db: db}
}

func (r *violationRepository) Create(ctx context.Context, violation *model.Violation) error {
	return r.db.WithContext(ctx).Omit("ReportedUser").Create(violation).Error
}

func (r *violationRepository) GetByID(ctx context.Context, id uint64) (*model.Violation, error) {
	var violation model.Violation
	err := r.db.WithContext(ctx).
		Preload("ReportedUser").
		Where("id = ?", id).
		First(&violation).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &violation, nil
}

// Resolve is a compare-and-set on status, a violation is resolved once
func (r *violationRepository) Resolve(ctx context.Context, id uint64, action, notes string, resolvedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Violation{}).
		Where("id = ? AND status = ?", id, model.ViolationStatusPending).
		Updates(map[string]interface{}{
			"status":       model.ViolationStatusResolved,
			"action_taken": action,
			"notes":        notes,
			"resolved_at":  resolvedAt,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *violationRepository) List(ctx context.Context, filter ViolationFilter) ([]*model.Violation, int64, error) {
	var violations []*model.Violation
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Violation{})
	if filter.ReportedUserID > 0 {
		db = db.Where("reported_user_id = ?", filter.ReportedUserID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		db = db.Where("severity = ?", filter.Severity)
	}
	if !filter.From.IsZero() {
		db = db.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		db = db.Where("created_at <= ?", filter.To)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Scopes(filter.Pagination.scope).
		Order("created_at DESC").
		Preload("ReportedUser").
		Find(&violations).Error
	return violations, total, err
}
