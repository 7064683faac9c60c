package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// RecordRequest files a violation against a trader
type RecordRequest struct {
	TraderID      uint64 `json:"trader_id" binding:"required"`
	ViolationType string `json:"violation_type" binding:"required,max=50"`
	Description   string `json:"description" binding:"required"`
	Severity      string `json:"severity" binding:"required,oneof=low medium high"`
}

// DisableRequest takes a product down for a policy violation
type DisableRequest struct {
	ProductID uint64 `json:"product_id" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
	Severity  string `json:"severity" binding:"omitempty,oneof=low medium high"`
}

// DisableResult outcome of a product disable
type DisableResult struct {
	ViolationID    uint64 `json:"violation_id"`
	ViolationCount int    `json:"violation_count"`
	Escalated      bool   `json:"escalated"`
}

// ModerationService violation and account moderation interface
type ModerationService interface {
	RecordViolation(ctx context.Context, actor *session.Identity, req *RecordRequest) (*model.Violation, error)

	// DisableProductForViolation deactivates the product, records a violation
	// and disables the trader once the count reaches the threshold, atomically
	DisableProductForViolation(ctx context.Context, actor *session.Identity, req *DisableRequest) (*DisableResult, error)

	ResolveViolation(ctx context.Context, actor *session.Identity, violationID uint64, action, notes string) (*model.Violation, error)
	DismissViolation(ctx context.Context, actor *session.Identity, violationID uint64, notes string) (*model.Violation, error)

	// ResetViolations zeroes the count; a disabled account stays disabled
	ResetViolations(ctx context.Context, actor *session.Identity, traderID uint64) error
	EnableAccount(ctx context.Context, actor *session.Identity, userID uint64) error

	ApproveTrader(ctx context.Context, actor *session.Identity, userID uint64) (*model.Shop, error)
	RejectTrader(ctx context.Context, actor *session.Identity, userID uint64) error

	GetViolation(ctx context.Context, id uint64) (*model.Violation, error)
	ListViolations(ctx context.Context, filter repository.ViolationFilter) ([]*model.Violation, int64, error)
	ListUsers(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error)
}

type moderationService struct {
	repos     *repository.Repositories
	flash     session.FlashStore
	metrics   *monitor.MetricsCollector
	threshold int
	now       func() time.Time
}

// NewModerationService creates a moderation service. flash and metrics may be nil.
func NewModerationService(repos *repository.Repositories, flash session.FlashStore, metrics *monitor.MetricsCollector, threshold int) ModerationService {
	if threshold <= 0 {
		threshold = 2
	}
	return &moderationService{
		repos:     repos,
		flash:     flash,
		metrics:   metrics,
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *moderationService) RecordViolation(ctx context.Context, actor *session.Identity, req *RecordRequest) (*model.Violation, error) {
	severity := strings.ToLower(strings.TrimSpace(req.Severity))
	if !model.IsValidSeverity(severity) {
		return nil, utils.NewError(utils.CodeInvalidParam, "severity must be low, medium or high")
	}
	if strings.TrimSpace(req.ViolationType) == "" || strings.TrimSpace(req.Description) == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "violation type and description are required")
	}

	if _, err := s.trader(ctx, s.repos, req.TraderID); err != nil {
		return nil, err
	}

	violation := &model.Violation{
		ReportedUserID: req.TraderID,
		ReporterID:     actor.UserID,
		ViolationType:  strings.TrimSpace(req.ViolationType),
		Description:    strings.TrimSpace(req.Description),
		Severity:       severity,
		Status:         model.ViolationStatusPending,
	}
	if err := s.repos.Violations.Create(ctx, violation); err != nil {
		return nil, utils.DatabaseError(err)
	}

	s.metrics.RecordModeration("record")
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"violation_id": violation.ID,
		"trader_id":    req.TraderID,
		"type":         violation.ViolationType,
		"severity":     severity,
		"reporter":     actor.Username,
	}).Info("violation recorded")
	return violation, nil
}

func (s *moderationService) DisableProductForViolation(ctx context.Context, actor *session.Identity, req *DisableRequest) (result *DisableResult, err error) {
	ctx, span := monitor.StartSpan(ctx, "moderation.disable_product", attribute.Int64("product.id", int64(req.ProductID)))
	defer func() { monitor.EndSpan(span, err) }()

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "a reason is required")
	}
	severity := strings.ToLower(strings.TrimSpace(req.Severity))
	if severity == "" {
		severity = model.SeverityMedium
	}
	if !model.IsValidSeverity(severity) {
		return nil, utils.NewError(utils.CodeInvalidParam, "severity must be low, medium or high")
	}

	var (
		product *model.Product
		shop    *model.Shop
	)
	result = &DisableResult{}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		product, err = tx.Products.GetByID(ctx, req.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrProductNotFound
		}
		if err != nil {
			return err
		}
		shop, err = tx.Shops.GetByID(ctx, product.ShopID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.NewError(utils.CodeShopNotFound, "product has no owning shop")
		}
		if err != nil {
			return err
		}

		if err := tx.Products.SetStatus(ctx, product.ID, model.ProductStatusInactive, true); err != nil {
			return err
		}

		productID := product.ID
		violation := &model.Violation{
			ReportedUserID: shop.TraderID,
			ReporterID:     actor.UserID,
			ProductID:      &productID,
			ViolationType:  model.ViolationTypeProduct,
			Description:    fmt.Sprintf("Product %q disabled: %s", product.Name, reason),
			Severity:       severity,
			Status:         model.ViolationStatusPending,
		}
		if err := tx.Violations.Create(ctx, violation); err != nil {
			return err
		}
		result.ViolationID = violation.ID

		count, err := tx.Users.IncrementViolationCount(ctx, shop.TraderID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		result.ViolationCount = count

		if count < s.threshold {
			return nil
		}
		trader, err := tx.Users.GetByID(ctx, shop.TraderID)
		if err != nil {
			return err
		}
		if trader.Status == model.UserStatusDisabled {
			return nil
		}
		if err := tx.Users.SetStatus(ctx, shop.TraderID, model.UserStatusDisabled); err != nil {
			return err
		}
		if _, err := tx.Products.DeactivateByShop(ctx, shop.ID); err != nil {
			return err
		}
		result.Escalated = true
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	s.metrics.RecordModeration("disable_product")
	if result.Escalated {
		s.metrics.RecordEscalation()
	}
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id":      product.ID,
		"trader_id":       shop.TraderID,
		"violation_id":    result.ViolationID,
		"violation_count": result.ViolationCount,
		"escalated":       result.Escalated,
		"reporter":        actor.Username,
	}).Warn("product disabled for violation")

	msg := fmt.Sprintf("Your product %q was disabled: %s", product.Name, reason)
	if result.Escalated {
		msg = fmt.Sprintf("%s. Your account has been disabled after %d violations.", msg, result.ViolationCount)
	}
	s.notify(ctx, shop.TraderID, session.FlashError, msg)
	return result, nil
}

func (s *moderationService) ResolveViolation(ctx context.Context, actor *session.Identity, violationID uint64, action, notes string) (*model.Violation, error) {
	action = strings.TrimSpace(action)
	if !model.IsValidAction(action) {
		return nil, utils.NewError(utils.CodeInvalidParam, "action must be warning, account_disabled or dismissed")
	}
	notes = strings.TrimSpace(notes)

	var violation *model.Violation
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		violation, err = tx.Violations.GetByID(ctx, violationID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.ErrViolationNotFound
		}
		if err != nil {
			return err
		}

		resolved, err := tx.Violations.Resolve(ctx, violationID, action, notes, s.now())
		if err != nil {
			return err
		}
		if !resolved {
			return utils.NewError(utils.CodeInvalidState, "violation is already resolved")
		}

		if action == model.ActionAccountDisabled {
			return tx.Users.SetStatus(ctx, violation.ReportedUserID, model.UserStatusDisabled)
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}

	s.metrics.RecordModeration("resolve_" + action)
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"violation_id": violationID,
		"trader_id":    violation.ReportedUserID,
		"action":       action,
		"admin":        actor.Username,
	}).Info("violation resolved")

	switch action {
	case model.ActionWarning:
		s.notify(ctx, violation.ReportedUserID, session.FlashError,
			fmt.Sprintf("You received a warning for %s.", violation.ViolationType))
	case model.ActionAccountDisabled:
		s.notify(ctx, violation.ReportedUserID, session.FlashError, "Your account has been disabled by an administrator.")
	}

	return s.GetViolation(ctx, violationID)
}

func (s *moderationService) DismissViolation(ctx context.Context, actor *session.Identity, violationID uint64, notes string) (*model.Violation, error) {
	return s.ResolveViolation(ctx, actor, violationID, model.ActionDismissed, notes)
}

func (s *moderationService) ResetViolations(ctx context.Context, actor *session.Identity, traderID uint64) error {
	if _, err := s.trader(ctx, s.repos, traderID); err != nil {
		return err
	}
	if err := s.repos.Users.ResetViolationCount(ctx, traderID); err != nil {
		return mapError(err)
	}

	s.metrics.RecordModeration("reset")
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"trader_id": traderID,
		"admin":     actor.Username,
	}).Info("violation count reset")
	return nil
}

func (s *moderationService) EnableAccount(ctx context.Context, actor *session.Identity, userID uint64) error {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return mapError(err)
	}
	if user.IsActive() {
		return nil
	}
	if user.Status == model.UserStatusPending && user.IsTrader() {
		return utils.NewError(utils.CodeInvalidState, "pending trader applications are approved, not enabled")
	}

	if err := s.repos.Users.SetStatus(ctx, userID, model.UserStatusActive); err != nil {
		return mapError(err)
	}

	s.metrics.RecordModeration("enable")
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id": userID,
		"admin":   actor.Username,
	}).Info("account enabled")
	s.notify(ctx, userID, session.FlashSuccess, "Your account has been re-enabled.")
	return nil
}

func (s *moderationService) ApproveTrader(ctx context.Context, actor *session.Identity, userID uint64) (*model.Shop, error) {
	var shop *model.Shop
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		user, err := s.trader(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.Status != model.UserStatusPending {
			return utils.NewError(utils.CodeInvalidState, "trader application is not pending")
		}

		shop, err = tx.Shops.GetByTraderID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			shop = &model.Shop{TraderID: userID, Name: user.Username + "'s shop"}
			if err := tx.Shops.Create(ctx, shop); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		return tx.Users.SetStatus(ctx, userID, model.UserStatusActive)
	})
	if err != nil {
		return nil, mapError(err)
	}

	s.metrics.RecordModeration("approve_trader")
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"trader_id": userID,
		"shop_id":   shop.ID,
		"admin":     actor.Username,
	}).Info("trader approved")
	s.notify(ctx, userID, session.FlashSuccess, "Your trader application was approved.")
	return shop, nil
}

func (s *moderationService) RejectTrader(ctx context.Context, actor *session.Identity, userID uint64) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		user, err := s.trader(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user.Status != model.UserStatusPending {
			return utils.NewError(utils.CodeInvalidState, "trader application is not pending")
		}
		if err := tx.Shops.DeleteByTraderID(ctx, userID); err != nil {
			return err
		}
		return tx.Users.SetStatus(ctx, userID, model.UserStatusDisabled)
	})
	if err != nil {
		return mapError(err)
	}

	s.metrics.RecordModeration("reject_trader")
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"trader_id": userID,
		"admin":     actor.Username,
	}).Info("trader application rejected")
	return nil
}

func (s *moderationService) GetViolation(ctx context.Context, id uint64) (*model.Violation, error) {
	violation, err := s.repos.Violations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrViolationNotFound
	}
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	return violation, nil
}

func (s *moderationService) ListViolations(ctx context.Context, filter repository.ViolationFilter) ([]*model.Violation, int64, error) {
	violations, total, err := s.repos.Violations.List(ctx, filter)
	if err != nil {
		return nil, 0, utils.DatabaseError(err)
	}
	return violations, total, nil
}

func (s *moderationService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error) {
	users, total, err := s.repos.Users.List(ctx, filter)
	if err != nil {
		return nil, 0, utils.DatabaseError(err)
	}
	return users, total, nil
}

// trader loads userID and checks it is a trader account
func (s *moderationService) trader(ctx context.Context, repos *repository.Repositories, userID uint64) (*model.User, error) {
	user, err := repos.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrUserNotFound
	}
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	if !user.IsTrader() {
		return nil, utils.NewError(utils.CodeInvalidParam, "user is not a trader")
	}
	return user, nil
}

// notify leaves a flash message for the user's next request. Delivery is
// best effort and never fails the moderation action.
func (s *moderationService) notify(ctx context.Context, userID uint64, category, message string) {
	if s.flash == nil {
		return
	}
	err := s.flash.Push(ctx, userID, utils.FlashMessage{Category: category, Message: message})
	if err != nil {
		log.WithContext(ctx).WithFields(map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("failed to queue flash message")
	}
}

func mapError(err error) error {
	if _, ok := utils.IsAppError(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrUserNotFound
	}
	return utils.DatabaseError(err)
}
