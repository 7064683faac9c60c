package promo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/limiter"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// Rejection reasons, in the order the rules are checked
const (
	ReasonNotFound    = "promo code not found"
	ReasonInactive    = "promo code is not active"
	ReasonNotStarted  = "promo code is not valid yet"
	ReasonExpired     = "promo code has expired"
	ReasonBelowMin    = "order subtotal is below the promo minimum"
	ReasonUsageLimit  = "promo code usage limit reached"
	ReasonRateLimited = "too many promo code attempts"
)

var hundred = decimal.NewFromInt(100)

// Result outcome of a promo validation
type Result struct {
	Code     string          `json:"code"`
	Valid    bool            `json:"valid"`
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason,omitempty"`
}

// CreateRequest admin request to create a promo code
type CreateRequest struct {
	Code           string          `json:"code" binding:"required,promocode"`
	DiscountType   string          `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue  decimal.Decimal `json:"discount_value" binding:"positive"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount" binding:"nonnegative"`
	MaxUses        int64           `json:"max_uses" binding:"gte=0"`
	ValidFrom      time.Time       `json:"valid_from" binding:"required"`
	ValidUntil     time.Time       `json:"valid_until" binding:"required"`
	IsActive       *bool           `json:"is_active"`
}

// Check applies the creation rules that binding tags cannot express
func (r *CreateRequest) Check() error {
	code := utils.NormalizePromoCode(r.Code)
	switch {
	case !utils.IsValidPromoCode(code):
		return utils.NewError(utils.CodeInvalidParam, "code must be 3-32 letters, digits, '-' or '_'")
	case r.DiscountType != model.DiscountPercentage && r.DiscountType != model.DiscountFixed:
		return utils.NewError(utils.CodeInvalidParam, "discount_type must be percentage or fixed")
	case !r.DiscountValue.IsPositive():
		return utils.NewError(utils.CodeInvalidParam, "discount_value must be positive")
	case r.DiscountType == model.DiscountPercentage && r.DiscountValue.GreaterThan(hundred):
		return utils.NewError(utils.CodeInvalidParam, "percentage discount cannot exceed 100")
	case r.MinOrderAmount.IsNegative():
		return utils.NewError(utils.CodeInvalidParam, "min_order_amount must be non-negative")
	case r.MaxUses < 0:
		return utils.NewError(utils.CodeInvalidParam, "max_uses must be non-negative")
	case !r.ValidFrom.Before(r.ValidUntil):
		return utils.NewError(utils.CodeInvalidParam, "valid_from must be before valid_until")
	}
	return nil
}

// Evaluate applies the validation rules to a loaded code. usage is the number
// of orders already counted against its cap.
func Evaluate(p *model.PromoCode, usage int64, subtotal decimal.Decimal, now time.Time) Result {
	res := Result{Code: p.Code, Discount: decimal.Zero}

	switch {
	case !p.IsActive:
		res.Reason = ReasonInactive
	case now.Before(p.ValidFrom):
		res.Reason = ReasonNotStarted
	case now.After(p.ValidUntil):
		res.Reason = ReasonExpired
	case subtotal.LessThan(p.MinOrderAmount):
		res.Reason = fmt.Sprintf("%s of %s", ReasonBelowMin, p.MinOrderAmount.StringFixed(2))
	case !p.IsUnlimited() && usage >= p.MaxUses:
		res.Reason = ReasonUsageLimit
	default:
		res.Valid = true
		res.Discount = Discount(p, subtotal)
	}
	return res
}

// Discount computes the amount a code takes off subtotal, never more than subtotal
func Discount(p *model.PromoCode, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch p.DiscountType {
	case model.DiscountPercentage:
		d = subtotal.Mul(p.DiscountValue).Div(hundred).Round(2)
	case model.DiscountFixed:
		d = decimal.Min(p.DiscountValue, subtotal)
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, subtotal)
}

// PromoService promo code service interface
type PromoService interface {
	// Validate previews a code against a subtotal; usage counts completed orders only
	Validate(ctx context.Context, userID uint64, code string, subtotal decimal.Decimal, now time.Time) (*Result, error)

	Create(ctx context.Context, req *CreateRequest) (*model.PromoCode, error)
	Get(ctx context.Context, id uint64) (*model.PromoCode, error)
	List(ctx context.Context, filter repository.PromoFilter) ([]*model.PromoCode, int64, error)
	SetActive(ctx context.Context, id uint64, active bool) error
	Delete(ctx context.Context, id uint64) error
}

// promoService promo code service implementation
type promoService struct {
	repos    *repository.Repositories
	attempts limiter.RateLimiter
}

// NewPromoService creates a promo service. attempts may be nil to disable
// per-user attempt limiting.
func NewPromoService(repos *repository.Repositories, attempts limiter.RateLimiter) PromoService {
	return &promoService{repos: repos, attempts: attempts}
}

func (s *promoService) Validate(ctx context.Context, userID uint64, code string, subtotal decimal.Decimal, now time.Time) (*Result, error) {
	code = utils.NormalizePromoCode(code)
	if code == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "promo code is required")
	}
	if subtotal.IsNegative() {
		return nil, utils.NewError(utils.CodeInvalidParam, "subtotal must be non-negative")
	}

	if s.attempts != nil && userID > 0 {
		allowed, err := s.attempts.Allow(ctx, strconv.FormatUint(userID, 10))
		if err != nil {
			// limiter outage must not block checkout
			log.WithContext(ctx).WithError(err).Warn("promo attempt limiter unavailable")
		} else if !allowed {
			return nil, utils.NewError(utils.CodeRateLimit, ReasonRateLimited)
		}
	}

	p, err := s.repos.Promos.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return &Result{Code: code, Discount: decimal.Zero, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return nil, utils.DatabaseError(err)
	}

	var usage int64
	if !p.IsUnlimited() {
		if usage, err = s.repos.Orders.CountPromoUsage(ctx, code, false); err != nil {
			return nil, utils.DatabaseError(err)
		}
	}

	res := Evaluate(p, usage, subtotal, now)
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"code":     code,
		"user_id":  userID,
		"valid":    res.Valid,
		"reason":   res.Reason,
		"discount": res.Discount.String(),
	}).Debug("promo code validated")
	return &res, nil
}

func (s *promoService) Create(ctx context.Context, req *CreateRequest) (*model.PromoCode, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}

	code := utils.NormalizePromoCode(req.Code)
	exists, err := s.repos.Promos.ExistsByCode(ctx, code)
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	if exists {
		return nil, utils.NewError(utils.CodeConflict, "promo code already exists")
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p := &model.PromoCode{
		Code:           code,
		DiscountType:   req.DiscountType,
		DiscountValue:  req.DiscountValue.Round(2),
		MinOrderAmount: req.MinOrderAmount.Round(2),
		MaxUses:        req.MaxUses,
		ValidFrom:      req.ValidFrom.UTC(),
		ValidUntil:     req.ValidUntil.UTC(),
		IsActive:       active,
	}
	if err := s.repos.Promos.Create(ctx, p); err != nil {
		return nil, utils.DatabaseError(err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"promo_id": p.ID,
		"code":     p.Code,
		"type":     p.DiscountType,
		"value":    p.DiscountValue.String(),
		"max_uses": p.MaxUses,
	}).Info("promo code created")
	return p, nil
}

func (s *promoService) Get(ctx context.Context, id uint64) (*model.PromoCode, error) {
	p, err := s.repos.Promos.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.ErrPromoNotFound
	}
	if err != nil {
		return nil, utils.DatabaseError(err)
	}

	if p.UsageCount, err = s.repos.Orders.CountPromoUsage(ctx, p.Code, false); err != nil {
		return nil, utils.DatabaseError(err)
	}
	return p, nil
}

func (s *promoService) List(ctx context.Context, filter repository.PromoFilter) ([]*model.PromoCode, int64, error) {
	promos, total, err := s.repos.Promos.List(ctx, filter)
	if err != nil {
		return nil, 0, utils.DatabaseError(err)
	}

	codes := make([]string, 0, len(promos))
	for _, p := range promos {
		codes = append(codes, p.Code)
	}
	usage, err := s.repos.Orders.CountPromoUsageByCodes(ctx, codes)
	if err != nil {
		return nil, 0, utils.DatabaseError(err)
	}
	for _, p := range promos {
		p.UsageCount = usage[p.Code]
	}
	return promos, total, nil
}

func (s *promoService) SetActive(ctx context.Context, id uint64, active bool) error {
	err := s.repos.Promos.SetActive(ctx, id, active)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrPromoNotFound
	}
	if err != nil {
		return utils.DatabaseError(err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"promo_id": id,
		"active":   active,
	}).Info("promo code toggled")
	return nil
}

func (s *promoService) Delete(ctx context.Context, id uint64) error {
	err := s.repos.Promos.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.ErrPromoNotFound
	}
	if err != nil {
		return utils.DatabaseError(err)
	}

	log.WithContext(ctx).WithField("promo_id", id).Info("promo code deleted")
	return nil
}
