package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// Summary sales figures for one scope and period
type Summary struct {
	ShopID uint64    `json:"shop_id,omitempty"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	repository.SalesSummary
}

// ReportService sales reporting interface
type ReportService interface {
	// SalesSummary aggregates completed payments. Traders always see their
	// own shop; admins see one shop or, with shopID 0, the whole marketplace.
	SalesSummary(ctx context.Context, actor *session.Identity, shopID uint64, from, to time.Time) (*Summary, error)

	Close() error
}

type reportService struct {
	repos *repository.Repositories
	cache *bigcache.BigCache
}

// NewReportService creates a report service whose summaries live for ttl
func NewReportService(repos *repository.Repositories, ttl time.Duration) (ReportService, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = ttl
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}
	return &reportService{repos: repos, cache: cache}, nil
}

func (s *reportService) SalesSummary(ctx context.Context, actor *session.Identity, shopID uint64, from, to time.Time) (*Summary, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, utils.NewError(utils.CodeInvalidParam, "end date is before start date")
	}

	switch {
	case actor.Is(session.CapabilityAdmin):
	case actor.Is(session.CapabilityTrader):
		shop, err := s.repos.Shops.GetByTraderID(ctx, actor.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, utils.ErrShopNotFound
		}
		if err != nil {
			return nil, utils.DatabaseError(err)
		}
		shopID = shop.ID
	default:
		return nil, utils.ErrForbidden
	}

	key := fmt.Sprintf("sales:%d:%d:%d", shopID, from.Unix(), to.Unix())
	if data, err := s.cache.Get(key); err == nil {
		var cached Summary
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	totals, err := s.repos.Orders.SalesSummary(ctx, shopID, from, to)
	if err != nil {
		return nil, utils.DatabaseError(err)
	}
	summary := &Summary{ShopID: shopID, From: from, To: to, SalesSummary: *totals}

	if data, err := json.Marshal(summary); err == nil {
		if err := s.cache.Set(key, data); err != nil {
			log.WithContext(ctx).WithField("error", err.Error()).Warn("failed to cache sales summary")
		}
	}
	return summary, nil
}

func (s *reportService) Close() error {
	return s.cache.Close()
}
