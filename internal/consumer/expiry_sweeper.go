package consumer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/pkg/lock"
	"marketplace/pkg/log"
)

const sweeperLockKey = "lock:order_sweeper"

// ExpiredOrderHandler cancels payments abandoned before now minus the timeout
type ExpiredOrderHandler interface {
	HandleExpiredOrders(ctx context.Context, now time.Time) (int, error)
}

// ExpiredOrderSweeper periodically releases stock held by abandoned payments.
// A Redis lease keeps replicas from sweeping at the same time.
type ExpiredOrderSweeper struct {
	handler  ExpiredOrderHandler
	client   redis.Cmdable
	interval time.Duration
	stopCh   chan struct{}
}

// NewExpiredOrderSweeper creates a sweeper. With a nil client it runs unlocked.
func NewExpiredOrderSweeper(handler ExpiredOrderHandler, client redis.Cmdable, interval time.Duration) *ExpiredOrderSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiredOrderSweeper{
		handler:  handler,
		client:   client,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweeper in the background
func (s *ExpiredOrderSweeper) Start(ctx context.Context) {
	log.WithField("interval", s.interval.String()).Info("Starting expired order sweeper")

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				log.Info("Expired order sweeper stopped")
				return
			case <-ctx.Done():
				log.Info("Expired order sweeper context cancelled")
				return
			case <-ticker.C:
				if _, _, err := s.RunOnce(ctx); err != nil {
					log.WithField("error", err.Error()).Error("Expired order sweep failed")
				}
			}
		}
	}()
}

// Stop stops the sweeper
func (s *ExpiredOrderSweeper) Stop() {
	close(s.stopCh)
}

// RunOnce sweeps one batch. ran is false when another replica holds the lease.
func (s *ExpiredOrderSweeper) RunOnce(ctx context.Context) (cancelled int, ran bool, err error) {
	sweep := func(ctx context.Context) error {
		cancelled, err = s.handler.HandleExpiredOrders(ctx, time.Now().UTC())
		return err
	}

	if s.client == nil {
		err = sweep(ctx)
		return cancelled, true, err
	}

	// lease spans two intervals
	l := lock.NewRedisLock(s.client, sweeperLockKey, 2*s.interval)
	ran, lockErr := lock.WithLock(ctx, l, sweep)
	if lockErr != nil {
		return cancelled, ran, lockErr
	}
	if !ran {
		log.Debug("Expired order sweep skipped, lease held elsewhere")
	}
	return cancelled, ran, nil
}
