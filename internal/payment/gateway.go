// Package payment is the narrow boundary to the external payment provider:
// callbacks come in through the HTTP surface, refunds go out through Gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace/pkg/breaker"
	"marketplace/pkg/log"
)

var (
	// ErrRefundRejected the provider refused the refund; retrying will not help
	ErrRefundRejected = errors.New("refund rejected by payment provider")
	// ErrUnavailable the provider could not be reached
	ErrUnavailable = errors.New("payment provider unavailable")
)

// Gateway outbound calls to the payment provider
type Gateway interface {
	Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) error
}

// LoggingGateway records refunds without calling a provider. It is the
// default when no provider integration is configured.
type LoggingGateway struct{}

// NewLoggingGateway creates a logging gateway
func NewLoggingGateway() *LoggingGateway {
	return &LoggingGateway{}
}

// Refund logs the refund request
func (g *LoggingGateway) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) error {
	if strings.TrimSpace(transactionRef) == "" {
		return fmt.Errorf("%w: missing transaction reference", ErrRefundRejected)
	}
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"transaction_ref": transactionRef,
		"amount":          amount.StringFixed(2),
	}).Info("refund issued")
	return nil
}

// BreakerGateway guards another gateway with a circuit breaker
type BreakerGateway struct {
	next Gateway
	cb   *breaker.CircuitBreaker
}

// NewBreakerGateway wraps next. Rejections count as healthy calls so only
// transport failures can open the breaker.
func NewBreakerGateway(next Gateway, cfg breaker.Config) *BreakerGateway {
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, ErrRefundRejected)
		}
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(name string, from, to breaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("payment gateway breaker state changed")
		}
	}
	return &BreakerGateway{
		next: next,
		cb:   breaker.NewCircuitBreaker("payment-gateway", cfg),
	}
}

// Refund forwards to the wrapped gateway unless the breaker is open
func (g *BreakerGateway) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) error {
	err := g.cb.Execute(ctx, func(ctx context.Context) error {
		return g.next.Refund(ctx, transactionRef, amount)
	})
	if breaker.IsBreakerError(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// State returns the breaker state
func (g *BreakerGateway) State() breaker.State {
	return g.cb.State()
}
