package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"marketplace/pkg/breaker"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Refund(ctx context.Context, transactionRef string, amount decimal.Decimal) error {
	args := m.Called(ctx, transactionRef, amount)
	return args.Error(0)
}

func TestLoggingGateway(t *testing.T) {
	g := NewLoggingGateway()
	assert.NoError(t, g.Refund(context.Background(), "TX-1", decimal.NewFromInt(10)))
	assert.ErrorIs(t, g.Refund(context.Background(), " ", decimal.NewFromInt(10)), ErrRefundRejected)
}

func TestBreakerGateway(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("12.50")

	t.Run("OpensOnTransportFailures", func(t *testing.T) {
		next := new(MockGateway)
		next.On("Refund", mock.Anything, "TX-1", amount).Return(errors.New("connection reset")).Times(2)
		g := NewBreakerGateway(next, breaker.Config{ConsecutiveFailures: 2})

		assert.Error(t, g.Refund(ctx, "TX-1", amount))
		assert.Error(t, g.Refund(ctx, "TX-1", amount))
		assert.Equal(t, breaker.StateOpen, g.State())

		err := g.Refund(ctx, "TX-1", amount)
		assert.ErrorIs(t, err, ErrUnavailable)
		next.AssertNumberOfCalls(t, "Refund", 2)
	})

	t.Run("RejectionsKeepBreakerClosed", func(t *testing.T) {
		next := new(MockGateway)
		next.On("Refund", mock.Anything, "TX-2", amount).Return(ErrRefundRejected)
		g := NewBreakerGateway(next, breaker.Config{ConsecutiveFailures: 1})

		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, g.Refund(ctx, "TX-2", amount), ErrRefundRejected)
		}
		assert.Equal(t, breaker.StateClosed, g.State())
	})
}
