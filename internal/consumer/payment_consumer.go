package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/pkg/log"
	"marketplace/pkg/queue"
	"marketplace/pkg/utils"
)

// TopicPaymentEvents carries gateway callbacks
const TopicPaymentEvents = "payment.events"

// PaymentHandler applies one gateway callback
type PaymentHandler interface {
	HandlePaymentEvent(ctx context.Context, event *model.PaymentEvent) error
}

// PublishPaymentEvent queues a callback for the payment consumer
func PublishPaymentEvent(ctx context.Context, q queue.Queue, event *model.PaymentEvent) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}
	return q.Publish(ctx, TopicPaymentEvents, data)
}

// PaymentConsumer feeds queued gateway callbacks to the order lifecycle.
// Transient failures are retried with exponential backoff so a paid order
// is not left pending for the expiry sweeper.
type PaymentConsumer struct {
	handler     PaymentHandler
	queue       queue.Queue
	metrics     *monitor.MetricsCollector
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// NewPaymentConsumer creates a payment consumer. metrics may be nil.
func NewPaymentConsumer(handler PaymentHandler, q queue.Queue, metrics *monitor.MetricsCollector) *PaymentConsumer {
	return &PaymentConsumer{
		handler:     handler,
		queue:       q,
		metrics:     metrics,
		timeout:     10 * time.Second,
		maxAttempts: 5,
		backoff:     200 * time.Millisecond,
		maxBackoff:  5 * time.Second,
	}
}

// WithRetry overrides the retry policy; attempts below 1 mean a single try
func (c *PaymentConsumer) WithRetry(attempts int, backoff, maxBackoff time.Duration) *PaymentConsumer {
	if attempts < 1 {
		attempts = 1
	}
	c.maxAttempts = attempts
	c.backoff = backoff
	c.maxBackoff = maxBackoff
	return c
}

// Start subscribes to the payment topic until ctx is done
func (c *PaymentConsumer) Start(ctx context.Context) error {
	log.Info("Starting payment consumer")
	return c.queue.Subscribe(ctx, TopicPaymentEvents, c.handle)
}

func (c *PaymentConsumer) handle(ctx context.Context, topic string, message []byte) error {
	var event model.PaymentEvent
	if err := json.Unmarshal(message, &event); err != nil {
		c.metrics.RecordQueueMessage(topic, "malformed")
		log.WithFields(map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		}).Error("Dropping malformed payment event")
		return err
	}

	if event.RequestID != "" {
		ctx = log.ContextWithRequestID(ctx, event.RequestID)
	}

	err := c.process(ctx, &event)
	if err != nil {
		c.metrics.RecordQueueMessage(topic, "failed")
		log.WithContext(ctx).WithFields(map[string]interface{}{
			"order_id": event.OrderID,
			"status":   event.Status,
			"error":    err.Error(),
		}).Error("Failed to process payment event")
		return err
	}

	c.metrics.RecordQueueMessage(topic, "processed")
	log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_id": event.OrderID,
		"status":   event.Status,
		"latency":  time.Since(event.ReceivedAt).String(),
	}).Debug("Payment event processed")
	return nil
}

// process applies the event, retrying transient failures until attempts run
// out or ctx ends
func (c *PaymentConsumer) process(ctx context.Context, event *model.PaymentEvent) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.attempt(ctx, event)
		if err == nil || !utils.IsRetriable(err) || attempt >= c.maxAttempts {
			return err
		}

		c.metrics.RecordQueueMessage(TopicPaymentEvents, "retried")
		log.WithContext(ctx).WithFields(map[string]interface{}{
			"order_id": event.OrderID,
			"attempt":  attempt,
			"backoff":  wait.String(),
			"error":    err.Error(),
		}).Warn("Retrying payment event")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("payment event abandoned: %w", err)
		case <-timer.C:
		}
		wait *= 2
		if c.maxBackoff > 0 && wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

func (c *PaymentConsumer) attempt(ctx context.Context, event *model.PaymentEvent) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.handler.HandlePaymentEvent(ctx, event)
}
