package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryQueue in-process queue with one buffered channel per topic
type MemoryQueue struct {
	topics     map[string]chan []byte
	subscribed map[string]bool
	config     MemoryQueueConfig
	mu         sync.RWMutex
	closed     bool

	sent   atomic.Int64
	recv   atomic.Int64
	failed atomic.Int64

	// OnError, when set, observes handler failures
	OnError func(topic string, message []byte, err error)
}

// MemoryQueueConfig memory queue configuration
type MemoryQueueConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// NewMemoryQueue creates a new memory queue instance
func NewMemoryQueue(config MemoryQueueConfig) *MemoryQueue {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	return &MemoryQueue{
		topics:     make(map[string]chan []byte),
		subscribed: make(map[string]bool),
		config:     config,
	}
}

// topic returns the channel for name, creating it on first use
func (mq *MemoryQueue) topic(name string) (chan []byte, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil, ErrQueueClosed
	}
	ch, ok := mq.topics[name]
	if !ok {
		ch = make(chan []byte, mq.config.BufferSize)
		mq.topics[name] = ch
	}
	return ch, nil
}

// Publish publishes a message to the queue
func (mq *MemoryQueue) Publish(ctx context.Context, topic string, message []byte) error {
	ch, err := mq.topic(topic)
	if err != nil {
		return err
	}

	mq.mu.RLock()
	defer mq.mu.RUnlock()
	// Close may have run between topic() and here
	if mq.closed {
		return ErrQueueClosed
	}

	timer := time.NewTimer(mq.config.PublishTimeout)
	defer timer.Stop()

	select {
	case ch <- message:
		mq.sent.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrPublishTimeout
	}
}

// Subscribe binds handler to topic; a topic accepts a single subscriber
func (mq *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	ch, err := mq.topic(topic)
	if err != nil {
		return err
	}

	mq.mu.Lock()
	if mq.subscribed[topic] {
		mq.mu.Unlock()
		return ErrAlreadyBound
	}
	mq.subscribed[topic] = true
	mq.mu.Unlock()

	go func() {
		for {
			select {
			case message, ok := <-ch:
				if !ok {
					return
				}
				mq.recv.Add(1)
				if err := handler(ctx, topic, message); err != nil {
					mq.failed.Add(1)
					if mq.OnError != nil {
						mq.OnError(topic, message, err)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Close closes the queue; subscribers drain what is buffered and then stop
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true

	for _, ch := range mq.topics {
		close(ch)
	}
	return nil
}

// Health checks the health of the queue
func (mq *MemoryQueue) Health() error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return ErrQueueClosed
	}
	return nil
}

// Stats returns queue statistics
func (mq *MemoryQueue) Stats() Stats {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	return Stats{
		Topics:       len(mq.topics),
		MessagesSent: mq.sent.Load(),
		MessagesRecv: mq.recv.Load(),
		HandlerErrs:  mq.failed.Load(),
		Connected:    !mq.closed,
	}
}
