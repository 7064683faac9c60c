package queue

import (
	"context"
	"errors"
)

// Queue publishes byte messages to named topics and delivers them to subscribers
type Queue interface {
	// Publish publishes a message to the specified topic
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe starts delivering messages of topic to handler until ctx is done
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error

	// Close closes the queue
	Close() error

	// Health checks the health of the queue
	Health() error
}

// MessageHandler handles incoming messages
type MessageHandler func(ctx context.Context, topic string, message []byte) error

// Stats queue statistics
type Stats struct {
	Topics       int   `json:"topics"`
	MessagesSent int64 `json:"messages_sent"`
	MessagesRecv int64 `json:"messages_received"`
	HandlerErrs  int64 `json:"handler_errors"`
	Connected    bool  `json:"connected"`
}

var (
	ErrQueueClosed    = errors.New("queue is closed")
	ErrPublishTimeout = errors.New("publish timeout")
	ErrAlreadyBound   = errors.New("topic already has a subscriber")
)
