package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/pkg/utils"
)

// Flash categories
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// FlashStore keeps one-shot messages for a user until their next request
type FlashStore interface {
	Push(ctx context.Context, userID uint64, msgs ...utils.FlashMessage) error
	// Drain returns and deletes the pending messages in one step
	Drain(ctx context.Context, userID uint64) ([]utils.FlashMessage, error)
}

// RedisFlashStore keeps messages in a Redis list per user
type RedisFlashStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisFlashStore creates a flash store; undelivered messages expire after ttl
func NewRedisFlashStore(client redis.Cmdable, ttl time.Duration) *RedisFlashStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisFlashStore{client: client, ttl: ttl}
}

func flashKey(userID uint64) string {
	return fmt.Sprintf("flash:%d", userID)
}

// Push appends messages to the user's queue
func (s *RedisFlashStore) Push(ctx context.Context, userID uint64, msgs ...utils.FlashMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	key := flashKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Drain reads and deletes inside MULTI so a message is delivered at most once
func (s *RedisFlashStore) Drain(ctx context.Context, userID uint64) ([]utils.FlashMessage, error) {
	key := flashKey(userID)

	var rangeCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw := rangeCmd.Val()
	msgs := make([]utils.FlashMessage, 0, len(raw))
	for _, item := range raw {
		var m utils.FlashMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
