package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/config"
	"marketplace/pkg/log"
)

var (
	Client *redis.Client
)

// Init initializes the Redis client with the given configuration.
func Init(ctx context.Context, cfg *config.Config) error {
	client := NewClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect redis: %w", err)
	}

	Client = client
	log.WithField("addr", cfg.Redis.GetAddr()).Info("redis connected")
	return nil
}

// NewClient builds a client without checking connectivity
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// Close closes the Redis client connection.
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}

// Health checks the health status of the Redis client.
func Health(ctx context.Context) error {
	if Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return Client.Ping(ctx).Err()
}
