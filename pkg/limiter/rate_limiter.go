package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter rate limiter interface
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	if redis.call('ZCARD', key) < limit then
		redis.call('ZADD', key, now, ARGV[5])
		redis.call('PEXPIRE', key, window_ms)
		return 1
	end
	return 0
`)

// SlidingWindowLimiter allows at most limit events per key within window, shared through Redis
type SlidingWindowLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow records one event for key and reports whether it fits in the window
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	windowStart := now - l.window.Milliseconds()

	result, err := slidingWindowScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("rate_limit:%s:%s", l.prefix, key)},
		now,
		windowStart,
		l.limit,
		l.window.Milliseconds(),
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

// KeyedTokenBucket keeps one in-process token bucket per key (e.g. client IP)
type KeyedTokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	idle    time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedTokenBucket creates per-key buckets refilling at r with burst b.
// Buckets unused for idle are dropped on the next Allow call.
func NewKeyedTokenBucket(r rate.Limit, b int, idle time.Duration) *KeyedTokenBucket {
	return &KeyedTokenBucket{
		buckets: make(map[string]*bucket),
		rate:    r,
		burst:   b,
		idle:    idle,
	}
}

// Allow checks if the request is allowed
func (l *KeyedTokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if l.idle > 0 && now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, k)
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

// Len returns the number of live buckets
func (l *KeyedTokenBucket) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
