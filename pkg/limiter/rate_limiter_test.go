package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func setupRedis(t *testing.T) *redis.Client {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		client.Close()
		s.Close()
	})
	return client
}

func TestSlidingWindowLimiter(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("BlocksAfterLimit", func(t *testing.T) {
		l := NewSlidingWindowLimiter(client, "promo", 3, time.Minute)

		for i := 0; i < 3; i++ {
			ok, err := l.Allow(ctx, "user:1")
			require.NoError(t, err)
			assert.True(t, ok, "attempt %d", i+1)
		}

		ok, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		l := NewSlidingWindowLimiter(client, "promo", 1, time.Minute)

		ok, err := l.Allow(ctx, "user:2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Allow(ctx, "user:3")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("WindowSlides", func(t *testing.T) {
		l := NewSlidingWindowLimiter(client, "short", 1, 50*time.Millisecond)

		ok, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		time.Sleep(80 * time.Millisecond)
		ok, err = l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RedisDown", func(t *testing.T) {
		s, err := miniredis.Run()
		require.NoError(t, err)
		c := redis.NewClient(&redis.Options{Addr: s.Addr()})
		defer c.Close()
		s.Close()

		l := NewSlidingWindowLimiter(c, "promo", 1, time.Minute)
		_, err = l.Allow(ctx, "k")
		assert.Error(t, err)
	})
}

func TestKeyedTokenBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("PerKeyBurst", func(t *testing.T) {
		l := NewKeyedTokenBucket(rate.Every(time.Hour), 2, time.Minute)

		for i := 0; i < 2; i++ {
			ok, _ := l.Allow(ctx, "10.0.0.1")
			assert.True(t, ok)
		}
		ok, _ := l.Allow(ctx, "10.0.0.1")
		assert.False(t, ok)

		ok, _ = l.Allow(ctx, "10.0.0.2")
		assert.True(t, ok)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("IdleBucketsDropped", func(t *testing.T) {
		l := NewKeyedTokenBucket(rate.Every(time.Hour), 1, time.Millisecond)

		_, _ = l.Allow(ctx, "a")
		time.Sleep(5 * time.Millisecond)
		_, _ = l.Allow(ctx, "b")
		assert.Equal(t, 1, l.Len())
	})
}
