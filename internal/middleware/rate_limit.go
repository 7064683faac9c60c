package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"marketplace/internal/session"
	"marketplace/pkg/limiter"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// RateLimitConfig rate limit middleware configuration
type RateLimitConfig struct {
	Limiter limiter.RateLimiter
	// KeyFunc derives the bucket key; defaults to the authenticated user, then the client IP
	KeyFunc  func(c *gin.Context) string
	SkipFunc func(c *gin.Context) bool
}

// RateLimit rejects callers that exceed their bucket
func RateLimit(l limiter.RateLimiter) gin.HandlerFunc {
	return RateLimitWithConfig(RateLimitConfig{Limiter: l})
}

// RateLimitWithConfig rate limit middleware with configuration
func RateLimitWithConfig(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = callerKey
	}

	return func(c *gin.Context) {
		if cfg.SkipFunc != nil && cfg.SkipFunc(c) {
			c.Next()
			return
		}

		allowed, err := cfg.Limiter.Allow(c.Request.Context(), cfg.KeyFunc(c))
		if err != nil {
			// fail open when the limiter backend is down
			log.WithContext(c.Request.Context()).WithField("error", err.Error()).Warn("Rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			utils.Fail(c, utils.ErrRateLimit, session.From(c).Flash())
			c.Abort()
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if uid := session.From(c).UserID(); uid != 0 {
		return "user:" + strconv.FormatUint(uid, 10)
	}
	return "ip:" + c.ClientIP()
}
