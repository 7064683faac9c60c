package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"marketplace/internal/monitor"
	"marketplace/internal/session"
	"marketplace/pkg/log"
)

// Logger request logging middleware, levelled by response status
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		statusCode := c.Writer.Status()

		fields := map[string]interface{}{
			"status":     statusCode,
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"latency":    time.Since(start).String(),
		}
		if uid := session.From(c).UserID(); uid != 0 {
			fields["user_id"] = uid
		}
		if traceID := monitor.TraceID(c.Request.Context()); traceID != "" {
			fields["trace_id"] = traceID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := log.WithContext(c.Request.Context()).WithFields(fields)
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request completed")
		}
	}
}
