package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"marketplace/internal/session"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// Recovery turns a panic into an internal error response
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"error":  recovered,
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"ip":     c.ClientIP(),
			"stack":  string(debug.Stack()),
		}).Error("Panic recovered")

		utils.Fail(c, utils.ErrInternalError, session.From(c).Flash())
		c.Abort()
	})
}
