package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"marketplace/internal/config"
)

var defaultCORSHeaders = []string{
	"Origin",
	"Content-Length",
	"Content-Type",
	"Authorization",
	"Accept",
	"X-Requested-With",
	HeaderRequestID,
}

// CORS Cross-Origin Resource Sharing middleware. An empty origin list allows all.
func CORS(cfg config.SecurityConfig) gin.HandlerFunc {
	c := cors.DefaultConfig()

	if len(cfg.CORS.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.CORS.AllowOrigins
	}
	if len(cfg.CORS.AllowMethods) > 0 {
		c.AllowMethods = cfg.CORS.AllowMethods
	}
	c.AllowHeaders = defaultCORSHeaders
	if len(cfg.CORS.AllowHeaders) > 0 {
		c.AllowHeaders = cfg.CORS.AllowHeaders
	}
	c.ExposeHeaders = []string{HeaderRequestID}
	// browsers reject credentials with a wildcard origin
	c.AllowCredentials = cfg.CORS.AllowCredentials && !c.AllowAllOrigins
	if cfg.CORS.MaxAge > 0 {
		c.MaxAge = cfg.CORS.MaxAge
	}

	return cors.New(c)
}
