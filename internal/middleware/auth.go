package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace/internal/session"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// Authenticator resolves a bearer token to the caller's identity
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Identity, error)
}

// Auth builds the request context. Requests without a token continue
// anonymously; a token that fails to authenticate is rejected.
func Auth(authn Authenticator, flash session.FlashStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("request_id")

		token, present := bearerToken(c)
		if !present {
			session.Attach(c, session.NewRequestContext(requestID, nil, nil))
			c.Next()
			return
		}
		if token == "" {
			session.Attach(c, session.NewRequestContext(requestID, nil, nil))
			utils.Fail(c, utils.NewError(utils.CodeUnauthorized, "malformed authorization header"), nil)
			c.Abort()
			return
		}

		identity, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			session.Attach(c, session.NewRequestContext(requestID, nil, nil))
			utils.Fail(c, err, nil)
			c.Abort()
			return
		}

		var pending []utils.FlashMessage
		if flash != nil {
			pending, err = flash.Drain(c.Request.Context(), identity.UserID)
			if err != nil {
				log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
					"user_id": identity.UserID,
					"error":   err.Error(),
				}).Warn("Failed to load flash messages")
			}
		}

		session.Attach(c, session.NewRequestContext(requestID, identity, pending))
		c.Set("user_id", identity.UserID)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !session.From(c).Authenticated() {
			utils.Fail(c, utils.ErrUnauthorized, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireCapability admits callers holding one of caps
func RequireCapability(caps ...session.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := session.From(c)
		if !rc.Authenticated() {
			utils.Fail(c, utils.ErrUnauthorized, nil)
			c.Abort()
			return
		}
		for _, capability := range caps {
			if rc.Identity.Is(capability) {
				c.Next()
				return
			}
		}
		utils.Fail(c, utils.ErrForbidden, rc.Flash())
		c.Abort()
	}
}

// bearerToken reports the token and whether an Authorization header was sent
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}
