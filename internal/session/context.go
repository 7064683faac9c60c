package session

import (
	"github.com/gin-gonic/gin"

	"marketplace/pkg/utils"
)

const contextKey = "marketplace.request_context"

// RequestContext is built once per request by the auth middleware and handed
// to handlers, which pass it on to the response writer
type RequestContext struct {
	RequestID string
	Identity  *Identity
	flash     []utils.FlashMessage
}

// NewRequestContext creates a context seeded with messages left by earlier requests
func NewRequestContext(requestID string, identity *Identity, pending []utils.FlashMessage) *RequestContext {
	return &RequestContext{
		RequestID: requestID,
		Identity:  identity,
		flash:     append([]utils.FlashMessage(nil), pending...),
	}
}

// Authenticated reports whether the request carries a valid identity
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.Identity != nil
}

// UserID returns the caller's id, zero when anonymous
func (rc *RequestContext) UserID() uint64 {
	if !rc.Authenticated() {
		return 0
	}
	return rc.Identity.UserID
}

// Success queues a success message for this response
func (rc *RequestContext) Success(msg string) {
	rc.flash = append(rc.flash, utils.FlashMessage{Category: FlashSuccess, Message: msg})
}

// Error queues an error message for this response
func (rc *RequestContext) Error(msg string) {
	rc.flash = append(rc.flash, utils.FlashMessage{Category: FlashError, Message: msg})
}

// Deliver queues messages produced outside this request
func (rc *RequestContext) Deliver(msgs ...utils.FlashMessage) {
	rc.flash = append(rc.flash, msgs...)
}

// Flash returns the queued messages and empties the queue
func (rc *RequestContext) Flash() []utils.FlashMessage {
	if rc == nil {
		return nil
	}
	msgs := rc.flash
	rc.flash = nil
	return msgs
}

// Attach stores rc on the gin context
func Attach(c *gin.Context, rc *RequestContext) {
	c.Set(contextKey, rc)
}

// From returns the request context, or an anonymous one when none was attached
func From(c *gin.Context) *RequestContext {
	if v, ok := c.Get(contextKey); ok {
		if rc, ok := v.(*RequestContext); ok {
			return rc
		}
	}
	rc := &RequestContext{RequestID: c.GetString("request_id")}
	Attach(c, rc)
	return rc
}
