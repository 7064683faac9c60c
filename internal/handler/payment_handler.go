package handler

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"marketplace/internal/consumer"
	"marketplace/internal/model"
	"marketplace/internal/session"
	"marketplace/pkg/log"
	"marketplace/pkg/queue"
	"marketplace/pkg/utils"
)

// HeaderCallbackToken authenticates gateway callbacks
const HeaderCallbackToken = "X-Callback-Token"

// PaymentHandler receives gateway callbacks and queues them for the payment consumer
type PaymentHandler struct {
	queue queue.Queue
	token string
}

// NewPaymentHandler creates a payment callback handler. An empty token rejects every callback.
func NewPaymentHandler(q queue.Queue, token string) *PaymentHandler {
	return &PaymentHandler{queue: q, token: token}
}

type callbackRequest struct {
	OrderID        uint64 `json:"order_id" binding:"required"`
	TransactionRef string `json:"transaction_ref" binding:"max=64"`
	Status         string `json:"status" binding:"required,oneof=completed cancelled failed"`
	Reason         string `json:"reason" binding:"max=500"`
}

// Callback accepts a gateway notification and answers once it is queued
func (h *PaymentHandler) Callback(c *gin.Context) {
	rc := session.From(c)

	given := c.GetHeader(HeaderCallbackToken)
	if h.token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
		log.WithContext(c.Request.Context()).WithField("ip", c.ClientIP()).Warn("Rejected payment callback with bad token")
		utils.Fail(c, utils.ErrUnauthorized, nil)
		return
	}

	var req callbackRequest
	if err := bind(c, &req); err != nil {
		utils.Fail(c, err, nil)
		return
	}
	if req.Status == model.PaymentEventCompleted && req.TransactionRef == "" {
		utils.Fail(c, utils.NewError(utils.CodeInvalidParam, "transaction_ref is required for completed payments"), nil)
		return
	}

	event := &model.PaymentEvent{
		OrderID:        req.OrderID,
		TransactionRef: req.TransactionRef,
		Status:         req.Status,
		Reason:         req.Reason,
		RequestID:      rc.RequestID,
	}
	if err := consumer.PublishPaymentEvent(c.Request.Context(), h.queue, event); err != nil {
		log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"order_id": req.OrderID,
			"error":    err.Error(),
		}).Error("Failed to queue payment callback")
		utils.Fail(c, utils.NewErrorWithErr(utils.CodeInternalError, "payment event not accepted", err), nil)
		return
	}

	utils.Success(c, gin.H{"accepted": true}, nil)
}
