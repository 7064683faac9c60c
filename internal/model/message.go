package model

import "time"

// PaymentEvent gateway callback queued for asynchronous handling
type PaymentEvent struct {
	OrderID        uint64    `json:"order_id"`
	TransactionRef string    `json:"transaction_ref"`
	Status         string    `json:"status"` // completed, cancelled, failed
	Reason         string    `json:"reason,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Payment event status
const (
	PaymentEventCompleted = "completed"
	PaymentEventCancelled = "cancelled"
	PaymentEventFailed    = "failed"
)
