package models

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated  = "order.created"
	EventOrderPaid     = "order.paid"
	EventOrderCanceled = "order.canceled"
	EventOrderFailed   = "order.failed"
)

// OutboxEvent est écrit dans la même transaction que le changement d'état qu'il décrit.
type OutboxEvent struct {
	ID        int64           `json:"-"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	OrderID   int64           `json:"order_id"`
	UserID    int64           `json:"user_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"-"`
}
