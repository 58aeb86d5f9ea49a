package models

import "time"

// Event types
const (
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderManual        = "ORDER_NEEDS_MANUAL_FULFILLMENT"
	EventTypeBroadcastRequested = "BROADCAST_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPaidEvent is published after the success transaction commits
type OrderPaidEvent struct {
	BaseEvent
	OrderID     int64          `json:"order_id"`
	UserID      int64          `json:"user_id"`
	TotalAmount int64          `json:"total_amount"`
	ChargeID    string         `json:"charge_id"`
	NeedsManual bool           `json:"needs_manual_fulfillment"`
	Lines       []SnapshotLine `json:"lines"`
}

// BroadcastRequestedEvent carries an admin broadcast job; the worker fans it
// out to all non-blocked users under the rate limiter
type BroadcastRequestedEvent struct {
	BaseEvent
	RequestedBy int64  `json:"requested_by"`
	Text        string `json:"text"`
}
