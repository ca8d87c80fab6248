package kafka

import "time"

const (
	TopicOrderPlaced    = `checkout-service.order-placed`
	TopicOrderCancelled = `checkout-service.order-cancelled`
)

// Events published after the checkout transaction commits. Consumers
// (shipping, notifications) are downstream services.

type OrderPlacedEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Total     int64     `json:"total"` // smallest currency unit
	CreatedAt time.Time `json:"created_at"`
}

type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}
