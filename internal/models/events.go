package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after an order and its items are stored
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	UserID        string          `json:"user_id"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	IsPaid        bool            `json:"is_paid"`
	Items         []OrderItemData `json:"items"`
}

// OrderPaidEvent published when a gateway payment is verified
type OrderPaidEvent struct {
	BaseEvent
	OrderID           int64           `json:"order_id"`
	UserID            string          `json:"user_id"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	ProviderOrderID   string          `json:"provider_order_id"`
	ProviderPaymentID string          `json:"provider_payment_id"`
}

// OrderStatusChangedEvent published on admin status changes
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64       `json:"order_id"`
	UserID  string      `json:"user_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// OrderCancelledEvent published when a customer or the sweeper cancels an order
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}

// OrderItemData is the event representation of an order item
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
