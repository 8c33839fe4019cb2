package service

import (
	"context"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// ProductReader resolves catalog products
type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// CartRepository persists per-user cart lines
type CartRepository interface {
	UpsertCartLine(ctx context.Context, userID string, productID int64, quantity int) (*models.CartLine, error)
	UpdateCartLineQuantity(ctx context.Context, userID string, productID int64, quantity int) (*models.CartLine, error)
	DeleteCartLine(ctx context.Context, userID string, productID int64) error
	ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error)
	ClearCart(ctx context.Context, userID string) (int64, error)
}

// CouponRepository looks coupons up by code
type CouponRepository interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// OrderRepository persists orders and their status
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	ListStalePendingOrders(ctx context.Context, method models.PaymentMethod, before time.Time, limit int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (*models.Order, error)
	CancelUnpaidOrder(ctx context.Context, orderID int64) (*models.Order, error)
	SetOrderPaid(ctx context.Context, orderID int64, paid bool, providerPaymentID string) (*models.Order, error)
}

// PaymentGateway creates provider orders and verifies payment signatures
type PaymentGateway interface {
	CreatePaymentOrder(ctx context.Context, amount decimal.Decimal, currency string, notes map[string]string) (*models.PaymentIntent, error)
	VerifySignature(providerOrderID, providerPaymentID, signature string) (bool, error)
}

// Locker is a distributed mutex keyed by name
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// EventPublisher publishes order lifecycle events
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}
