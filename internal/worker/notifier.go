package worker

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"go.uber.org/zap"
)

// Notification is a message addressed to the owner of an order
type Notification struct {
	EventType string
	OrderID   int64
	UserID    string
	Subject   string
	Body      string
}

// Notifier delivers notifications to customers
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info("Order notification",
		zap.String("event_type", msg.EventType),
		zap.Int64("order_id", msg.OrderID),
		zap.String("user_id", msg.UserID),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

func placedNotification(e *models.OrderPlacedEvent) Notification {
	body := fmt.Sprintf("We received your order of %d item(s) totalling %s.", len(e.Items), e.TotalPrice.StringFixed(2))
	if e.PaymentMethod == models.PaymentMethodGateway && !e.IsPaid {
		body += " Complete the payment to confirm it."
	}
	return Notification{
		EventType: e.EventType,
		OrderID:   e.OrderID,
		UserID:    e.UserID,
		Subject:   fmt.Sprintf("Order #%d placed", e.OrderID),
		Body:      body,
	}
}

func paidNotification(e *models.OrderPaidEvent) Notification {
	return Notification{
		EventType: e.EventType,
		OrderID:   e.OrderID,
		UserID:    e.UserID,
		Subject:   fmt.Sprintf("Payment received for order #%d", e.OrderID),
		Body:      fmt.Sprintf("Payment %s of %s was confirmed.", e.ProviderPaymentID, e.TotalPrice.StringFixed(2)),
	}
}

func statusNotification(e *models.OrderStatusChangedEvent) Notification {
	return Notification{
		EventType: e.EventType,
		OrderID:   e.OrderID,
		UserID:    e.UserID,
		Subject:   fmt.Sprintf("Order #%d is %s", e.OrderID, e.To),
		Body:      fmt.Sprintf("Your order moved from %s to %s.", e.From, e.To),
	}
}

func cancelledNotification(e *models.OrderCancelledEvent) Notification {
	body := "Your order was cancelled."
	if e.Reason == service.CancelReasonTimeout {
		body = "Your order was cancelled because payment was not completed in time."
	}
	return Notification{
		EventType: e.EventType,
		OrderID:   e.OrderID,
		UserID:    e.UserID,
		Subject:   fmt.Sprintf("Order #%d cancelled", e.OrderID),
		Body:      body,
	}
}
