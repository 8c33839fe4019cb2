package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Cancellation reasons carried on ORDER_CANCELLED events
const (
	CancelReasonCustomer = "customer"
	CancelReasonAdmin    = "admin"
	CancelReasonTimeout  = "timeout"
)

// CancelOrder cancels one of the caller's orders. Only PENDING and
// PROCESSING orders can be cancelled; isPaid is left unchanged.
func (s *OrderService) CancelOrder(ctx context.Context, userID string, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, order, models.OrderStatusCancelled)
	if err != nil {
		util.SpanError(span, err)
		return nil, err
	}

	util.OrdersCancelledTotal.WithLabelValues(CancelReasonCustomer).Inc()
	s.publishCancelled(ctx, updated, CancelReasonCustomer)
	return updated, nil
}

// ListAllOrders returns every order, newest first
func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListAllOrders")
	defer span.End()

	return s.orders.ListOrders(ctx)
}

// UpdateStatus moves any order to a new status along the state machine
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !to.Valid() {
		return nil, apperr.Validation("unknown order status %q", to)
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	updated, err := s.transition(ctx, order, to)
	if err != nil {
		util.SpanError(span, err)
		return nil, err
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   updated.ID,
		UserID:    updated.UserID,
		From:      from,
		To:        to,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	if to == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.WithLabelValues(CancelReasonAdmin).Inc()
		s.publishCancelled(ctx, updated, CancelReasonAdmin)
	}
	return updated, nil
}

// transition checks the state machine and applies the change only if the
// stored status has not moved in the meantime
func (s *OrderService) transition(ctx context.Context, order *models.Order, to models.OrderStatus) (*models.Order, error) {
	if !models.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", apperr.ErrInvalidTransition, order.Status, to)
	}

	updated, err := s.orders.UpdateOrderStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		return nil, err
	}

	util.OrderStatusChangesTotal.WithLabelValues(string(to)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(to)))
	return updated, nil
}

// CancelStaleOrders cancels up to limit gateway orders that are still
// PENDING and unpaid and were created before cutoff. Orders paid or moved
// concurrently are skipped.
func (s *OrderService) CancelStaleOrders(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelStaleOrders")
	defer span.End()

	stale, err := s.orders.ListStalePendingOrders(ctx, models.PaymentMethodGateway, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale orders: %w", err)
	}

	cancelled := 0
	for _, order := range stale {
		updated, err := s.orders.CancelUnpaidOrder(ctx, order.ID)
		if errors.Is(err, apperr.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to cancel stale order", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}

		cancelled++
		util.StaleOrdersSweptTotal.Inc()
		util.OrdersCancelledTotal.WithLabelValues(CancelReasonTimeout).Inc()
		s.logger.Info("Stale order cancelled",
			zap.Int64("order_id", updated.ID),
			zap.String("provider_order_id", updated.ProviderOrderID),
			zap.Time("created_at", updated.CreatedAt))
		s.publishCancelled(ctx, updated, CancelReasonTimeout)
	}
	return cancelled, nil
}

func (s *OrderService) publishCancelled(ctx context.Context, order *models.Order, reason string) {
	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reason:    reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}
