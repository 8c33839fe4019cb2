package worker

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventLog records which events have already been handled
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// NotificationWorker turns order events into customer notifications
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	events       EventLog
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, events EventLog, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		events:       events,
		notifier:     notifier,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderPlaced(func(ctx context.Context, e *models.OrderPlacedEvent) error {
		return w.deliver(ctx, e.BaseEvent, placedNotification(e))
	})
	w.eventHandler.OnOrderPaid(func(ctx context.Context, e *models.OrderPaidEvent) error {
		return w.deliver(ctx, e.BaseEvent, paidNotification(e))
	})
	w.eventHandler.OnOrderStatusChanged(func(ctx context.Context, e *models.OrderStatusChangedEvent) error {
		return w.deliver(ctx, e.BaseEvent, statusNotification(e))
	})
	w.eventHandler.OnOrderCancelled(func(ctx context.Context, e *models.OrderCancelledEvent) error {
		return w.deliver(ctx, e.BaseEvent, cancelledNotification(e))
	})

	return w
}

// Start consumes order events until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.Handle)
}

// Handle processes a single order event message
func (w *NotificationWorker) Handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker...")
	return w.consumer.Close()
}

// deliver sends n once per event id
func (w *NotificationWorker) deliver(ctx context.Context, event models.BaseEvent, n Notification) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.deliver")
	defer span.End()

	processed, err := w.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", event.EventID, err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := w.notifier.Notify(ctx, n); err != nil {
		util.SpanError(span, err)
		return fmt.Errorf("failed to notify for event %s: %w", event.EventID, err)
	}

	if err := w.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event %s: %w", event.EventID, err)
	}

	util.NotificationsSentTotal.WithLabelValues(event.EventType).Inc()
	return nil
}

// StaleOrderCanceller cancels unpaid orders created before a cutoff
type StaleOrderCanceller interface {
	CancelStaleOrders(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

const (
	sweepLockName  = "stale-order-sweep"
	sweepBatchSize = 100
)

// StaleOrderSweeper periodically cancels gateway orders left unpaid past
// the order timeout. Replicas share a lock so one sweep runs at a time.
type StaleOrderSweeper struct {
	orders   StaleOrderCanceller
	locker   service.Locker
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewStaleOrderSweeper creates a new sweeper
func NewStaleOrderSweeper(orders StaleOrderCanceller, locker service.Locker, timeout, interval time.Duration) *StaleOrderSweeper {
	return &StaleOrderSweeper{
		orders:   orders,
		locker:   locker,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Start sweeps every interval until ctx is cancelled
func (s *StaleOrderSweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting stale order sweeper...",
		zap.Duration("timeout", s.timeout),
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping stale order sweeper...")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Stale order sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass and returns the number of cancelled orders. It does
// nothing when another replica holds the sweep lock.
func (s *StaleOrderSweeper) Sweep(ctx context.Context) (int, error) {
	token, ok, err := s.locker.AcquireLock(ctx, sweepLockName, s.interval)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		return 0, nil
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), sweepLockName, token); err != nil {
			s.logger.Warn("Failed to release sweep lock", zap.Error(err))
		}
	}()

	cutoff := s.now().Add(-s.timeout)
	total := 0
	for {
		n, err := s.orders.CancelStaleOrders(ctx, cutoff, sweepBatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < sweepBatchSize {
			break
		}
	}

	if total > 0 {
		s.logger.Info("Stale orders cancelled", zap.Int("count", total), zap.Time("cutoff", cutoff))
	}
	return total, nil
}
