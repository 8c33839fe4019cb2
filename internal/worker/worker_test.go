package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEventLog struct {
	mu        sync.Mutex
	processed map[string]string
}

func newMemEventLog() *memEventLog {
	return &memEventLog{processed: make(map[string]string)}
}

func (m *memEventLog) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *memEventLog) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = eventType
	return nil
}

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func eventMessage(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func placedEvent(id string) *models.OrderPlacedEvent {
	return &models.OrderPlacedEvent{
		BaseEvent:     models.BaseEvent{EventID: id, EventType: models.EventTypeOrderPlaced, Timestamp: time.Now()},
		OrderID:       7,
		UserID:        "user-1",
		TotalPrice:    decimal.RequireFromString("119.97"),
		PaymentMethod: models.PaymentMethodGateway,
		Items:         []models.OrderItemData{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
	}
}

func TestNotificationWorkerDeliversOncePerEvent(t *testing.T) {
	events := newMemEventLog()
	notifier := &recordingNotifier{}
	w := NewNotificationWorker(nil, events, notifier)
	ctx := context.Background()

	msg := eventMessage(t, placedEvent("evt-1"))
	require.NoError(t, w.Handle(ctx, msg))
	require.NoError(t, w.Handle(ctx, msg))

	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, int64(7), n.OrderID)
	assert.Equal(t, "user-1", n.UserID)
	assert.Equal(t, "Order #7 placed", n.Subject)
	assert.Contains(t, n.Body, "119.97")
	assert.Contains(t, n.Body, "Complete the payment")
	assert.Equal(t, models.EventTypeOrderPlaced, events.processed["evt-1"])
}

func TestNotificationWorkerLeavesFailedEventUnprocessed(t *testing.T) {
	events := newMemEventLog()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	w := NewNotificationWorker(nil, events, notifier)
	ctx := context.Background()

	msg := eventMessage(t, placedEvent("evt-2"))
	assert.Error(t, w.Handle(ctx, msg))
	assert.Empty(t, events.processed)

	notifier.err = nil
	require.NoError(t, w.Handle(ctx, msg))
	assert.Len(t, notifier.sent, 1)
}

func TestNotificationWorkerCancelledByTimeout(t *testing.T) {
	notifier := &recordingNotifier{}
	w := NewNotificationWorker(nil, newMemEventLog(), notifier)

	err := w.Handle(context.Background(), eventMessage(t, &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeOrderCancelled, Timestamp: time.Now()},
		OrderID:   9,
		UserID:    "user-1",
		Reason:    "timeout",
	}))
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].Body, "not completed in time")
}

type fakeCanceller struct {
	cutoffs []time.Time
	batches []int
}

func (f *fakeCanceller) CancelStaleOrders(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	if n > limit {
		n = limit
	}
	return n, nil
}

type fakeLocker struct {
	held bool
}

func (l *fakeLocker) AcquireLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "tok", true, nil
}

func (l *fakeLocker) ReleaseLock(context.Context, string, string) error {
	l.held = false
	return nil
}

func TestSweeperCancelsInBatches(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	orders := &fakeCanceller{batches: []int{sweepBatchSize, 3}}
	locker := &fakeLocker{}
	s := NewStaleOrderSweeper(orders, locker, 30*time.Minute, time.Minute)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sweepBatchSize+3, n)
	require.Len(t, orders.cutoffs, 2)
	assert.Equal(t, now.Add(-30*time.Minute), orders.cutoffs[0])
	assert.False(t, locker.held)
}

func TestSweeperSkipsWhenLockHeld(t *testing.T) {
	orders := &fakeCanceller{batches: []int{5}}
	s := NewStaleOrderSweeper(orders, &fakeLocker{held: true}, 30*time.Minute, time.Minute)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, orders.cutoffs)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	s := NewStaleOrderSweeper(&fakeCanceller{}, &fakeLocker{}, time.Minute, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
