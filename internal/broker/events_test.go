package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestHandleMessageRoutesByType(t *testing.T) {
	eh := NewEventHandler()

	var placed *models.OrderPlacedEvent
	var paid *models.OrderPaidEvent
	eh.OnOrderPlaced(func(_ context.Context, e *models.OrderPlacedEvent) error {
		placed = e
		return nil
	})
	eh.OnOrderPaid(func(_ context.Context, e *models.OrderPaidEvent) error {
		paid = e
		return nil
	})

	err := eh.HandleMessage(context.Background(), message(t, &models.OrderPlacedEvent{
		BaseEvent:  models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderPlaced, Timestamp: time.Now()},
		OrderID:    7,
		UserID:     "u1",
		TotalPrice: decimal.RequireFromString("119.97"),
	}))
	require.NoError(t, err)
	require.NotNil(t, placed)
	assert.Equal(t, int64(7), placed.OrderID)
	assert.True(t, decimal.RequireFromString("119.97").Equal(placed.TotalPrice))
	assert.Nil(t, paid)

	err = eh.HandleMessage(context.Background(), message(t, &models.OrderPaidEvent{
		BaseEvent:       models.BaseEvent{EventID: "e2", EventType: models.EventTypeOrderPaid},
		OrderID:         7,
		ProviderOrderID: "order_abc",
	}))
	require.NoError(t, err)
	require.NotNil(t, paid)
	assert.Equal(t, "order_abc", paid.ProviderOrderID)
}

func TestHandleMessageIgnoresUnregisteredAndUnknownTypes(t *testing.T) {
	eh := NewEventHandler()

	err := eh.HandleMessage(context.Background(), message(t, &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "e3", EventType: models.EventTypeOrderCancelled},
	}))
	assert.NoError(t, err)

	err = eh.HandleMessage(context.Background(), message(t, &models.BaseEvent{EventID: "e4", EventType: "SOMETHING_ELSE"}))
	assert.NoError(t, err)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	err := NewEventHandler().HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
