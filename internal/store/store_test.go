package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests: set TEST_DATABASE_URL to a disposable Postgres database.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database (TEST_DATABASE_URL)")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedProduct(t *testing.T, s *Store, name, price string) int64 {
	t.Helper()

	var id int64
	err := s.db.Get(&id,
		"INSERT INTO products (name, mrp_price, discount_price) VALUES ($1, $2, $2) RETURNING id",
		name, decimal.RequireFromString(price))
	require.NoError(t, err)
	return id
}

func TestUpsertCartLineConcurrentAdds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := "user-" + uuid.NewString()
	productID := seedProduct(t, s, "Canvas Tote", "24.99")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertCartLine(ctx, userID, productID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := s.ListCartItems(ctx, userID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, decimal.RequireFromString("24.99").Equal(items[0].UnitPrice))
}

func TestUpsertCartLineUnknownProduct(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertCartLine(context.Background(), "user-x", 1<<40, 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
}

func TestCartLineNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpdateCartLineQuantity(ctx, "nobody", 1, 3)
	assert.ErrorIs(t, err, apperr.ErrLineNotFound)

	err = s.DeleteCartLine(ctx, "nobody", 1)
	assert.ErrorIs(t, err, apperr.ErrLineNotFound)
}

func TestCreateOrderAndStatusTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	productID := seedProduct(t, s, "Leather Wallet", "79.99")
	order := &models.Order{
		UserID:         "user-" + uuid.NewString(),
		TotalPrice:     decimal.RequireFromString("79.99"),
		Status:         models.OrderStatusPending,
		PaymentMethod:  models.PaymentMethodGateway,
		Address:        models.Address{FullName: "A", Street: "B", City: "C", State: "D", ZipCode: "11111", Country: "IN", Phone: "9999999999"},
		IdempotencyKey: uuid.NewString(),
	}
	items := []models.OrderItem{{ProductID: productID, Name: "Leather Wallet", Quantity: 1, UnitPrice: decimal.RequireFromString("79.99")}}

	require.NoError(t, s.CreateOrder(ctx, order, items))
	assert.NotZero(t, order.ID)
	require.Len(t, order.Items, 1)

	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Address, got.Address)
	assert.Len(t, got.Items, 1)

	_, err = s.UpdateOrderStatus(ctx, order.ID, models.OrderStatusProcessing, models.OrderStatusShipped)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	updated, err := s.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, updated.Status)

	stale, err := s.ListStalePendingOrders(ctx, models.PaymentMethodGateway, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	for _, o := range stale {
		assert.NotEqual(t, order.ID, o.ID)
	}
}

func TestSetOrderPaidOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order := &models.Order{
		UserID:          "user-" + uuid.NewString(),
		TotalPrice:      decimal.RequireFromString("49.98"),
		Status:          models.OrderStatusPending,
		PaymentMethod:   models.PaymentMethodGateway,
		Address:         models.Address{FullName: "A", Street: "B", City: "C", State: "D", ZipCode: "11111", Country: "IN", Phone: "9999999999"},
		ProviderOrderID: "order_" + uuid.NewString(),
		IdempotencyKey:  uuid.NewString(),
	}
	require.NoError(t, s.CreateOrder(ctx, order, nil))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SetOrderPaid(ctx, order.ID, true, "pay_1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, apperr.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, "pay_1", got.PaymentID)
}

func TestIdempotencyKeyUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := "idempotent-" + uuid.NewString()
	newOrder := func() *models.Order {
		return &models.Order{
			UserID:         "user-1",
			TotalPrice:     decimal.NewFromInt(10),
			Status:         models.OrderStatusPending,
			PaymentMethod:  models.PaymentMethodCashOnDelivery,
			IsPaid:         true,
			Address:        models.Address{FullName: "A", Street: "B", City: "C", State: "D", ZipCode: "11111", Country: "IN", Phone: "9999999999"},
			IdempotencyKey: key,
		}
	}

	require.NoError(t, s.CreateOrder(ctx, newOrder(), nil))
	assert.Error(t, s.CreateOrder(ctx, newOrder(), nil))

	found, err := s.GetOrderByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, found)

	missing, err := s.GetOrderByIdempotencyKey(ctx, "missing-"+uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
