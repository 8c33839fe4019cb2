package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, user_id, total_price, status, payment_method, is_paid, address, coupon_code,
	provider_order_id, provider_payment_id, idempotency_key, created_at, updated_at`

const orderItemColumns = "id, order_id, product_id, name, image, quantity, unit_price"

// CreateOrder inserts an order and its item snapshot in one transaction.
// ID and timestamps are filled in on success.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (user_id, total_price, status, payment_method, is_paid, address,
			coupon_code, provider_order_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.UserID, order.TotalPrice, order.Status, order.PaymentMethod, order.IsPaid, order.Address,
		order.CouponCode, order.ProviderOrderID, order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	stored := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		item.OrderID = order.ID
		err := tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, name, image, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Name, item.Image, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
		stored = append(stored, item)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	order.Items = stored
	return nil
}

// GetOrderByID retrieves an order and its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// GetOrderByProviderOrderID retrieves the order created for a provider order
func (s *Store) GetOrderByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE provider_order_id = $1", providerOrderID)
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key.
// It returns nil, nil when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	order, err := s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, apperr.ErrOrderNotFound) {
		return nil, nil
	}
	return order, err
}

func (s *Store) getOrder(ctx context.Context, query string, arg interface{}) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", apperr.ErrOrderNotFound, arg)
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUserID retrieves orders for a user, newest first
func (s *Store) ListOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
}

// ListOrders retrieves every order, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.listOrders(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
}

// ListStalePendingOrders returns unpaid PENDING orders of a payment method
// created before the cutoff
func (s *Store) ListStalePendingOrders(ctx context.Context, method models.PaymentMethod, before time.Time, limit int) ([]models.Order, error) {
	return s.listOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND NOT is_paid AND payment_method = $2 AND created_at < $3
		ORDER BY created_at
		LIMIT $4`,
		models.OrderStatusPending, method, before, limit)
}

func (s *Store) listOrders(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.attachItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	query, args, err := sqlx.In(
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	for _, item := range items {
		o := byID[item.OrderID]
		o.Items = append(o.Items, item)
	}
	return nil
}

// UpdateOrderStatus moves an order from one status to another. The update
// only applies while the stored status still equals from.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+orderColumns,
		to, orderID, from)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d is no longer %s: %w", orderID, from, apperr.ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := s.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelUnpaidOrder cancels an order that is still PENDING and unpaid
func (s *Store) CancelUnpaidOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND NOT is_paid
		RETURNING `+orderColumns,
		models.OrderStatusCancelled, orderID, models.OrderStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d is paid or no longer pending: %w", orderID, apperr.ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	if err := s.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// SetOrderPaid flips the paid flag and records the provider payment id. Only
// one caller wins the flip; the others get ErrConflict.
func (s *Store) SetOrderPaid(ctx context.Context, orderID int64, paid bool, providerPaymentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		UPDATE orders SET is_paid = $1, provider_payment_id = $2, updated_at = NOW()
		WHERE id = $3 AND is_paid <> $1
		RETURNING `+orderColumns,
		paid, providerPaymentID, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d missing or already is_paid=%t: %w", orderID, paid, apperr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set order paid: %w", err)
	}

	if err := s.attachItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
