package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
)

const cartLineColumns = "id, user_id, product_id, quantity, created_at, updated_at"

// UpsertCartLine adds quantity to the user's line for a product, creating the
// line if needed. The increment happens in a single statement so concurrent
// adds for the same product accumulate.
func (s *Store) UpsertCartLine(ctx context.Context, userID string, productID int64, quantity int) (*models.CartLine, error) {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING ` + cartLineColumns

	var line models.CartLine
	err := s.db.GetContext(ctx, &line, query, userID, productID, quantity)
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("%w: %d", apperr.ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return &line, nil
}

// UpdateCartLineQuantity sets the quantity of an existing line
func (s *Store) UpdateCartLineQuantity(ctx context.Context, userID string, productID int64, quantity int) (*models.CartLine, error) {
	query := `
		UPDATE cart_items SET quantity = $3, updated_at = NOW()
		WHERE user_id = $1 AND product_id = $2
		RETURNING ` + cartLineColumns

	var line models.CartLine
	err := s.db.GetContext(ctx, &line, query, userID, productID, quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", apperr.ErrLineNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update cart line: %w", err)
	}
	return &line, nil
}

// DeleteCartLine removes one line from the user's cart
func (s *Store) DeleteCartLine(ctx context.Context, userID string, productID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: product %d", apperr.ErrLineNotFound, productID)
	}
	return nil
}

// ListCartItems returns the user's cart joined with current product data
func (s *Store) ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	query := `
		SELECT c.product_id, p.name, p.image, p.mrp_price, p.discount_price AS unit_price, c.quantity
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id`

	items := []models.CartItem{}
	if err := s.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	return items, nil
}

// ClearCart deletes every line of the user's cart
func (s *Store) ClearCart(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return res.RowsAffected()
}
