package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
)

// GetCouponByCode looks a coupon up by exact, case-sensitive code
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, `
		SELECT id, code, discount_type, discount_value, minimum_order_amount, expires_at, created_at
		FROM coupons WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &coupon, nil
}
