package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testCoupons() memCoupons {
	return memCoupons{
		"FLAT10": {
			ID: 1, Code: "FLAT10", DiscountType: models.DiscountFlat, DiscountValue: d("10"),
			MinimumOrderAmount: d("0"), ExpiresAt: testNow.Add(24 * time.Hour),
		},
		"SAVE15": {
			ID: 2, Code: "SAVE15", DiscountType: models.DiscountPercentage, DiscountValue: d("15"),
			MinimumOrderAmount: d("100"), ExpiresAt: testNow.Add(24 * time.Hour),
		},
		"FREE": {
			ID: 4, Code: "FREE", DiscountType: models.DiscountFlat, DiscountValue: d("1000"),
			MinimumOrderAmount: d("0"), ExpiresAt: testNow.Add(24 * time.Hour),
		},
		"OLD": {
			ID: 3, Code: "OLD", DiscountType: models.DiscountFlat, DiscountValue: d("5"),
			MinimumOrderAmount: d("0"), ExpiresAt: testNow.Add(-time.Minute),
		},
	}
}

func TestCouponValidateAccepts(t *testing.T) {
	v := NewCouponValidator(testCoupons())

	terms, err := v.Validate(context.Background(), "SAVE15", d("129.97"), testNow)
	require.NoError(t, err)
	assert.Equal(t, "SAVE15", terms.Code)
	assert.Equal(t, models.DiscountPercentage, terms.DiscountType)
	assert.True(t, terms.DiscountValue.Equal(d("15")))
}

func TestCouponValidateRejects(t *testing.T) {
	v := NewCouponValidator(testCoupons())
	ctx := context.Background()

	tests := []struct {
		name   string
		code   string
		amount string
	}{
		{"expired with large cart", "OLD", "100000"},
		{"expired with small cart", "OLD", "1"},
		{"unknown code", "NOPE", "50"},
		{"below minimum", "SAVE15", "99.99"},
		{"empty code", "", "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(ctx, tt.code, d(tt.amount), testNow)
			assert.ErrorIs(t, err, apperr.ErrInvalidCoupon)
			assert.NotErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestCouponExpiresAtBoundary(t *testing.T) {
	v := NewCouponValidator(testCoupons())

	_, err := v.Validate(context.Background(), "FLAT10", d("50"), testNow.Add(24*time.Hour))
	assert.ErrorIs(t, err, apperr.ErrInvalidCoupon)
}
