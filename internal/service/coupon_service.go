package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CouponValidator resolves a coupon code into discount terms
type CouponValidator struct {
	coupons CouponRepository
	logger  *zap.Logger
}

// NewCouponValidator creates a new coupon validator
func NewCouponValidator(coupons CouponRepository) *CouponValidator {
	return &CouponValidator{
		coupons: coupons,
		logger:  util.GetLogger(),
	}
}

// Validate returns the terms of code for a cart worth cartAmount at now.
// Unknown, expired and below-minimum coupons all fail with
// apperr.ErrInvalidCoupon so callers cannot tell them apart.
func (v *CouponValidator) Validate(ctx context.Context, code string, cartAmount decimal.Decimal, now time.Time) (*models.CouponTerms, error) {
	ctx, span := util.StartSpan(ctx, "CouponValidator.Validate")
	defer span.End()

	if code == "" {
		return nil, fmt.Errorf("%w: empty code", apperr.ErrInvalidCoupon)
	}

	coupon, err := v.coupons.GetCouponByCode(ctx, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, v.reject(code, "unknown")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}

	if !coupon.Applicable(now) {
		return nil, v.reject(code, "expired")
	}
	if cartAmount.LessThan(coupon.MinimumOrderAmount) {
		return nil, v.reject(code, "below_minimum")
	}

	util.CouponsAppliedTotal.WithLabelValues("accepted").Inc()
	terms := coupon.Terms()
	return &terms, nil
}

func (v *CouponValidator) reject(code, reason string) error {
	util.CouponsAppliedTotal.WithLabelValues(reason).Inc()
	v.logger.Info("Coupon rejected", zap.String("code", code), zap.String("reason", reason))
	return fmt.Errorf("%w: %s", apperr.ErrInvalidCoupon, reason)
}
