// Package apperr declares the error taxonomy shared by the store, service and
// API layers. Callers wrap these with fmt.Errorf("...: %w") and classify them
// with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentVerification = errors.New("payment verification failed")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidCoupon       = errors.New("invalid or expired coupon")
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrLineNotFound    = fmt.Errorf("cart item %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrCouponNotFound  = fmt.Errorf("coupon %w", ErrNotFound)
)

// Validation wraps ErrValidation with a field-level message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
