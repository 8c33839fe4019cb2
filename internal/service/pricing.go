package service

import (
	"fmt"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// Totals are kept to the currency's two minor digits.
const pricePlaces = 2

var hundred = decimal.NewFromInt(100)

// PricedLine is a line item reduced to what pricing needs
type PricedLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// ComputeTotal returns Σ(unitPrice × quantity) minus the coupon discount,
// floored at zero. It has no side effects.
func ComputeTotal(lines []PricedLine, terms *models.CouponTerms) (decimal.Decimal, error) {
	if len(lines) == 0 {
		return decimal.Zero, apperr.ErrEmptyCart
	}

	amount := decimal.Zero
	for i, line := range lines {
		if line.Quantity <= 0 {
			return decimal.Zero, apperr.Validation("line %d: quantity must be positive, got %d", i, line.Quantity)
		}
		if line.UnitPrice.IsNegative() {
			return decimal.Zero, apperr.Validation("line %d: negative unit price %s", i, line.UnitPrice)
		}
		amount = amount.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	if terms != nil {
		discounted, err := applyDiscount(amount, *terms)
		if err != nil {
			return decimal.Zero, err
		}
		amount = discounted
	}

	return amount.Round(pricePlaces), nil
}

func applyDiscount(amount decimal.Decimal, terms models.CouponTerms) (decimal.Decimal, error) {
	if terms.DiscountValue.IsNegative() {
		return decimal.Zero, apperr.Validation("coupon %q has a negative discount", terms.Code)
	}

	switch terms.DiscountType {
	case models.DiscountPercentage:
		amount = amount.Sub(amount.Mul(terms.DiscountValue.Div(hundred)))
	case models.DiscountFlat:
		amount = amount.Sub(terms.DiscountValue)
	default:
		return decimal.Zero, fmt.Errorf("coupon %q: unknown discount type %q", terms.Code, terms.DiscountType)
	}

	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	return amount, nil
}

// pricedLines converts joined cart rows using each product's discounted price
func pricedLines(items []models.CartItem) []PricedLine {
	lines := make([]PricedLine, len(items))
	for i, item := range items {
		lines[i] = PricedLine{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	return lines
}
