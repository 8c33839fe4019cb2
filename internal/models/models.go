package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Image         string          `db:"image" json:"image"`
	MRPPrice      decimal.Decimal `db:"mrp_price" json:"mrpPrice"`
	DiscountPrice decimal.Decimal `db:"discount_price" json:"discountPrice"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// CartLine is one (user, product) row of a cart
type CartLine struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	ProductID int64     `db:"product_id" json:"productId"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CartItem is a cart line joined with live catalog data.
// UnitPrice is the product's current discounted price.
type CartItem struct {
	ProductID int64           `db:"product_id" json:"productId"`
	Name      string          `db:"name" json:"name"`
	Image     string          `db:"image" json:"image"`
	MRPPrice  decimal.Decimal `db:"mrp_price" json:"mrpPrice"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// Coupon represents a discount code
type Coupon struct {
	ID                 int64           `db:"id" json:"id"`
	Code               string          `db:"code" json:"code"`
	DiscountType       DiscountType    `db:"discount_type" json:"discountType"`
	DiscountValue      decimal.Decimal `db:"discount_value" json:"discountValue"`
	MinimumOrderAmount decimal.Decimal `db:"minimum_order_amount" json:"minimumOrderAmount"`
	ExpiresAt          time.Time       `db:"expires_at" json:"expiresAt"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
}

// Applicable reports whether the coupon has not expired at now.
func (c *Coupon) Applicable(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Terms returns the discount terms consumed by pricing.
func (c *Coupon) Terms() CouponTerms {
	return CouponTerms{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
	}
}

// CouponTerms is the resolved discount of a validated coupon
type CouponTerms struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
}

// Address is the shipping address stored with an order
type Address struct {
	FullName string `json:"fullName" binding:"required"`
	Street   string `json:"street" binding:"required"`
	City     string `json:"city" binding:"required"`
	State    string `json:"state" binding:"required"`
	ZipCode  string `json:"zipCode" binding:"required"`
	Country  string `json:"country"`
	Phone    string `json:"phone" binding:"required"`
}

// Missing returns the name of the first empty field, or "" when complete.
func (a Address) Missing() string {
	fields := []struct{ name, value string }{
		{"fullName", a.FullName},
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
		{"country", a.Country},
		{"phone", a.Phone},
	}
	for _, f := range fields {
		if f.value == "" {
			return f.name
		}
	}
	return ""
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %s, %s %s, %s", a.Street, a.City, a.State, a.ZipCode, a.Country)
}

// Value stores the address as JSONB
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan reads the address from a JSONB column
func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = Address{}
		return nil
	default:
		return fmt.Errorf("unsupported address type %T", src)
	}
}

// Order represents a customer order
type Order struct {
	ID              int64           `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"userId"`
	TotalPrice      decimal.Decimal `db:"total_price" json:"totalPrice"`
	Status          OrderStatus     `db:"status" json:"status"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"paymentMethod"`
	IsPaid          bool            `db:"is_paid" json:"isPaid"`
	Address         Address         `db:"address" json:"address"`
	CouponCode      string          `db:"coupon_code" json:"couponCode,omitempty"`
	ProviderOrderID string          `db:"provider_order_id" json:"providerOrderId,omitempty"`
	PaymentID       string          `db:"provider_payment_id" json:"providerPaymentId,omitempty"`
	IdempotencyKey  string          `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
	Items           []OrderItem     `db:"-" json:"orderItems"`
}

// OrderItem is the price snapshot of a cart line taken at placement
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"orderId"`
	ProductID int64           `db:"product_id" json:"productId"`
	Name      string          `db:"name" json:"name"`
	Image     string          `db:"image" json:"image"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unitPrice"`
}

// PaymentIntent is the provider-side order created for a checkout attempt.
// Amount is in minor currency units.
type PaymentIntent struct {
	ProviderOrderID string            `json:"orderId"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Receipt         string            `json:"receipt,omitempty"`
	Notes           map[string]string `json:"-"`
}
