package models

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:    {OrderStatusProcessing: true, OrderStatusCancelled: true},
	OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusCancelled: true},
	OrderStatusShipped:    {OrderStatusDelivered: true},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// CanTransition reports whether an order may move from one status to another.
// Staying in the same status is not a transition.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

type PaymentMethod string

const (
	PaymentMethodGateway        PaymentMethod = "GATEWAY"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
)

// ParsePaymentMethod also accepts the storefront's legacy names.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GATEWAY", "RAZORPAY":
		return PaymentMethodGateway, nil
	case "CASH_ON_DELIVERY", "COD":
		return PaymentMethodCashOnDelivery, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// PaidOnCreation reports the initial isPaid flag. Cash on delivery is
// treated as settled when the order is placed.
func (m PaymentMethod) PaidOnCreation() bool {
	return m == PaymentMethodCashOnDelivery
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFlat       DiscountType = "FLAT"
)
