package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tolerance between a client-side total and the server-computed one
var amountTolerance = decimal.New(1, -2)

// OrderServiceConfig carries the settings of the settlement flow
type OrderServiceConfig struct {
	Currency         string
	PlacementLockTTL time.Duration
}

// OrderService orchestrates pricing, payment and persistence of orders
type OrderService struct {
	carts     *CartService
	coupons   *CouponValidator
	orders    OrderRepository
	gateway   PaymentGateway
	locker    Locker
	publisher EventPublisher
	cfg       OrderServiceConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	carts *CartService,
	coupons *CouponValidator,
	orders OrderRepository,
	gateway PaymentGateway,
	locker Locker,
	publisher EventPublisher,
	cfg OrderServiceConfig,
) *OrderService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.PlacementLockTTL <= 0 {
		cfg.PlacementLockTTL = 30 * time.Second
	}
	return &OrderService{
		carts:     carts,
		coupons:   coupons,
		orders:    orders,
		gateway:   gateway,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// Quote is a priced cart
type Quote struct {
	Items      []models.CartItem   `json:"items"`
	Subtotal   decimal.Decimal     `json:"subtotal"`
	Discount   decimal.Decimal     `json:"discount"`
	TotalPrice decimal.Decimal     `json:"totalPrice"`
	Coupon     *models.CouponTerms `json:"coupon,omitempty"`
}

// PlaceOrderRequest is a checkout of the caller's current cart
type PlaceOrderRequest struct {
	UserID         string
	Address        models.Address
	Email          string
	PaymentMethod  models.PaymentMethod
	CouponCode     string
	IdempotencyKey string
	// ExpectedAmount is the total the client displayed, when it sent one
	ExpectedAmount *decimal.Decimal
}

// PlaceOrderResult is the stored order plus the provider order to pay, if any
type PlaceOrderResult struct {
	Order   *models.Order
	Payment *models.PaymentIntent
	Quote   *Quote
}

// ConfirmPaymentRequest carries the provider callback fields
type ConfirmPaymentRequest struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

// QuoteCart prices the caller's cart. A non-empty coupon code must be valid.
func (s *OrderService) QuoteCart(ctx context.Context, userID, couponCode string) (*Quote, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.QuoteCart")
	defer span.End()

	items, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.quote(ctx, items, couponCode, false)
}

// quote prices items. When lenient, a coupon that fails validation is
// dropped and the cart is priced without a discount.
func (s *OrderService) quote(ctx context.Context, items []models.CartItem, couponCode string, lenient bool) (*Quote, error) {
	lines := pricedLines(items)
	subtotal, err := ComputeTotal(lines, nil)
	if err != nil {
		return nil, err
	}

	q := &Quote{Items: items, Subtotal: subtotal, Discount: decimal.Zero, TotalPrice: subtotal}
	if couponCode == "" {
		return q, nil
	}

	terms, err := s.applyCoupon(ctx, couponCode, subtotal)
	switch {
	case err == nil:
	case lenient && errors.Is(err, apperr.ErrInvalidCoupon):
		s.logger.Info("Ignoring coupon at checkout", zap.String("code", couponCode), zap.Error(err))
		return q, nil
	default:
		return nil, err
	}

	total, err := ComputeTotal(lines, terms)
	if err != nil {
		return nil, err
	}
	q.TotalPrice = total
	q.Discount = subtotal.Sub(total)
	q.Coupon = terms
	return q, nil
}

// applyCoupon validates code against the cart subtotal
func (s *OrderService) applyCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (*models.CouponTerms, error) {
	return s.coupons.Validate(ctx, code, subtotal, s.now())
}

// PlaceOrder turns the caller's cart into an order. For gateway payments the
// provider order is created first so a failed gateway call leaves neither an
// order nor an emptied cart behind.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	} else {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			return s.replay(existing, req)
		}
	}

	lockName := "checkout:" + req.UserID
	token, ok, err := s.locker.AcquireLock(ctx, lockName, s.cfg.PlacementLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if !ok {
		util.OrdersFailedTotal.WithLabelValues("concurrent_checkout").Inc()
		return nil, fmt.Errorf("%w: a checkout is already in progress", apperr.ErrConflict)
	}
	defer s.releaseLock(lockName, token)

	result, err := s.placeLocked(ctx, req, key)
	if err != nil {
		util.SpanError(span, err)
		s.logger.Warn("Order placement failed",
			zap.String("user_id", req.UserID),
			zap.String("payment_method", string(req.PaymentMethod)),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (s *OrderService) placeLocked(ctx context.Context, req *PlaceOrderRequest, idempotencyKey string) (*PlaceOrderResult, error) {
	items, err := s.carts.List(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.ErrEmptyCart
	}

	q, err := s.quote(ctx, items, req.CouponCode, true)
	if err != nil {
		return nil, err
	}

	if req.ExpectedAmount != nil && req.ExpectedAmount.Sub(q.TotalPrice).Abs().GreaterThan(amountTolerance) {
		util.OrdersFailedTotal.WithLabelValues("amount_mismatch").Inc()
		return nil, apperr.Validation("amount %s does not match cart total %s", req.ExpectedAmount.StringFixed(2), q.TotalPrice.StringFixed(2))
	}

	var intent *models.PaymentIntent
	if req.PaymentMethod == models.PaymentMethodGateway && q.TotalPrice.IsPositive() {
		intent, err = s.gateway.CreatePaymentOrder(ctx, q.TotalPrice, s.cfg.Currency, paymentNotes(req))
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("gateway").Inc()
			return nil, err
		}
	}

	order := &models.Order{
		UserID:         req.UserID,
		TotalPrice:     q.TotalPrice,
		Status:         models.OrderStatusPending,
		PaymentMethod:  req.PaymentMethod,
		IsPaid:         req.PaymentMethod.PaidOnCreation() || q.TotalPrice.IsZero(),
		Address:        req.Address,
		IdempotencyKey: idempotencyKey,
	}
	if q.Coupon != nil {
		order.CouponCode = q.Coupon.Code
	}
	if intent != nil {
		order.ProviderOrderID = intent.ProviderOrderID
	}

	if err := s.orders.CreateOrder(ctx, order, snapshot(items)); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		if intent != nil {
			s.logger.Error("Provider order created but order not stored",
				zap.String("provider_order_id", intent.ProviderOrderID),
				zap.String("user_id", req.UserID),
				zap.Error(err))
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// The order is durable; a failed clear leaves stale lines but must not
	// fail the checkout.
	if err := s.carts.Clear(ctx, req.UserID); err != nil {
		s.logger.Error("Failed to clear cart after order", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	util.OrdersPlacedTotal.WithLabelValues(string(order.PaymentMethod)).Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
		zap.String("provider_order_id", order.ProviderOrderID))

	s.publishPlaced(ctx, order)

	return &PlaceOrderResult{Order: order, Payment: intent, Quote: q}, nil
}

// replay answers a retried checkout with the order stored under its key
func (s *OrderService) replay(existing *models.Order, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	if existing.UserID != req.UserID {
		return nil, fmt.Errorf("%w: idempotency key already used", apperr.ErrConflict)
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", existing.IdempotencyKey),
		zap.Int64("order_id", existing.ID))

	result := &PlaceOrderResult{Order: existing}
	if existing.ProviderOrderID != "" {
		result.Payment = &models.PaymentIntent{
			ProviderOrderID: existing.ProviderOrderID,
			Amount:          payment.ToMinorUnits(existing.TotalPrice, s.cfg.Currency),
			Currency:        s.cfg.Currency,
		}
	}
	return result, nil
}

func (s *OrderService) releaseLock(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.locker.ReleaseLock(ctx, name, token); err != nil {
		s.logger.Error("Failed to release checkout lock", zap.String("lock", name), zap.Error(err))
	}
}

func validatePlaceOrder(req *PlaceOrderRequest) error {
	if req.UserID == "" {
		return apperr.ErrUnauthorized
	}
	if field := req.Address.Missing(); field != "" {
		return apperr.Validation("address.%s is required", field)
	}
	switch req.PaymentMethod {
	case models.PaymentMethodGateway, models.PaymentMethodCashOnDelivery:
	default:
		return apperr.Validation("unknown payment method %q", req.PaymentMethod)
	}
	if req.ExpectedAmount != nil && req.ExpectedAmount.IsNegative() {
		return apperr.Validation("amount must not be negative")
	}
	return nil
}

func paymentNotes(req *PlaceOrderRequest) map[string]string {
	notes := map[string]string{
		"shipping_address": req.Address.String(),
		"customer_name":    req.Address.FullName,
		"customer_phone":   req.Address.Phone,
	}
	if req.Email != "" {
		notes["customer_email"] = req.Email
	}
	return notes
}

// snapshot freezes the cart's current prices into order items
func snapshot(items []models.CartItem) []models.OrderItem {
	out := make([]models.OrderItem, len(items))
	for i, item := range items {
		out[i] = models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return out
}

// ConfirmPayment verifies the provider signature and marks the order paid.
// The order status is left alone.
func (s *OrderService) ConfirmPayment(ctx context.Context, userID string, req *ConfirmPaymentRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmPayment")
	defer span.End()

	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}

	valid, err := s.gateway.VerifySignature(req.ProviderOrderID, req.ProviderPaymentID, req.Signature)
	if err != nil {
		util.PaymentVerificationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !valid {
		util.PaymentVerificationsTotal.WithLabelValues("mismatch").Inc()
		s.logger.Warn("Payment signature mismatch",
			zap.String("user_id", userID),
			zap.String("provider_order_id", req.ProviderOrderID),
			zap.String("provider_payment_id", req.ProviderPaymentID))
		return nil, apperr.ErrPaymentVerification
	}

	order, err := s.orders.GetOrderByProviderOrderID(ctx, req.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: provider order %s", apperr.ErrOrderNotFound, req.ProviderOrderID)
	}
	if order.IsPaid {
		return order, nil
	}

	if order.Status == models.OrderStatusCancelled {
		s.logger.Warn("Payment received for cancelled order, refund required",
			zap.Int64("order_id", order.ID),
			zap.String("provider_payment_id", req.ProviderPaymentID))
	}

	paid, err := s.orders.SetOrderPaid(ctx, order.ID, true, req.ProviderPaymentID)
	if errors.Is(err, apperr.ErrConflict) {
		// A concurrent confirmation already marked it paid and published.
		return s.orders.GetOrderByID(ctx, order.ID)
	}
	if err != nil {
		return nil, err
	}

	util.PaymentVerificationsTotal.WithLabelValues("verified").Inc()
	util.OrdersPaidTotal.Inc()
	s.logger.Info("Order paid",
		zap.Int64("order_id", paid.ID),
		zap.String("provider_payment_id", req.ProviderPaymentID))

	event := &models.OrderPaidEvent{
		BaseEvent:         newBaseEvent(models.EventTypeOrderPaid),
		OrderID:           paid.ID,
		UserID:            paid.UserID,
		TotalPrice:        paid.TotalPrice,
		ProviderOrderID:   paid.ProviderOrderID,
		ProviderPaymentID: paid.PaymentID,
	}
	if err := s.publisher.PublishOrderPaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	return paid, nil
}

// GetOrder returns one of the caller's orders
func (s *OrderService) GetOrder(ctx context.Context, userID string, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.ownedOrder(ctx, userID, orderID)
}

// ListOrders returns the caller's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}
	return s.orders.ListOrdersByUserID(ctx, userID)
}

// ownedOrder loads an order and hides it from anyone but its owner
func (s *OrderService) ownedOrder(ctx context.Context, userID string, orderID int64) (*models.Order, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: %d", apperr.ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *OrderService) publishPlaced(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderPlaced),
		OrderID:       order.ID,
		UserID:        order.UserID,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
		IsPaid:        order.IsPaid,
		Items:         items,
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
