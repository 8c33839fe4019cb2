package service

import (
	"context"
	"fmt"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CartService handles per-user cart operations
type CartService struct {
	carts    CartRepository
	products ProductReader
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartRepository, products ProductReader) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		logger:   util.GetLogger(),
	}
}

func validateLine(userID string, productID int64, quantity int) error {
	if userID == "" {
		return apperr.ErrUnauthorized
	}
	if productID <= 0 {
		return apperr.Validation("productId must be positive")
	}
	if quantity <= 0 {
		return apperr.Validation("quantity must be positive, got %d", quantity)
	}
	return nil
}

// Add increments the user's line for productID by quantity, creating it if needed
func (s *CartService) Add(ctx context.Context, userID string, productID int64, quantity int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	if err := validateLine(userID, productID, quantity); err != nil {
		return nil, err
	}

	if _, err := s.products.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	line, err := s.carts.UpsertCartLine(ctx, userID, productID, quantity)
	if err != nil {
		util.SpanError(span, err)
		return nil, err
	}

	s.logger.Debug("Cart line added",
		zap.String("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity))
	return line, nil
}

// UpdateQuantity replaces the quantity of an existing line
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	if err := validateLine(userID, productID, quantity); err != nil {
		return nil, err
	}
	return s.carts.UpdateCartLineQuantity(ctx, userID, productID, quantity)
}

// Remove deletes the user's line for productID
func (s *CartService) Remove(ctx context.Context, userID string, productID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.Remove")
	defer span.End()

	if err := validateLine(userID, productID, 1); err != nil {
		return err
	}
	return s.carts.DeleteCartLine(ctx, userID, productID)
}

// List returns the cart with current catalog names, images and prices
func (s *CartService) List(ctx context.Context, userID string) ([]models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.List")
	defer span.End()

	if userID == "" {
		return nil, apperr.ErrUnauthorized
	}
	return s.carts.ListCartItems(ctx, userID)
}

// Clear empties the user's cart
func (s *CartService) Clear(ctx context.Context, userID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	n, err := s.carts.ClearCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("clear cart for %s: %w", userID, err)
	}

	s.logger.Debug("Cart cleared", zap.String("user_id", userID), zap.Int64("lines", n))
	return nil
}
