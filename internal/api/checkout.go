package api

import (
	"net/http"

	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type checkoutRequest struct {
	FullName   string           `json:"fullName" binding:"required,min=2"`
	Address    string           `json:"address" binding:"required,min=5"`
	City       string           `json:"city" binding:"required,min=2"`
	State      string           `json:"state" binding:"required,min=2"`
	ZipCode    string           `json:"zipCode" binding:"required,min=5"`
	Country    string           `json:"country"`
	Phone      string           `json:"phone" binding:"required,min=10"`
	Amount     *decimal.Decimal `json:"amount" binding:"required"`
	Email      string           `json:"email" binding:"required,email"`
	CouponCode string           `json:"couponCode"`
}

type verifyPaymentRequest struct {
	ProviderOrderID   string `json:"providerOrderId" binding:"required"`
	ProviderPaymentID string `json:"providerPaymentId" binding:"required"`
	ProviderSignature string `json:"providerSignature" binding:"required"`
}

// createCheckoutOrder places a gateway order for the caller's cart and
// returns the provider order the client pays against
func (h *Handler) createCheckoutOrder(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid checkout data",
			"details": err.Error(),
		})
		return
	}

	country := req.Country
	if country == "" {
		country = h.cfg.DefaultCountry
	}

	result, err := h.orderService.PlaceOrder(c.Request.Context(), &service.PlaceOrderRequest{
		UserID: currentUserID(c),
		Address: models.Address{
			FullName: req.FullName,
			Street:   req.Address,
			City:     req.City,
			State:    req.State,
			ZipCode:  req.ZipCode,
			Country:  country,
			Phone:    req.Phone,
		},
		Email:          req.Email,
		PaymentMethod:  models.PaymentMethodGateway,
		CouponCode:     req.CouponCode,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		ExpectedAmount: req.Amount,
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	resp := gin.H{
		"storeOrderId": result.Order.ID,
		"currency":     h.cfg.Currency,
		"isPaid":       result.Order.IsPaid,
	}
	if result.Payment != nil {
		resp["orderId"] = result.Payment.ProviderOrderID
		resp["amount"] = result.Payment.Amount
		resp["currency"] = result.Payment.Currency
	} else {
		resp["orderId"] = ""
		resp["amount"] = 0
	}
	c.JSON(http.StatusOK, resp)
}

// verifyPayment confirms a payment from the provider's checkout callback
func (h *Handler) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	order, err := h.orderService.ConfirmPayment(c.Request.Context(), currentUserID(c), &service.ConfirmPaymentRequest{
		ProviderOrderID:   req.ProviderOrderID,
		ProviderPaymentID: req.ProviderPaymentID,
		Signature:         req.ProviderSignature,
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   order,
	})
}
