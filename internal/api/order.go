package api

import (
	"net/http"
	"strconv"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createOrderRequest places an order from the caller's stored cart. Any
// cartItems sent by older clients are ignored.
type createOrderRequest struct {
	Address       models.Address `json:"address" binding:"required"`
	PaymentMethod string         `json:"paymentMethod" binding:"required"`
	CouponCode    string         `json:"couponCode"`
}

type cancelOrderRequest struct {
	OrderID int64 `json:"orderId" binding:"required"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(c, apperr.Validation("%v", err))
		return
	}

	if req.Address.Country == "" {
		req.Address.Country = h.cfg.DefaultCountry
	}

	result, err := h.orderService.PlaceOrder(c.Request.Context(), &service.PlaceOrderRequest{
		UserID:         currentUserID(c),
		Address:        req.Address,
		Email:          currentUserEmail(c),
		PaymentMethod:  method,
		CouponCode:     req.CouponCode,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	resp := gin.H{"order": result.Order}
	if result.Payment != nil {
		resp["payment"] = result.Payment
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), currentUserID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), currentUserID(c), req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) adminListOrders(c *gin.Context) {
	orders, err := h.orderService.ListAllOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) adminUpdateOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		respondError(c, apperr.Validation("%v", err))
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return 0, false
	}
	return orderID, true
}
