package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type applyCouponRequest struct {
	CouponCode string `json:"couponCode" binding:"required"`
}

func (h *Handler) applyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	quote, err := h.orderService.QuoteCart(c.Request.Context(), currentUserID(c), req.CouponCode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalPrice": quote.TotalPrice,
		"subtotal":   quote.Subtotal,
		"discount":   quote.Discount,
		"coupon":     quote.Coupon,
	})
}

func (h *Handler) removeCoupon(c *gin.Context) {
	quote, err := h.orderService.QuoteCart(c.Request.Context(), currentUserID(c), "")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totalPrice": quote.TotalPrice})
}
