package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type cartLineRequest struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

type cartRemoveRequest struct {
	ProductID int64 `json:"productId" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	items, err := h.cartService.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) addToCart(c *gin.Context) {
	var req cartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	line, err := h.cartService.Add(c.Request.Context(), currentUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, line)
}

func (h *Handler) updateCart(c *gin.Context) {
	var req cartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	line, err := h.cartService.UpdateQuantity(c.Request.Context(), currentUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, line)
}

func (h *Handler) removeFromCart(c *gin.Context) {
	var req cartRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.cartService.Remove(c.Request.Context(), currentUserID(c), req.ProductID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "item removed from cart"})
}
