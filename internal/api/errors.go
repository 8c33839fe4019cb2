package api

import (
	"errors"
	"net/http"

	"checkout-service/internal/apperr"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgCheckoutFailed = "payment failed, try again"
	msgInvalidCoupon  = "invalid or expired coupon"
	msgInternal       = "internal server error"
)

// statusFor maps the error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrEmptyCart),
		errors.Is(err, apperr.ErrInvalidCoupon),
		errors.Is(err, apperr.ErrPaymentVerification):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the error text shown to clients. Coupon failures never
// reveal which check failed.
func publicMessage(err error, status int) string {
	switch {
	case errors.Is(err, apperr.ErrInvalidCoupon):
		return msgInvalidCoupon
	case errors.Is(err, apperr.ErrPaymentVerification):
		return apperr.ErrPaymentVerification.Error()
	case errors.Is(err, apperr.ErrGatewayUnavailable):
		return msgCheckoutFailed
	case status >= http.StatusInternalServerError:
		return msgInternal
	default:
		return err.Error()
	}
}

// respondError writes the mapped status and logs the underlying error
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	logError(c, err, status)
	c.JSON(status, gin.H{"error": publicMessage(err, status)})
}

// respondCheckoutError is respondError for payment endpoints, where server
// side failures collapse into one retryable message
func respondCheckoutError(c *gin.Context, err error) {
	status := statusFor(err)
	logError(c, err, status)

	msg := publicMessage(err, status)
	if status >= http.StatusInternalServerError {
		msg = msgCheckoutFailed
	}
	c.JSON(status, gin.H{"error": msg})
}

func logError(c *gin.Context, err error, status int) {
	fields := []zap.Field{
		zap.String("path", c.FullPath()),
		zap.String("user_id", currentUserID(c)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed", fields...)
		return
	}
	util.GetLogger().Info("Request rejected", fields...)
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
