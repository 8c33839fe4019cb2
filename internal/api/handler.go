package api

import (
	"context"
	"net/http"
	"time"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// HandlerConfig carries the settings the HTTP layer needs
type HandlerConfig struct {
	JWTSecret      string
	CookieName     string
	Currency       string
	DefaultCountry string
	// Checks are run by /ready, keyed by dependency name
	Checks map[string]HealthCheck
}

// Handler contains HTTP handlers
type Handler struct {
	cartService  *service.CartService
	orderService *service.OrderService
	cfg          HandlerConfig
}

// NewHandler creates a new HTTP handler
func NewHandler(cartService *service.CartService, orderService *service.OrderService, cfg HandlerConfig) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "token"
	}
	return &Handler{
		cartService:  cartService,
		orderService: orderService,
		cfg:          cfg,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/")
	authed.Use(authMiddleware([]byte(h.cfg.JWTSecret), h.cfg.CookieName), requireJSON())
	{
		authed.GET("/cart", h.getCart)
		authed.POST("/cart", h.addToCart)
		authed.PATCH("/cart", h.updateCart)
		authed.DELETE("/cart", h.removeFromCart)

		authed.POST("/coupon/apply", h.applyCoupon)
		authed.DELETE("/coupon", h.removeCoupon)

		authed.POST("/checkout/order", h.createCheckoutOrder)
		authed.POST("/checkout/verify", h.verifyPayment)

		authed.POST("/order", h.createOrder)
		authed.GET("/order", h.listOrders)
		authed.GET("/order/:id", h.getOrder)
		authed.DELETE("/order", h.cancelOrder)
	}

	admin := authed.Group("/admin")
	admin.Use(requireAdmin())
	{
		admin.GET("/orders", h.adminListOrders)
		admin.PATCH("/order/:id", h.adminUpdateOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs the dependency checks
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.cfg.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
