package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	}, []string{"payment_method"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order placements",
	}, []string{"reason"})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of gateway orders confirmed as paid",
	})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"by"})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Total number of order status transitions",
	}, []string{"to"})

	CouponsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupons_applied_total",
		Help: "Coupon validations by outcome",
	}, []string{"outcome"})

	PaymentVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment signature verifications by outcome",
	}, []string{"outcome"})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	StaleOrdersSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stale_orders_swept_total",
		Help: "Total number of unpaid orders cancelled by the sweeper",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_notifications_total",
		Help: "Order notifications dispatched by event type",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
