package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations by operation",
	}, []string{"operation"})

	CartPersistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_persist_failures_total",
		Help: "Total number of cart snapshots that failed to persist",
	})

	CartPersistSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_persist_skipped_total",
		Help: "Total number of cart snapshots dropped because a newer one was already persisted",
	})

	SessionTouchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_touch_failures_total",
		Help: "Total number of failed session TTL refreshes",
	})

	PromoAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_attempts_total",
		Help: "Total number of promo code attempts",
	}, []string{"result"})

	CheckoutStepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_step_transitions_total",
		Help: "Total number of checkout step transitions",
	}, []string{"step", "result"})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	})

	OrdersConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Total number of orders confirmed by fulfillment",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order submissions",
	}, []string{"reason"})

	OrderSubmitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_submit_latency_seconds",
		Help:    "Latency of order submission",
		Buckets: prometheus.DefBuckets,
	})

	IdentityRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_requests_total",
		Help: "Total number of identity backend requests",
	}, []string{"operation", "outcome"})

	IdentityRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_request_latency_seconds",
		Help:    "Latency of identity backend requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

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
