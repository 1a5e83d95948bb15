// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// LifecycleOperations counts lifecycle operations by op and outcome.
	LifecycleOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phost_lifecycle_operations_total",
		Help: "Lifecycle operations by operation and outcome",
	}, []string{"op", "outcome"})

	LifecycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phost_lifecycle_duration_seconds",
		Help:    "Lifecycle operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"op"})

	// Compensations counts rollback runs by result ("clean" or "inconsistent").
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phost_compensations_total",
		Help: "Filesystem compensation runs by result",
	}, []string{"result"})

	ProxyNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phost_proxy_notifications_total",
		Help: "Proxy reload notifications by outcome",
	}, []string{"outcome"})

	NotFoundDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phost_not_found_documents_total",
		Help: "Custom not-found document lookups by outcome",
	}, []string{"outcome"})

	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phost_proxy_requests_total",
		Help: "Requests handled by the proxy sidecar by status class",
	}, []string{"code"})
)
