// Package metrics declares the Prometheus collectors of the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barsync_vendor_requests_total",
		Help: "Vendor HTTP requests, labelled by vendor, operation and outcome.",
	}, []string{"vendor", "operation", "outcome"})

	VendorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barsync_vendor_request_duration_seconds",
		Help:    "Vendor HTTP request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"vendor", "operation"})

	DaysSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barsync_days_total",
		Help: "Day units of work finished, labelled by data type and final state.",
	}, []string{"data_type", "state"})

	RecordsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barsync_records_collected_total",
		Help: "Raw vendor records collected and enqueued.",
	}, []string{"data_type"})

	QueueItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barsync_queue_items_processed_total",
		Help: "Queue items processed, labelled by data type and result (inserted, skipped, error).",
	}, []string{"data_type", "result"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barsync_run_duration_seconds",
		Help:    "Wall time of orchestrated sync runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "barsync_circuit_breaker_state",
		Help: "Vendor circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})

	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barsync_circuit_breaker_transitions_total",
		Help: "Vendor circuit breaker state transitions.",
	}, []string{"name", "from", "to"})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barsync_notifications_failed_total",
		Help: "Run notifications the notifier failed to deliver.",
	})
)
