// Package metrics holds the service's Prometheus collectors. InitMetrics must
// be called before any Record helper.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch operations used as the "operation" label.
const (
	OperationSend    = "send"
	OperationPublish = "publish"
	OperationStream  = "stream"
)

var (
	// Metrics variables - these will be initialized by InitMetrics
	DispatchesTotal            *prometheus.CounterVec
	DispatchDuration           *prometheus.HistogramVec
	DispatchesInFlight         *prometheus.GaugeVec
	StreamItemsTotal           *prometheus.CounterVec
	RateLimitExceeded          *prometheus.CounterVec
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDuration        *prometheus.HistogramVec
	PubsubPublishRequestsTotal *prometheus.CounterVec
	PubsubPublishDuration      prometheus.Histogram
	PubsubMessageSizeBytes     *prometheus.HistogramVec
	PubsubCircuitState         prometheus.Gauge
	ErrorsTotal                *prometheus.CounterVec
)

// InitMetrics initializes metrics with a specific registry
func InitMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return fmt.Errorf("registry cannot be nil")
	}

	factory := promauto.With(reg)

	DispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediator_dispatches_total",
			Help: "Total number of mediator dispatches by outcome",
		},
		[]string{"operation", "message_type", "outcome"},
	)

	DispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediator_dispatch_duration_seconds",
			Help:    "Duration of mediator dispatches in seconds; streams are measured until fully consumed or abandoned",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "message_type"},
	)

	DispatchesInFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediator_dispatches_in_flight",
			Help: "Number of dispatches currently executing",
		},
		[]string{"operation"},
	)

	StreamItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediator_stream_items_total",
			Help: "Total number of items yielded by streams",
		},
		[]string{"message_type"},
	)

	RateLimitExceeded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediator_rate_limit_exceeded_total",
			Help: "Total number of dispatches rejected while waiting for the rate limiter",
		},
		[]string{"operation"},
	)

	HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediator_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediator_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	PubsubPublishRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediator_pubsub_publish_requests_total",
			Help: "Total number of Pub/Sub publish requests",
		},
		[]string{"status", "message_type"},
	)

	PubsubPublishDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediator_pubsub_publish_duration_seconds",
			Help:    "Duration of Pub/Sub publish operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PubsubMessageSizeBytes = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mediator_pubsub_message_size_bytes",
			Help: "Size of messages published to Pub/Sub in bytes",
			Buckets: []float64{
				100, 500, 1000, 5000, 10000, 50000, 100000,
			},
		},
		[]string{"message_type"},
	)

	PubsubCircuitState = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediator_pubsub_circuit_state",
			Help: "State of the Pub/Sub circuit breaker (0 closed, 1 open, 2 half-open)",
		},
	)

	ErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediator_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)

	return nil
}

// RecordDispatch records the outcome and duration of a finished dispatch
func RecordDispatch(operation, messageType, outcome string, d time.Duration) {
	DispatchesTotal.WithLabelValues(operation, messageType, outcome).Inc()
	DispatchDuration.WithLabelValues(operation, messageType).Observe(d.Seconds())
}

// RecordStreamItem records one item yielded by a stream
func RecordStreamItem(messageType string) {
	StreamItemsTotal.WithLabelValues(messageType).Inc()
}

// RecordRateLimited records a dispatch rejected by the rate limiter
func RecordRateLimited(operation string) {
	RateLimitExceeded.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, fmt.Sprint(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordPublish records a Pub/Sub publish attempt
func RecordPublish(messageType, status string, sizeBytes int, d time.Duration) {
	PubsubPublishRequestsTotal.WithLabelValues(status, messageType).Inc()
	PubsubPublishDuration.Observe(d.Seconds())
	PubsubMessageSizeBytes.WithLabelValues(messageType).Observe(float64(sizeBytes))
}

// RecordCircuitState records the Pub/Sub circuit breaker state
func RecordCircuitState(state int) {
	PubsubCircuitState.Set(float64(state))
}

// RecordError records an error by category
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}
