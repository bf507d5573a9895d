package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Classifier call latency in milliseconds.
	ClassifierCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_latency_ms",
			Help:    "Classifier service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	// Downstream handler forward latency in milliseconds.
	ForwardLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handler_forward_latency_ms",
			Help:    "Downstream handler forward latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"handler", "status"},
	)

	// Document store call duration in seconds.
	StoreCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_call_duration_seconds",
			Help:    "Document store call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Resolved intent counter.
	IntentResolvedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_resolved_count",
			Help: "Total number of resolved intents",
		},
		[]string{"intent"}, // TASK, COMPLETE_TASK, CALENDAR, EMAIL, RESEARCH, MESSAGE, UNKNOWN
	)

	// Duplicate messages skipped by the replay guard.
	DuplicateSkippedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_skipped_count",
			Help: "Total number of duplicate messages skipped before dispatch",
		},
	)
)

// RecordClassifierCallLatency records one classifier round trip.
func RecordClassifierCallLatency(status string, duration time.Duration) {
	ClassifierCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordForwardLatency records one downstream forward.
func RecordForwardLatency(handler, status string, duration time.Duration) {
	ForwardLatency.WithLabelValues(handler, status).Observe(float64(duration.Milliseconds()))
}

// RecordStoreCallDuration records one document store call.
func RecordStoreCallDuration(operation string, duration time.Duration) {
	StoreCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration records one inbound HTTP request.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementIntentResolved bumps the per-intent counter.
func IncrementIntentResolved(intent string) {
	IntentResolvedCount.WithLabelValues(intent).Inc()
}

// IncrementDuplicateSkipped bumps the replay-guard counter.
func IncrementDuplicateSkipped() {
	DuplicateSkippedCount.Inc()
}
