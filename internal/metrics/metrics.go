// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrack_reconcile_runs_total",
			Help: "Reconciliation runs by outcome",
		},
		[]string{"outcome"}, // ok, error
	)

	ReconcileShows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrack_reconcile_shows_total",
			Help: "Shows processed by reconciliation, by result",
		},
		[]string{"result"}, // unchanged, changed, error
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showtrack_reconcile_duration_seconds",
			Help:    "Duration of a single user's reconciliation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrack_notifications_dispatched_total",
			Help: "Dispatch outcomes by kind and channel",
		},
		[]string{"kind", "channel", "status"}, // channel: inapp, email; status: sent, skipped, failed
	)

	MetadataRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrack_metadata_requests_total",
			Help: "Metadata provider requests by status",
		},
		[]string{"status"}, // success, failure, rejected
	)

	MetadataLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showtrack_metadata_request_duration_seconds",
			Help:    "Metadata provider request latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "showtrack_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrack_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrack_reminders_sent_total",
			Help: "Scheduled reminders dispatched by kind",
		},
		[]string{"kind"},
	)

	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtrack_backups_total",
			Help: "Database backups by outcome",
		},
		[]string{"status"}, // completed, failed
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "showtrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

// RecordDispatch records one channel outcome of a dispatch.
func RecordDispatch(kind, channel, status string) {
	NotificationsDispatched.WithLabelValues(kind, channel, status).Inc()
}

// RecordMetadataRequest records a metadata call and its latency.
func RecordMetadataRequest(status string, d time.Duration) {
	MetadataRequests.WithLabelValues(status).Inc()
	MetadataLatency.Observe(d.Seconds())
}

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
