// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestCounter counts HTTP requests by status code, method, and route
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"status", "method", "path"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examprep_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "method", "path"},
	)

	// RequestInProgress counts HTTP requests currently being processed
	RequestInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "examprep_http_requests_in_progress",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method", "path"},
	)

	// RateLimiterRejections counts requests rejected by a rate limiter
	RateLimiterRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_rate_limiter_rejections_total",
			Help: "Total number of requests rejected by rate limiter",
		},
		[]string{"limiter"},
	)

	// AttemptsStarted counts newly created attempts
	AttemptsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examprep_attempts_started_total",
			Help: "Total number of exam attempts started",
		},
	)

	// AutosaveResults counts progress saves by outcome: ok, stale, closed, error
	AutosaveResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_autosave_total",
			Help: "Progress saves by outcome",
		},
		[]string{"outcome"},
	)

	// AttemptsFinalized counts attempts moved to completed, by trigger: manual, timeout, sweeper
	AttemptsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_attempts_finalized_total",
			Help: "Attempts finalized by trigger",
		},
		[]string{"trigger"},
	)

	// FinalizeDuration measures the locked scoring transaction
	FinalizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examprep_finalize_duration_seconds",
			Help:    "Finalize transaction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CacheHits counts exam paper cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examprep_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMisses counts exam paper cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examprep_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// EventsHandled counts domain events consumed by workers, by type and result
	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_events_handled_total",
			Help: "Domain events consumed by workers",
		},
		[]string{"type", "result"},
	)

	// WebhooksReceived counts payment webhooks by event and result
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examprep_payment_webhooks_total",
			Help: "Payment webhooks received",
		},
		[]string{"event", "result"},
	)
)

// ObserveSince records the seconds elapsed since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
