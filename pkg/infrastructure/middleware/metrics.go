// Package middleware provides HTTP middleware for the ingest server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackstack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackstack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Webhook pipeline metrics
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackstack_webhook_events_total",
			Help: "Total webhook events received by provider",
		},
		[]string{"provider"},
	)

	webhookDuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackstack_webhook_duplicates_total",
			Help: "Webhook deliveries discarded as already seen",
		},
		[]string{"provider"},
	)

	activitiesImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackstack_activities_imported_total",
			Help: "Canonical activities created by provider",
		},
		[]string{"provider"},
	)

	activitiesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackstack_activities_skipped_total",
			Help: "Activities skipped during import by reason",
		},
		[]string{"reason"},
	)

	processingErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackstack_processing_errors_total",
			Help: "Event processing failures by provider",
		},
		[]string{"provider"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackstack_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackstack_processor_queue_depth",
			Help: "Events waiting in the async processing queue",
		},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackstack_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)
)

// Metrics returns a middleware that records Prometheus metrics.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

			path := normalizePath(r)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)

			if wrapped.status >= 400 {
				errorType := "client_error"
				if wrapped.status >= 500 {
					errorType = "server_error"
				}
				errorsTotal.WithLabelValues(errorType).Inc()
			}
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths to prevent cardinality explosion.
func normalizePath(r *http.Request) string {
	// Get route pattern from chi if available
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	// Fallback: collapse numeric ids
	segments := strings.Split(r.URL.Path, "/")
	for i, seg := range segments {
		if seg != "" && isNumeric(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ObserveWebhookEvent records a received webhook delivery.
func ObserveWebhookEvent(provider string) {
	webhookEventsTotal.WithLabelValues(provider).Inc()
}

// ObserveWebhookDuplicate records a delivery discarded as a duplicate.
func ObserveWebhookDuplicate(provider string) {
	webhookDuplicatesTotal.WithLabelValues(provider).Inc()
}

// ObserveActivityImported records a created canonical activity.
func ObserveActivityImported(provider string) {
	activitiesImportedTotal.WithLabelValues(provider).Inc()
}

// ObserveActivitySkipped records an activity skipped during import.
func ObserveActivitySkipped(reason string) {
	activitiesSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveProcessingError records a failed event processing attempt.
func ObserveProcessingError(provider string) {
	processingErrorsTotal.WithLabelValues(provider).Inc()
}

// ObserveRateLimited records a request rejected by the rate limiter.
func ObserveRateLimited() {
	rateLimitedTotal.Inc()
}

// SetQueueDepth updates the async queue depth gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
