// Package metrics exposes Prometheus collectors for the capture service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	captureEventsTotal        *prometheus.CounterVec
	captureEventsDroppedTotal prometheus.Counter
	bufferEvictionsTotal      *prometheus.CounterVec
	correlationTotal          *prometheus.CounterVec
	capturePassesTotal        *prometheus.CounterVec
	exportFailuresTotal       *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		captureEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdiag_capture_events_total",
				Help: "Total telemetry events ingested, labeled by kind.",
			},
			[]string{"kind"},
		)

		captureEventsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webdiag_capture_events_dropped_total",
				Help: "Total telemetry events dropped due to backpressure.",
			},
		)

		bufferEvictionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdiag_buffer_evictions_total",
				Help: "Total entries evicted from session buffers, labeled by buffer.",
			},
			[]string{"buffer"},
		)

		correlationTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdiag_body_correlation_total",
				Help: "Body correlation attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		capturePassesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdiag_capture_passes_total",
				Help: "Capture passes completed, labeled by result.",
			},
			[]string{"result"},
		)

		exportFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdiag_export_failures_total",
				Help: "Artifact export failures, labeled by artifact.",
			},
			[]string{"artifact"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdiag_http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webdiag_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvent counts one ingested telemetry event.
func ObserveEvent(kind string) {
	if captureEventsTotal != nil {
		captureEventsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveDropped counts telemetry events dropped under backpressure.
func ObserveDropped(n int64) {
	if captureEventsDroppedTotal != nil {
		captureEventsDroppedTotal.Add(float64(n))
	}
}

// ObserveEviction counts entries evicted from a session buffer.
func ObserveEviction(buffer string, n int) {
	if bufferEvictionsTotal != nil && n > 0 {
		bufferEvictionsTotal.WithLabelValues(buffer).Add(float64(n))
	}
}

// ObserveCorrelation counts a body correlation attempt outcome (match or miss).
func ObserveCorrelation(outcome string) {
	if correlationTotal != nil {
		correlationTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveCapture counts a completed capture pass.
func ObserveCapture(result string) {
	if capturePassesTotal != nil {
		capturePassesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveExportFailure counts an artifact export failure.
func ObserveExportFailure(artifact string) {
	if exportFailuresTotal != nil {
		exportFailuresTotal.WithLabelValues(artifact).Inc()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	if httpRequestDuration != nil {
		httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}
