// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetches_total",
			Help: "Total number of record fetch attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	harvestFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_fetch_duration_seconds",
			Help:    "Histogram of record fetch latencies, labeled by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	harvestRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_retries_total",
			Help: "Total number of fetch retries after transient failures.",
		},
	)

	harvestDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_documents_total",
			Help: "Total number of records transformed, labeled by status.",
		},
		[]string{"status"},
	)

	harvestWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_warnings_total",
			Help: "Soft data-quality warnings raised during transformation, labeled by kind.",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the status server, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of status server latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt and its latency.
func ObserveFetch(outcome string, duration time.Duration) {
	harvestFetchesTotal.WithLabelValues(outcome).Inc()
	harvestFetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter.
func ObserveRetry() {
	harvestRetriesTotal.Inc()
}

// ObserveDocument increments the document counter for the given status.
func ObserveDocument(status string) {
	harvestDocumentsTotal.WithLabelValues(status).Inc()
}

// ObserveWarning increments the soft-warning counter for the given kind.
func ObserveWarning(kind string) {
	harvestWarningsTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
