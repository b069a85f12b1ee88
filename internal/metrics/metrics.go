// Package metrics exposes Prometheus collectors for the location crawler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by ObserveFetch.
const (
	OutcomeFound    = "found"
	OutcomeAbsent   = "absent"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

var (
	crawlerFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_crawler_fetches_total",
			Help: "Total number of identifier fetches, labeled by location type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	crawlerFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "location_crawler_fetch_duration_seconds",
			Help:    "Histogram of fetch latencies including the delay gate, labeled by location type.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"type"},
	)

	crawlerRecordsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_crawler_records_written_total",
			Help: "Total number of records durably appended to chunk files.",
		},
		[]string{"type"},
	)

	crawlerChunksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_crawler_chunks_completed_total",
			Help: "Total number of chunks scanned to their upper bound.",
		},
		[]string{"type"},
	)

	crawlerScrapeIndex = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "location_crawler_scrape_index",
			Help: "Index most recently dispatched to the fetcher.",
		},
		[]string{"type"},
	)

	crawlerRateLimitDelaysSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "location_crawler_rate_limit_delays_seconds",
			Help:    "Histogram of delay gate wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	metricsHTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_crawler_http_requests_total",
			Help: "Requests served by the metrics endpoint, labeled by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch and how long it took.
func ObserveFetch(locationType, outcome string, duration time.Duration) {
	crawlerFetchesTotal.WithLabelValues(locationType, outcome).Inc()
	crawlerFetchDurationSeconds.WithLabelValues(locationType).Observe(duration.Seconds())
}

// ObserveRecordWritten counts a durable chunk append.
func ObserveRecordWritten(locationType string) {
	crawlerRecordsWrittenTotal.WithLabelValues(locationType).Inc()
}

// ObserveChunkCompleted counts a chunk scanned to its upper bound.
func ObserveChunkCompleted(locationType string) {
	crawlerChunksCompletedTotal.WithLabelValues(locationType).Inc()
}

// SetScrapeIndex publishes the index currently being fetched.
func SetScrapeIndex(locationType string, index int) {
	crawlerScrapeIndex.WithLabelValues(locationType).Set(float64(index))
}

// ObserveRateLimitDelay records the duration of a delay gate wait.
func ObserveRateLimitDelay(duration time.Duration) {
	crawlerRateLimitDelaysSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest counts one request served by the metrics endpoint.
func ObserveHTTPRequest(method, route string, status int) {
	metricsHTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
