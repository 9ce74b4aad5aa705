// Package metrics exposes Prometheus collectors for the crawler.
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
	crawlPagesTotal          *prometheus.CounterVec
	crawlRecordsTotal        *prometheus.CounterVec
	crawlDetailFailuresTotal *prometheus.CounterVec
	crawlWindowsTotal        *prometheus.CounterVec
	crawlRunsTotal           *prometheus.CounterVec
	rateLimitDelaySeconds    prometheus.Histogram
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naracrawl_list_pages_total",
				Help: "Total listing pages fetched, labeled by category.",
			},
			[]string{"category"},
		)

		crawlRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naracrawl_records_total",
				Help: "Total records written to the output file, labeled by category.",
			},
			[]string{"category"},
		)

		crawlDetailFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naracrawl_detail_failures_total",
				Help: "Total detail fetches that were skipped after exhausting retries.",
			},
			[]string{"category"},
		)

		crawlWindowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naracrawl_windows_total",
				Help: "Total windows completed, labeled by category.",
			},
			[]string{"category"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naracrawl_runs_total",
				Help: "Total crawl invocations, labeled by terminal status.",
			},
			[]string{"status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "naracrawl_rate_limit_delay_seconds",
				Help:    "Histogram of inter-request rate limit waits.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP API request latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListPage counts one fetched listing page.
func ObserveListPage(category string) {
	crawlPagesTotal.WithLabelValues(category).Inc()
}

// ObserveRecords counts records written for a category.
func ObserveRecords(category string, n int) {
	if n > 0 {
		crawlRecordsTotal.WithLabelValues(category).Add(float64(n))
	}
}

// ObserveDetailFailures counts skipped items for a category.
func ObserveDetailFailures(category string, n int) {
	if n > 0 {
		crawlDetailFailuresTotal.WithLabelValues(category).Add(float64(n))
	}
}

// ObserveWindows counts completed windows for a category.
func ObserveWindows(category string, n int) {
	if n > 0 {
		crawlWindowsTotal.WithLabelValues(category).Add(float64(n))
	}
}

// ObserveRun counts one finished invocation by terminal status
// (complete, partial, failed).
func ObserveRun(status string) {
	crawlRunsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records one rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
