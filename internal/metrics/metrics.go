// Package metrics exposes Prometheus collectors for crawl runs.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlFetchesTotal           *prometheus.CounterVec
	crawlFetchDurationSeconds   *prometheus.HistogramVec
	crawlParseErrorsTotal       *prometheus.CounterVec
	crawlRecordsQueuedTotal     *prometheus.CounterVec
	crawlSinkWritesTotal        *prometheus.CounterVec
	crawlErrorsRecordedTotal    *prometheus.CounterVec
	crawlRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	crawlActiveWriters          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_fetches_total",
				Help: "Total number of fetch attempts, labeled by spider, mode and outcome.",
			},
			[]string{"spider", "mode", "outcome"},
		)

		crawlFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlkit_fetch_duration_seconds",
				Help:    "Histogram of fetch attempt latencies, labeled by mode.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		crawlParseErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_parse_errors_total",
				Help: "Total number of pages whose parse step failed.",
			},
			[]string{"spider"},
		)

		crawlRecordsQueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_records_queued_total",
				Help: "Total number of records pushed onto a sink queue.",
			},
			[]string{"sink"},
		)

		crawlSinkWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_sink_writes_total",
				Help: "Total number of sink writes, labeled by sink and outcome.",
			},
			[]string{"sink", "outcome"},
		)

		crawlErrorsRecordedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_errors_recorded_total",
				Help: "Total number of entries added to a run's error log.",
			},
			[]string{"spider"},
		)

		crawlRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlkit_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlkit_http_requests_total",
				Help: "Total number of requests served by the metrics endpoint, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlkit_http_request_duration_seconds",
				Help:    "Histogram of metrics endpoint latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		crawlActiveWriters = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlkit_active_writers",
				Help: "Number of sink writer workers currently running.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one fetch attempt and its latency.
func ObserveFetch(spider, mode, outcome string, duration time.Duration) {
	Init()
	crawlFetchesTotal.WithLabelValues(spider, mode, outcome).Inc()
	crawlFetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveParseError counts one failed parse.
func ObserveParseError(spider string) {
	Init()
	crawlParseErrorsTotal.WithLabelValues(spider).Inc()
}

// ObserveRecordQueued counts one record pushed to a sink queue.
func ObserveRecordQueued(sink string) {
	Init()
	crawlRecordsQueuedTotal.WithLabelValues(sink).Inc()
}

// ObserveSinkWrite counts one sink write with outcome "ok" or "error".
func ObserveSinkWrite(sink, outcome string) {
	Init()
	crawlSinkWritesTotal.WithLabelValues(sink, outcome).Inc()
}

// ObserveErrorRecorded counts one error log entry.
func ObserveErrorRecorded(spider string) {
	Init()
	crawlErrorsRecordedTotal.WithLabelValues(spider).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	crawlRateLimitDelaysSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics endpoint.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWriters increments the active writers gauge.
func IncActiveWriters() {
	Init()
	crawlActiveWriters.Inc()
}

// DecActiveWriters decrements the active writers gauge.
func DecActiveWriters() {
	Init()
	crawlActiveWriters.Dec()
}
