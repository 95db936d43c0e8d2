// Package metrics exposes Prometheus collectors for pagewatch cycles.
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
	cyclesTotal                *prometheus.CounterVec
	urlsTotal                  *prometheus.CounterVec
	fetchDurationSeconds       prometheus.Histogram
	notificationsTotal         *prometheus.CounterVec
	lastCycleTimestampSeconds  prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_cycles_total",
				Help: "Completed monitoring cycles, labeled by result.",
			},
			[]string{"result"},
		)

		urlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_urls_total",
				Help: "Checked URLs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagewatch_fetch_duration_seconds",
				Help:    "Latency of page fetches including retries.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
			},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_notifications_total",
				Help: "Notification attempts, labeled by status.",
			},
			[]string{"status"},
		)

		lastCycleTimestampSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_last_cycle_timestamp_seconds",
				Help: "Unix time at which the last cycle finished.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewatch_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname, or "unknown".
func SanitizeHost(rawURL string) string {
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

// ObserveCycle records a finished cycle.
func ObserveCycle(result string, finishedAt time.Time) {
	Init()
	cyclesTotal.WithLabelValues(result).Inc()
	lastCycleTimestampSeconds.Set(float64(finishedAt.Unix()))
}

// ObserveURL counts one checked URL.
func ObserveURL(outcome string) {
	Init()
	urlsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records fetch latency.
func ObserveFetch(duration time.Duration) {
	Init()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveNotification counts a notification attempt.
func ObserveNotification(status string) {
	Init()
	notificationsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
