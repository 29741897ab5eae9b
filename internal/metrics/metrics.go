// Package metrics exposes Prometheus collectors for the harvester.
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

	"github.com/JakeFAU/sports-harvester/internal/progress"
)

// Fetch kinds used as the "kind" label.
const (
	KindDocument = "document"
	KindChild    = "child"
	KindRender   = "render"
)

var (
	fetchesTotal           *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	storageWritesTotal     *prometheus.CounterVec
	limiterInFlight        *prometheus.GaugeVec
	rateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// more than once.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetches_total",
				Help: "Total GETs issued, labeled by kind and HTTP status class.",
			},
			[]string{"kind", "status_class"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_fetch_duration_seconds",
				Help:    "Latency until response headers (documents: full body), labeled by kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 45},
			},
			[]string{"kind"},
		)

		storageWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_storage_writes_total",
				Help: "Stream writes, labeled by backend and result.",
			},
			[]string{"backend", "result"},
		)

		limiterInFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_limiter_in_flight",
				Help: "Current holders of each concurrency limiter.",
			},
			[]string{"limiter"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delays_seconds",
				Help:    "Time spent waiting on per-host pacing.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_http_request_duration_seconds",
				Help:    "Latency of requests served by the metrics endpoint.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
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

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one GET. Status 0 means no response was received.
func ObserveFetch(kind string, status int, duration time.Duration) {
	Init()
	class := string(progress.ClassifyStatus(status))
	if status == 0 {
		class = "error"
	}
	fetchesTotal.WithLabelValues(kind, class).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveStorageWrite records a finished stream write.
func ObserveStorageWrite(backend string, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	storageWritesTotal.WithLabelValues(backend, result).Inc()
}

// LimiterGauge returns the in-flight gauge for the named limiter.
func LimiterGauge(name string) prometheus.Gauge {
	Init()
	return limiterInFlight.WithLabelValues(name)
}

// ObserveRateLimitDelay records time spent waiting for a pacing token.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest records a request served by Router.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
