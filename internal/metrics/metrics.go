package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the forecast engine's Prometheus metrics.
// All Record methods are safe on a nil *Collector, which makes metrics optional in tests.
type Collector struct {
	registry *prometheus.Registry

	// Provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	FallbacksTotal          *prometheus.CounterVec
	SupplementFailuresTotal *prometheus.CounterVec

	// Cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Output metrics
	TruncationsTotal *prometheus.CounterVec
	SegmentsPerReply prometheus.Histogram

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector registered on its own registry, so tests can build
// as many as they like without duplicate-registration panics.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		ProviderRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Upstream forecast requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		ProviderRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Upstream forecast request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		),

		FallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Requests served by the global provider after the primary failed",
			},
			[]string{"primary"},
		),

		SupplementFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "supplement_failures_total",
				Help:      "Supplement fetches that failed and were skipped",
			},
			[]string{"kind"},
		),

		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Forecast cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),

		TruncationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "format_truncations_total",
				Help:      "Formatted replies that dropped tail periods",
			},
			[]string{"kind"},
		),

		SegmentsPerReply: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "format_segments_per_reply",
				Help:      "Number of SMS segments per formatted reply",
				Buckets:   []float64{1, 2, 3, 4, 6, 8},
			},
		),

		APIRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		APIRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),
	}
}

// Registry exposes the underlying registry (for tests and custom exporters).
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordProviderRequest counts one upstream call and observes its duration.
func (c *Collector) RecordProviderRequest(provider, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
	c.ProviderRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordFallback counts a fallback away from the given primary provider.
func (c *Collector) RecordFallback(primary string) {
	if c == nil {
		return
	}
	c.FallbacksTotal.WithLabelValues(primary).Inc()
}

// RecordSupplementFailure counts a skipped supplement of the given kind.
func (c *Collector) RecordSupplementFailure(kind string) {
	if c == nil {
		return
	}
	c.SupplementFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a cache lookup result: "hit", "miss" or "error".
func (c *Collector) RecordCacheLookup(result string) {
	if c == nil {
		return
	}
	c.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordFormat records how many segments a reply used and whether it was truncated.
func (c *Collector) RecordFormat(kind string, segments int, truncated bool) {
	if c == nil {
		return
	}
	c.SegmentsPerReply.Observe(float64(segments))
	if truncated {
		c.TruncationsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordAPIRequest counts an API request and observes its duration.
func (c *Collector) RecordAPIRequest(route, method, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.APIRequestsTotal.WithLabelValues(route, method, status).Inc()
	c.APIRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
