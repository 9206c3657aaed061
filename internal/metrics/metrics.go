package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for upstream lookups and the HTTP surface.
type Metrics struct {
	Registry *prometheus.Registry

	UpstreamRequests  *prometheus.CounterVec
	UpstreamFailures  *prometheus.CounterVec
	UpstreamDuration  *prometheus.HistogramVec
	TransportFallback prometheus.Counter
	ScanPrefixes      *prometheus.CounterVec
	RequestLatency    *prometheus.HistogramVec
}

// New creates a dedicated registry and registers every collector on it.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regioncd_upstream_requests_total",
			Help: "Total number of requests sent to the region code registry",
		}, []string{"scheme"}),
		UpstreamFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regioncd_upstream_failures_total",
			Help: "Total number of failed registry requests by scheme and reason",
		}, []string{"scheme", "reason"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regioncd_upstream_duration_seconds",
			Help:    "Latency of registry requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"scheme"}),
		TransportFallback: factory.NewCounter(prometheus.CounterOpts{
			Name: "regioncd_transport_fallback_total",
			Help: "Total number of lookups that fell back from https to http",
		}),
		ScanPrefixes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regioncd_scan_prefixes_total",
			Help: "Total number of prefixes visited by region scans",
		}, []string{"status"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regioncd_http_request_duration_seconds",
			Help:    "Latency of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveUpstream records a single registry round trip.
func (m *Metrics) ObserveUpstream(scheme string, seconds float64, failureReason string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(scheme).Inc()
	m.UpstreamDuration.WithLabelValues(scheme).Observe(seconds)
	if failureReason != "" {
		m.UpstreamFailures.WithLabelValues(scheme, failureReason).Inc()
	}
}

// IncrementFallback counts a secure to insecure transport switch.
func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.TransportFallback.Inc()
}

// IncrementScanPrefix counts a visited scan prefix.
func (m *Metrics) IncrementScanPrefix(status string) {
	if m == nil {
		return
	}
	m.ScanPrefixes.WithLabelValues(status).Inc()
}

// ObserveRequest records HTTP handler latency.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, status).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
