// Package metrics provides Prometheus metrics for the MediaWiki MCP server.
// It tracks tool calls, wiki HTTP traffic, discovery, CSRF token use, and writes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "mediawiki_mcp"
)

var (
	// RequestsTotal counts total MCP tool calls by tool name and status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Total number of MCP tool calls",
	}, []string{"tool", "status"})

	// RequestDuration measures request latency distribution
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "request_duration_seconds",
		Help:      "Request latency distribution by tool",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"tool"})

	// RequestInFlight tracks currently executing requests
	RequestInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "requests_in_flight",
		Help:      "Number of requests currently being processed",
	}, []string{"tool"})

	// PanicsRecovered counts recovered panics
	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "panics_recovered_total",
		Help:      "Number of panics recovered in tool handlers",
	}, []string{"tool"})

	// WikiHTTPRequests counts wiki HTTP attempts by method and outcome
	WikiHTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "wiki_http_requests_total",
		Help:      "Wiki HTTP attempts by method and outcome (success, http_error, timeout, dns, ...)",
	}, []string{"method", "outcome"})

	// WikiHTTPDuration measures wiki HTTP attempt latency
	WikiHTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "wiki_http_duration_seconds",
		Help:      "Wiki HTTP attempt latency distribution",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method"})

	// TransportRetries counts retries by the network failure that caused them
	TransportRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "wiki_http_retries_total",
		Help:      "Wiki HTTP retries by failure kind",
	}, []string{"kind"})

	// RateLimitRejections counts inbound HTTP requests rejected by the per-IP limiter
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected due to rate limiting",
	})

	// RateLimitWaits counts outbound requests that had to wait for the per-host limiter
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "rate_limit_waits_total",
		Help:      "Wiki requests that waited for the outbound rate limiter",
	})

	// SSRFBlocked counts blocked connections to private networks
	SSRFBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ssrf_blocked_total",
		Help:      "Connections to private networks blocked",
	}, []string{"type"})

	// DiscoveryTotal counts wiki discovery outcomes by strategy
	DiscoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "discovery_total",
		Help:      "Wiki discovery outcomes by strategy (probe, html) and result",
	}, []string{"strategy", "result"})

	// CSRFTokens counts CSRF cache lookups by result (hit, miss, fetch_error)
	CSRFTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "csrf_tokens_total",
		Help:      "CSRF token cache lookups by result",
	}, []string{"result"})

	// WritesTotal counts write operations by operation, protocol and status
	WritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "writes_total",
		Help:      "Write operations by operation, protocol (rest, legacy) and status",
	}, []string{"operation", "protocol", "status"})

	// WriteFallbacks counts REST writes that fell back to the legacy API
	WriteFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "write_fallbacks_total",
		Help:      "REST writes retried through the legacy API",
	}, []string{"operation"})

	// WikisRegistered tracks the number of wikis in the registry
	WikisRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "wikis_registered",
		Help:      "Number of wikis currently registered",
	})

	// ContentSize tracks content sizes written
	ContentSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "content_size_bytes",
		Help:      "Content size distribution in bytes",
		Buckets:   []float64{100, 1000, 10000, 50000, 100000, 250000, 500000, 1000000},
	}, []string{"operation"})
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest records a completed tool call with its duration and status
func RecordRequest(tool string, duration float64, success bool) {
	RequestsTotal.WithLabelValues(tool, status(success)).Inc()
	RequestDuration.WithLabelValues(tool).Observe(duration)
}

// RecordTransport records one wiki HTTP attempt
func RecordTransport(method, outcome string, duration float64) {
	WikiHTTPRequests.WithLabelValues(method, outcome).Inc()
	if duration > 0 {
		WikiHTTPDuration.WithLabelValues(method).Observe(duration)
	}
}

// RecordDiscovery records the outcome of a discovery strategy
func RecordDiscovery(strategy string, success bool) {
	DiscoveryTotal.WithLabelValues(strategy, status(success)).Inc()
}

// RecordCSRF records a CSRF cache lookup result
func RecordCSRF(result string) {
	CSRFTokens.WithLabelValues(result).Inc()
}

// RecordWrite records a finished write and the protocol that served it
func RecordWrite(operation, protocol string, success bool) {
	WritesTotal.WithLabelValues(operation, protocol, status(success)).Inc()
}
