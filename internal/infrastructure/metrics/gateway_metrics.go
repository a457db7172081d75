// Package metrics defines the Prometheus collectors exported by the product gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for bridge requests.
const (
	OutcomeSuccess       = "success"
	OutcomeTransportErr  = "transport_error"
	OutcomeBridgeFailure = "bridge_failure"
	OutcomeMalformed     = "malformed"
)

// GatewayMetrics groups the collectors updated by the query gateway
type GatewayMetrics struct {
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	BridgeRequests   *prometheus.CounterVec
	BridgeLatency    *prometheus.HistogramVec
	RecordsRejected  prometheus.Counter
	DegradedQueries  *prometheus.CounterVec
	QueriesRejected  *prometheus.CounterVec
	BackendAvailable prometheus.Gauge
}

// NewGatewayMetrics registers the gateway collectors with reg.
// Pass prometheus.NewRegistry() in tests to avoid clashing with the default registry.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)

	return &GatewayMetrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "The total number of query results served from the result cache",
		}, []string{"operation"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "The total number of queries that missed the result cache",
		}, []string{"operation"}),
		BridgeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_bridge_requests_total",
			Help: "The total number of requests sent to the product bridge, by outcome",
		}, []string{"operation", "outcome"}),
		BridgeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_bridge_request_duration_seconds",
			Help:    "Latency of product bridge requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_records_rejected_total",
			Help: "The total number of raw bridge records rejected during normalization",
		}),
		DegradedQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_degraded_queries_total",
			Help: "The total number of queries short-circuited because the bridge is unavailable",
		}, []string{"operation"}),
		QueriesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_queries_rejected_total",
			Help: "The total number of queries dropped because the worker queue was full",
		}, []string{"operation"}),
		BackendAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_backend_available",
			Help: "1 when the product bridge passed its startup health check, 0 otherwise",
		}),
	}
}
