// Package metrics exports Prometheus collectors for the authorization
// engine, the chunking cookie manager and the session layer.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements the engine's decision observer and the
// cookie manager's chunk observer with a zero-allocation hot path.
type PrometheusMetrics struct {
	// Decision counters (atomic for the hot path)
	decisionsAllow atomic.Uint64
	decisionsDeny  atomic.Uint64
	sessionHits    atomic.Uint64
	sessionMisses  atomic.Uint64

	// Prometheus metrics (for HTTP export)
	decisionsTotal    *prometheus.CounterVec
	decisionDuration  prometheus.Histogram
	cookieChunksTotal prometheus.Counter
	cookieChunkSpread prometheus.Histogram
	sessionHitsTotal  prometheus.Counter
	sessionMissTotal  prometheus.Counter

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a metrics instance under the given
// namespace with its own registry.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of authorization decisions by policy and effect",
		},
		[]string{"policy", "effect"},
	)

	// Authorization latency: 1µs to 10ms (sub-millisecond expected)
	decisionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_microseconds",
			Help:      "Authorization decision latency in microseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)

	cookieChunksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cookie",
			Name:      "chunked_writes_total",
			Help:      "Total number of cookie writes that required chunking",
		},
	)

	cookieChunkSpread := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cookie",
			Name:      "chunks_per_write",
			Help:      "Number of chunks emitted per chunked cookie write",
			Buckets:   []float64{2, 3, 4, 6, 8, 12, 16, 24, 32},
		},
	)

	sessionHitsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "hits_total",
			Help:      "Total number of successful session authentications",
		},
	)

	sessionMissTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "misses_total",
			Help:      "Total number of requests without a usable session",
		},
	)

	registry.MustRegister(
		decisionsTotal,
		decisionDuration,
		cookieChunksTotal,
		cookieChunkSpread,
		sessionHitsTotal,
		sessionMissTotal,
	)

	return &PrometheusMetrics{
		decisionsTotal:    decisionsTotal,
		decisionDuration:  decisionDuration,
		cookieChunksTotal: cookieChunksTotal,
		cookieChunkSpread: cookieChunkSpread,
		sessionHitsTotal:  sessionHitsTotal,
		sessionMissTotal:  sessionMissTotal,
		registry:          registry,
	}
}

// ObserveDecision records one authorization decision.
func (p *PrometheusMetrics) ObserveDecision(policyName string, allowed bool, duration time.Duration) {
	effect := "deny"
	if allowed {
		p.decisionsAllow.Add(1)
		effect = "allow"
	} else {
		p.decisionsDeny.Add(1)
	}

	p.decisionsTotal.WithLabelValues(policyName, effect).Inc()
	p.decisionDuration.Observe(float64(duration.Microseconds()))
}

// ObserveChunks records one chunked cookie write. The signature matches
// the cookie manager's chunk observer callback.
func (p *PrometheusMetrics) ObserveChunks(key string, count int) {
	p.cookieChunksTotal.Inc()
	p.cookieChunkSpread.Observe(float64(count))
}

// RecordSessionHit records a successful session authentication.
func (p *PrometheusMetrics) RecordSessionHit() {
	p.sessionHits.Add(1)
	p.sessionHitsTotal.Inc()
}

// RecordSessionMiss records a request without a usable session.
func (p *PrometheusMetrics) RecordSessionMiss() {
	p.sessionMisses.Add(1)
	p.sessionMissTotal.Inc()
}

// Decisions returns the atomic allow/deny counts.
func (p *PrometheusMetrics) Decisions() (allow, deny uint64) {
	return p.decisionsAllow.Load(), p.decisionsDeny.Load()
}

// HTTPHandler returns the Prometheus HTTP handler for the /metrics
// endpoint.
func (p *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test scrapes.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}
