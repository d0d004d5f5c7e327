// Package metrics exposes Prometheus instrumentation for the credential pool,
// the challenge solver and the query service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Solve outcomes recorded on SolveAttempts.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds every collector the service exports. All methods are safe on
// a nil receiver so callers may run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	PoolSize        prometheus.Gauge
	SolveAttempts   *prometheus.CounterVec
	SolveDuration   prometheus.Histogram
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	RemoteFailures  prometheus.Counter
	RecordsNotFound prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "icpquery_pool_credentials",
			Help: "Number of verified credentials parked in the pool",
		}),
		SolveAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icpquery_captcha_solve_attempts_total",
			Help: "Challenge solve attempts by outcome",
		}, []string{"outcome"}),
		SolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "icpquery_captcha_solve_duration_seconds",
			Help:    "Wall time of a single challenge solve attempt",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "icpquery_cache_hits_total",
			Help: "Lookups answered from the record cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "icpquery_cache_misses_total",
			Help: "Lookups that required a registry query",
		}),
		RemoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "icpquery_registry_failures_total",
			Help: "Registry queries that failed",
		}),
		RecordsNotFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "icpquery_records_not_found_total",
			Help: "Registry queries that returned no filing",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icpquery_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetPoolSize(n int) {
	if m == nil {
		return
	}
	m.PoolSize.Set(float64(n))
}

// ObserveSolve records one solve attempt.
func (m *Metrics) ObserveSolve(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SolveAttempts.WithLabelValues(outcome).Inc()
	m.SolveDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) IncRemoteFailure() {
	if m == nil {
		return
	}
	m.RemoteFailures.Inc()
}

func (m *Metrics) IncNotFound() {
	if m == nil {
		return
	}
	m.RecordsNotFound.Inc()
}

// ObserveRequest counts one API response.
func (m *Metrics) ObserveRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
