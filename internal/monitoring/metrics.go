// internal/monitoring/metrics.go
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager exports fallback chain activity to Prometheus. It owns its
// registry so two managers in one process never collide on metric names.
// It implements the manager's Recorder interface.
type MetricsManager struct {
	registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	successes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewMetricsManager creates the manager and registers its collectors.
func NewMetricsManager() *MetricsManager {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsManager{
		registry: registry,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resilientfetch_strategy_attempts_total",
			Help: "Number of invocations per strategy kind (primary included)",
		}, []string{"strategy"}),
		successes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resilientfetch_strategy_successes_total",
			Help: "Number of successful outcomes per strategy kind",
		}, []string{"strategy"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resilientfetch_strategy_failures_total",
			Help: "Number of failed outcomes per strategy kind",
		}, []string{"strategy"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resilientfetch_strategy_latency_seconds",
			Help:    "Latency of successful strategy outcomes",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
	}
}

// RecordAttempt implements fallback.Recorder.
func (m *MetricsManager) RecordAttempt(kind string) {
	m.attempts.WithLabelValues(kind).Inc()
}

// RecordOutcome implements fallback.Recorder.
func (m *MetricsManager) RecordOutcome(kind string, success bool, latency time.Duration) {
	if success {
		m.successes.WithLabelValues(kind).Inc()
		m.latency.WithLabelValues(kind).Observe(latency.Seconds())
	} else {
		m.failures.WithLabelValues(kind).Inc()
	}
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
