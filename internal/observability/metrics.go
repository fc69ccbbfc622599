// Package observability provides Prometheus metrics for the simulator.
package observability

import (
	"net/http"
	"time"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Engine metrics
	RunsTotal           *prometheus.CounterVec
	BatchDuration       *prometheus.HistogramVec
	UnitsLostTotal      *prometheus.CounterVec
	UnitsPurchasedTotal *prometheus.CounterVec
	BatchFailures       *prometheus.CounterVec

	// Job metrics
	JobsSubmitted prometheus.Counter
	JobsCompleted *prometheus.CounterVec
	JobsRunning   prometheus.Gauge
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "unitsim"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of simulated runs",
		}, []string{"asset", "policy"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one (asset, policy) batch",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"asset", "policy"}),
		UnitsLostTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "units_lost_total",
			Help:      "Units lost across all simulated cycles",
		}, []string{"asset", "policy"}),
		UnitsPurchasedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "units_purchased_total",
			Help:      "Units bought from accumulated cash",
		}, []string{"asset", "policy"}),
		BatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "batch_failures_total",
			Help:      "Batches aborted, by reason",
		}, []string{"asset", "policy", "reason"}),

		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Simulation jobs accepted by the API",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Simulation jobs finished, by status",
		}, []string{"status"}),
		JobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Simulation jobs currently running",
		}),
	}
}

// ObserveBatch records a completed batch.
func (m *Metrics) ObserveBatch(asset string, policy types.Policy, runs int, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(asset, string(policy)).Add(float64(runs))
	m.BatchDuration.WithLabelValues(asset, string(policy)).Observe(elapsed.Seconds())
}

// AddUnitsLost records units lost during a batch.
func (m *Metrics) AddUnitsLost(asset string, policy types.Policy, n int64) {
	m.UnitsLostTotal.WithLabelValues(asset, string(policy)).Add(float64(n))
}

// AddUnitsPurchased records units bought during a batch.
func (m *Metrics) AddUnitsPurchased(asset string, policy types.Policy, n int64) {
	m.UnitsPurchasedTotal.WithLabelValues(asset, string(policy)).Add(float64(n))
}

// BatchFailed records an aborted batch.
func (m *Metrics) BatchFailed(asset string, policy types.Policy, reason string) {
	m.BatchFailures.WithLabelValues(asset, string(policy), reason).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
