// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Simulation metrics
	SimulationRunsTotal *prometheus.CounterVec // labels: engine, status
	TrialsSimulated     prometheus.Counter
	SimulationDuration  *prometheus.HistogramVec // labels: engine
	ValidationFailures  prometheus.Counter

	// Matrix cache metrics
	CacheRequestsTotal       *prometheus.CounterVec // labels: tier, outcome
	MatrixGenerationDuration prometheus.Histogram
	MatrixGenerationErrors   prometheus.Counter
	MatrixInvalidations      *prometheus.CounterVec // labels: scope
	ReclaimedClaims          prometheus.Counter

	// Database metrics
	DBQueryErrors *prometheus.CounterVec // labels: store, op
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "portfolio_lab"
	}

	return &Metrics{
		SimulationRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Total number of simulation runs by engine and status",
		}, []string{"engine", "status"}),
		TrialsSimulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "trials_simulated_total",
			Help:      "Total number of Monte Carlo trials executed",
		}),
		SimulationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Simulation run duration in seconds by engine",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"engine"}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "validation_failures_total",
			Help:      "Total number of runs rejected by the distribution validator",
		}),

		CacheRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matrixcache",
			Name:      "requests_total",
			Help:      "Cache lookups by tier (ephemeral, durable) and outcome (hit, miss)",
		}, []string{"tier", "outcome"}),
		MatrixGenerationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matrixcache",
			Name:      "generation_duration_seconds",
			Help:      "Scenario matrix generation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		MatrixGenerationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matrixcache",
			Name:      "generation_errors_total",
			Help:      "Total number of failed matrix generations",
		}),
		MatrixInvalidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matrixcache",
			Name:      "invalidations_total",
			Help:      "Matrix rows invalidated by scope (all, fund, key)",
		}, []string{"scope"}),
		ReclaimedClaims: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matrixcache",
			Name:      "reclaimed_claims_total",
			Help:      "Total number of stale processing claims reverted to pending",
		}),

		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors by store and operation",
		}, []string{"store", "op"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
