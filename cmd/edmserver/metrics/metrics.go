// Package metrics provides Prometheus instrumentation for edmserver.
//
// Metrics exposed:
//   - edm_run_seconds: Histogram of end-to-end prediction run duration
//   - edm_queries_total: Counter of predicted query rows
//   - edm_runs_total: Counter of runs by outcome return code
//   - edm_last_rho: Gauge of the Pearson rho of the most recent run that
//     produced statistics
//   - edm_errors_total: Counter of request errors by reason
//
// All are exposed via the /metrics HTTP endpoint for Prometheus scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for edmserver.
type Metrics struct {
	RunSeconds   prometheus.Histogram
	QueriesTotal prometheus.Counter
	RunsTotal    *prometheus.CounterVec
	LastRho      prometheus.Gauge
	ErrorsTotal  *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		RunSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "edm_run_seconds",
			Help:    "Time spent executing one prediction run",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		QueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edm_queries_total",
			Help: "Total number of query rows predicted",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edm_runs_total",
			Help: "Total number of runs by worst return code",
		}, []string{"rc"}),
		LastRho: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edm_last_rho",
			Help: "Pearson correlation of the most recent run with statistics",
		}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "edm_errors_total",
			Help: "Total number of request errors by reason",
		}, []string{"reason"}),
	}
}

// RecordRun records one completed run.
func (m *Metrics) RecordRun(seconds float64, queries int, rc string) {
	m.RunSeconds.Observe(seconds)
	m.QueriesTotal.Add(float64(queries))
	m.RunsTotal.WithLabelValues(rc).Inc()
}

// SetLastRho publishes the latest correlation.
func (m *Metrics) SetLastRho(rho float64) {
	m.LastRho.Set(rho)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(reason string) {
	m.ErrorsTotal.WithLabelValues(reason).Inc()
}
