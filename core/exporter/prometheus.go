// Package exporter exposes framework counters for Prometheus
// scraping: runs, cache hits and misses, and run durations per module
// key.
package exporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter registers and updates the framework's metrics.
type PrometheusExporter struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	cacheHitsTotal  *prometheus.CounterVec
	cacheMissTotal  *prometheus.CounterVec
	runErrorsTotal  *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	modulesGauge    prometheus.Gauge
}

// PrometheusConfig configures the exporter.
type PrometheusConfig struct {
	// Prefix is added to all metric names (default: "propflow").
	Prefix string

	// Buckets for the duration histogram (in seconds).
	Buckets []float64
}

// DefaultPrometheusBuckets returns default histogram buckets.
func DefaultPrometheusBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

// NewPrometheusExporter creates a new exporter with its own registry.
func NewPrometheusExporter(cfg PrometheusConfig) *PrometheusExporter {
	if cfg.Prefix == "" {
		cfg.Prefix = "propflow"
	}
	if cfg.Buckets == nil {
		cfg.Buckets = DefaultPrometheusBuckets()
	}

	reg := prometheus.NewRegistry()
	labels := []string{"module"}

	e := &PrometheusExporter{
		registry: reg,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: cfg.Prefix + "_runs_total",
			Help: "Completed module runs.",
		}, labels),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: cfg.Prefix + "_cache_hits_total",
			Help: "Runs answered from the memoization cache.",
		}, labels),
		cacheMissTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: cfg.Prefix + "_cache_misses_total",
			Help: "Runs that had to invoke the module body.",
		}, labels),
		runErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: cfg.Prefix + "_run_errors_total",
			Help: "Runs that surfaced an error.",
		}, labels),
		durationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    cfg.Prefix + "_run_duration_seconds",
			Help:    "Wall-clock duration of module runs.",
			Buckets: cfg.Buckets,
		}, labels),
		modulesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: cfg.Prefix + "_modules_registered",
			Help: "Modules currently registered with the manager.",
		}),
	}

	reg.MustRegister(e.runsTotal, e.cacheHitsTotal, e.cacheMissTotal,
		e.runErrorsTotal, e.durationSeconds, e.modulesGauge)
	return e
}

// Registry returns the exporter's registry for mounting with promhttp
// in the embedding application.
func (e *PrometheusExporter) Registry() *prometheus.Registry { return e.registry }

// ObserveRun records one completed run.
func (e *PrometheusExporter) ObserveRun(module string, d time.Duration, cacheHit bool) {
	e.runsTotal.WithLabelValues(module).Inc()
	if cacheHit {
		e.cacheHitsTotal.WithLabelValues(module).Inc()
	} else {
		e.cacheMissTotal.WithLabelValues(module).Inc()
	}
	e.durationSeconds.WithLabelValues(module).Observe(d.Seconds())
}

// ObserveError records a failed run.
func (e *PrometheusExporter) ObserveError(module string) {
	e.runErrorsTotal.WithLabelValues(module).Inc()
}

// SetModuleCount records the current registry size.
func (e *PrometheusExporter) SetModuleCount(n int) {
	e.modulesGauge.Set(float64(n))
}
