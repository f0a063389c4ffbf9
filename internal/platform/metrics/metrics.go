// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sectionSaves        *prometheus.CounterVec
	autoSaveFlushes     *prometheus.CounterVec
	autoSaveFailures    *prometheus.CounterVec
	autoSavePending     prometheus.Gauge
	calculationRuns     *prometheus.CounterVec
	calculationDuration *prometheus.HistogramVec
	auditArchived       prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		sectionSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fma_section_saves_total",
			Help: "Section upserts by outcome action (INSERT, UPDATE, DELETE, NONE).",
		}, []string{"section", "action"}),
		autoSaveFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fma_autosave_flushes_total",
			Help: "Debounced saves executed, by trigger (timer, force).",
		}, []string{"section", "trigger"}),
		autoSaveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fma_autosave_failures_total",
			Help: "Debounced saves that failed.",
		}, []string{"section"}),
		autoSavePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fma_autosave_pending",
			Help: "Pending debounced saves.",
		}),
		calculationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fma_calculation_runs_total",
			Help: "Calculation runs by type and terminal status.",
		}, []string{"type", "status"}),
		calculationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fma_calculation_duration_seconds",
			Help:    "Wall time of calculation executions.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"type"}),
		auditArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fma_audit_entries_archived_total",
			Help: "Audit entries archived and removed by retention cleanup.",
		}),
	}
	reg.MustRegister(
		m.sectionSaves,
		m.autoSaveFlushes,
		m.autoSaveFailures,
		m.autoSavePending,
		m.calculationRuns,
		m.calculationDuration,
		m.auditArchived,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SectionSaved(section, action string) {
	if m == nil {
		return
	}
	m.sectionSaves.WithLabelValues(section, action).Inc()
}

func (m *Metrics) AutoSaveFlushed(section, trigger string) {
	if m == nil {
		return
	}
	m.autoSaveFlushes.WithLabelValues(section, trigger).Inc()
}

func (m *Metrics) AutoSaveFailed(section string) {
	if m == nil {
		return
	}
	m.autoSaveFailures.WithLabelValues(section).Inc()
}

func (m *Metrics) SetAutoSavePending(n int) {
	if m == nil {
		return
	}
	m.autoSavePending.Set(float64(n))
}

func (m *Metrics) CalculationFinished(calcType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calculationRuns.WithLabelValues(calcType, status).Inc()
	m.calculationDuration.WithLabelValues(calcType).Observe(elapsed.Seconds())
}

func (m *Metrics) AuditArchived(n int64) {
	if m == nil {
		return
	}
	m.auditArchived.Add(float64(n))
}
