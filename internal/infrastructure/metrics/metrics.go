// Package metrics exposes Prometheus collectors for engine invocations,
// document creation, stock adjustments and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docengine/internal/core/dockind"
	"docengine/internal/core/engine"
	"docengine/internal/domain/documents"
	"docengine/internal/domain/registers/stock"
)

const namespace = "docengine"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	engineInvocations *prometheus.CounterVec
	engineDuration    *prometheus.HistogramVec
	documents         *prometheus.CounterVec
	degraded          *prometheus.CounterVec
	stockAdjustments  *prometheus.CounterVec
	stockSkipped      *prometheus.CounterVec
	engineSwitches    *prometheus.CounterVec
	activeEngine      *prometheus.GaugeVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

var (
	_ engine.Observer   = (*Metrics)(nil)
	_ documents.Metrics = (*Metrics)(nil)
	_ stock.Recorder    = (*Metrics)(nil)
)

// New creates the collectors and registers them, with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		engineInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_invocations_total",
			Help:      "Engine operations by engine, operation and outcome.",
		}, []string{"engine", "op", "outcome"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_invocation_duration_seconds",
			Help:      "Duration of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine", "op"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Document creations by engine, kind and outcome (created, partial, failed).",
		}, []string{"engine", "kind", "outcome"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_degraded_total",
			Help:      "Document creations served without a transaction.",
		}, []string{"engine", "kind"}),
		stockAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustments_total",
			Help:      "Applied stock adjustments by counter.",
		}, []string{"counter"}),
		stockSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustments_skipped_total",
			Help:      "Stock adjustments that failed and were skipped.",
		}, []string{"counter"}),
		engineSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_switches_total",
			Help:      "Active engine changes.",
		}, []string{"from", "to"}),
		activeEngine: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_active",
			Help:      "1 for the engine currently selected.",
		}, []string{"engine"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.engineInvocations,
		m.engineDuration,
		m.documents,
		m.degraded,
		m.stockAdjustments,
		m.stockSkipped,
		m.engineSwitches,
		m.activeEngine,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveInvoke implements engine.Observer.
func (m *Metrics) ObserveInvoke(name engine.Name, op engine.Operation, outcome string, elapsed time.Duration) {
	m.engineInvocations.WithLabelValues(string(name), string(op), outcome).Inc()
	m.engineDuration.WithLabelValues(string(name), string(op)).Observe(elapsed.Seconds())
}

// ObserveDocument implements documents.Metrics.
func (m *Metrics) ObserveDocument(name engine.Name, kind dockind.Kind, outcome string, degraded bool) {
	m.documents.WithLabelValues(string(name), string(kind), outcome).Inc()
	if degraded {
		m.degraded.WithLabelValues(string(name), string(kind)).Inc()
	}
}

// ObserveStockAdjustment implements stock.Recorder.
func (m *Metrics) ObserveStockAdjustment(counter dockind.Counter, applied bool) {
	if applied {
		m.stockAdjustments.WithLabelValues(string(counter)).Inc()
		return
	}
	m.stockSkipped.WithLabelValues(string(counter)).Inc()
}

// ObserveEngineSwitch records a change of the active engine.
func (m *Metrics) ObserveEngineSwitch(from, to engine.Name) {
	m.engineSwitches.WithLabelValues(string(from), string(to)).Inc()
	m.SetActiveEngine(to)
}

// SetActiveEngine flags active as the only selected engine.
func (m *Metrics) SetActiveEngine(active engine.Name) {
	m.activeEngine.Reset()
	m.activeEngine.WithLabelValues(string(active)).Set(1)
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
