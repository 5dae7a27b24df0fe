// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine label values.
const (
	EngineSniper    = "sniper"
	EngineCopyTrade = "copy_trade"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Safety evaluator
	SafetyEvaluations *prometheus.CounterVec
	SafetyLatency     prometheus.Histogram

	// Engine scans
	ScanTicks    *prometheus.CounterVec
	ScanDuration *prometheus.HistogramVec
	Decisions    *prometheus.CounterVec

	// Executor dispatch
	Dispatches       *prometheus.CounterVec
	DispatchLatency  *prometheus.HistogramVec
	DispatchInFlight *prometheus.GaugeVec

	// Notifications
	Notifications *prometheus.CounterVec
}

// NewMetrics registers every metric on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "autotrader"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SafetyEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "evaluations_total",
			Help:      "Safety evaluations by outcome (computed, cached, failed)",
		}, []string{"outcome"}),
		SafetyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent producing a safety report",
			Buckets:   prometheus.DefBuckets,
		}),

		ScanTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "scan_ticks_total",
			Help:      "Completed scan ticks per engine",
		}, []string{"engine", "result"}),
		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "scan_duration_seconds",
			Help:      "Duration of one scan tick",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decisions_total",
			Help:      "Per (event, user) decisions by engine and outcome",
		}, []string{"engine", "decision"}),

		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "dispatches_total",
			Help:      "Resolved executor dispatches by engine and status",
		}, []string{"engine", "status"}),
		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from dispatch until the executor answered",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"engine"}),
		DispatchInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "dispatches_in_flight",
			Help:      "Dispatched actions awaiting the executor",
		}, []string{"engine"}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SafetyEvaluation(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SafetyEvaluations.WithLabelValues(outcome).Inc()
	if outcome != "cached" {
		m.SafetyLatency.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ScanCompleted(engine string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ScanTicks.WithLabelValues(engine, result).Inc()
	m.ScanDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

func (m *Metrics) Decision(engine, decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(engine, decision).Inc()
}

func (m *Metrics) DispatchStarted(engine string) {
	if m == nil {
		return
	}
	m.DispatchInFlight.WithLabelValues(engine).Inc()
}

func (m *Metrics) DispatchFinished(engine, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DispatchInFlight.WithLabelValues(engine).Dec()
	m.Dispatches.WithLabelValues(engine, status).Inc()
	m.DispatchLatency.WithLabelValues(engine).Observe(elapsed.Seconds())
}

func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(channel, result).Inc()
}
