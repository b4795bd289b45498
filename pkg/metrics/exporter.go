package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter holds the Prometheus collectors the control loop updates as it runs (§6).
// It is a thin wrapper so callers never touch the client_golang registry directly.
type Exporter struct {
	FailuresDetectedTotal      *prometheus.CounterVec
	RemediationsOpenedTotal    *prometheus.CounterVec
	RemediationsSucceededTotal *prometheus.CounterVec
	RollbacksTotal             *prometheus.CounterVec
	CircuitsOpen               *prometheus.GaugeVec
	PatternsTotal              prometheus.Gauge
	LLMLatencyMS               *prometheus.HistogramVec
}

// NewExporter registers and returns the standard collector set on reg. Pass
// prometheus.NewRegistry() for tests, or prometheus.DefaultRegisterer in production.
func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)

	return &Exporter{
		FailuresDetectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "failures_detected_total",
			Help: "CI failures observed by the Poller, by repository.",
		}, []string{"repository"}),

		RemediationsOpenedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remediations_opened_total",
			Help: "Remediation pull requests opened, by repository.",
		}, []string{"repository"}),

		RemediationsSucceededTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remediations_succeeded_total",
			Help: "Remediations whose post-remediation health check passed, by repository.",
		}, []string{"repository"}),

		RollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbacks_total",
			Help: "Automatic rollbacks triggered by a failed health check, by repository.",
		}, []string{"repository"}),

		CircuitsOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuits_open",
			Help: "1 if the circuit breaker for a failure signature is currently OPEN.",
		}, []string{"signature"}),

		PatternsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "patterns_total",
			Help: "Total patterns stored in PatternMemory across all repositories.",
		}),

		LLMLatencyMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_latency_ms_histogram",
			Help:    "Classifier LLM round-trip latency in milliseconds, by provider.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"provider"}),
	}
}

// SetCircuitOpen records the breaker's current OPEN/HALF_OPEN/CLOSED state as a 0/1 gauge.
func (e *Exporter) SetCircuitOpen(signature string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	e.CircuitsOpen.WithLabelValues(signature).Set(v)
}
