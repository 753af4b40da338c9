// Package observability bundles the Prometheus collectors shared by the RPC
// surface and the settlement engines.
package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type settlementMetrics struct {
	intentsStarted   prometheus.Counter
	intentsCompleted prometheus.Counter
	intentsStalled   *prometheus.CounterVec
	compensations    prometheus.Counter
	valueLocked      prometheus.Gauge
	activeEscrows    prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	settlementOnce sync.Once
	settlementReg  *settlementMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "factorhub",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "factorhub",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "factorhub",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// Settlement returns the metrics registry tracking purchase settlement
// chains and escrow custody health.
func Settlement() *settlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &settlementMetrics{
			intentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "factorhub",
				Subsystem: "settlement",
				Name:      "intents_started_total",
				Help:      "Count of settlement chains started by purchases and bid acceptances.",
			}),
			intentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "factorhub",
				Subsystem: "settlement",
				Name:      "intents_completed_total",
				Help:      "Count of settlement chains that finished every step.",
			}),
			intentsStalled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "factorhub",
				Subsystem: "settlement",
				Name:      "intents_stalled_total",
				Help:      "Count of settlement chains left persisted for resumption, by step.",
			}, []string{"step"}),
			compensations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "factorhub",
				Subsystem: "settlement",
				Name:      "compensations_total",
				Help:      "Count of purchases rolled back before any funds moved.",
			}),
			valueLocked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "factorhub",
				Subsystem: "escrow",
				Name:      "value_locked",
				Help:      "Sum of sale amounts held by active escrows, in integer stable units.",
			}),
			activeEscrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "factorhub",
				Subsystem: "escrow",
				Name:      "active_total",
				Help:      "Number of escrows currently in the active state.",
			}),
		}
		prometheus.MustRegister(
			settlementReg.intentsStarted,
			settlementReg.intentsCompleted,
			settlementReg.intentsStalled,
			settlementReg.compensations,
			settlementReg.valueLocked,
			settlementReg.activeEscrows,
		)
	})
	return settlementReg
}

// RecordIntentStarted increments the started counter.
func (m *settlementMetrics) RecordIntentStarted() {
	if m == nil {
		return
	}
	m.intentsStarted.Inc()
}

// RecordIntentCompleted increments the completed counter.
func (m *settlementMetrics) RecordIntentCompleted() {
	if m == nil {
		return
	}
	m.intentsCompleted.Inc()
}

// RecordIntentStalled increments the stalled counter for the step the chain
// stopped at.
func (m *settlementMetrics) RecordIntentStalled(step string) {
	if m == nil {
		return
	}
	if step == "" {
		step = "unknown"
	}
	m.intentsStalled.WithLabelValues(step).Inc()
}

// RecordCompensation increments the rollback counter.
func (m *settlementMetrics) RecordCompensation() {
	if m == nil {
		return
	}
	m.compensations.Inc()
}

// RecordCustody updates the escrow custody gauges from the latest stats
// snapshot.
func (m *settlementMetrics) RecordCustody(activeEscrows uint64, valueLocked float64) {
	if m == nil {
		return
	}
	m.activeEscrows.Set(float64(activeEscrows))
	if valueLocked < 0 {
		valueLocked = 0
	}
	m.valueLocked.Set(valueLocked)
}
