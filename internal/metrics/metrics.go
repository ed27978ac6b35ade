// Package metrics exposes Prometheus instrumentation for allocation, custody
// transitions and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Allocation runs and their duration
	AllocationRuns     prometheus.Counter
	AllocationDuration prometheus.Histogram

	// Bindings attempted by category and outcome
	Bindings *prometheus.CounterVec

	// Urgency levels outside 1..3 seen by the allocator
	ClampedUrgency prometheus.Counter

	// Item custody transitions by edge
	Transitions *prometheus.CounterVec

	// HTTP request latency by method and status code
	HTTPDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers all collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AllocationRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "corrente_allocation_runs_total",
			Help: "Total allocation runs",
		}),
		AllocationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "corrente_allocation_duration_seconds",
			Help:    "Duration of a full allocation run",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Bindings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrente_allocation_bindings_total",
			Help: "Bindings attempted by the allocator by category and outcome",
		}, []string{"category", "status"}), // status: "matched", "conflict"
		ClampedUrgency: f.NewCounter(prometheus.CounterOpts{
			Name: "corrente_allocation_clamped_urgency_total",
			Help: "Requests whose urgency level was outside 1..3 and was clamped",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corrente_item_transitions_total",
			Help: "Item custody transitions by source and target status",
		}, []string{"from", "to"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corrente_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
		gatherer: reg,
	}
}

// ObserveAllocationRun records one allocation run.
func (m *Metrics) ObserveAllocationRun(d time.Duration) {
	if m != nil {
		m.AllocationRuns.Inc()
		m.AllocationDuration.Observe(d.Seconds())
	}
}

// IncrementBinding records a binding outcome.
func (m *Metrics) IncrementBinding(category, status string) {
	if m != nil {
		m.Bindings.WithLabelValues(category, status).Inc()
	}
}

// IncrementClampedUrgency records an out-of-range urgency level.
func (m *Metrics) IncrementClampedUrgency() {
	if m != nil {
		m.ClampedUrgency.Inc()
	}
}

// IncrementTransition records a custody transition.
func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

// ObserveHTTP records the latency of one HTTP request.
func (m *Metrics) ObserveHTTP(method string, code int, d time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(method, strconv.Itoa(code)).Observe(d.Seconds())
	}
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
