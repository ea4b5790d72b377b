// Package metrics exposes Prometheus collectors for the analyze flow.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "followback"

// Metrics groups the collectors registered on one registry
type Metrics struct {
	registry         *prometheus.Registry
	outcomes         *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	providerDuration prometheus.Histogram
}

// New creates collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_outcomes_total",
			Help:      "Analyze requests by outcome.",
		}, []string{"outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by result.",
		}, []string{"decision"}),
		providerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Time spent fetching relationships from the provider.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
	}
	reg.MustRegister(m.outcomes, m.decisions, m.providerDuration)
	return m
}

// ObserveOutcome counts one analyze outcome
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveDecision counts one limiter decision
func (m *Metrics) ObserveDecision(allowed bool) {
	if m == nil {
		return
	}
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	m.decisions.WithLabelValues(decision).Inc()
}

// ObserveProviderDuration records how long a provider call took
func (m *Metrics) ObserveProviderDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
