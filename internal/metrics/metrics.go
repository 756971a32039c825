// Package metrics exposes pipeline and API counters to Prometheus. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dqrules"

// Metrics holds every collector on its own registry
type Metrics struct {
	registry *prometheus.Registry

	rulesDerived       *prometheus.CounterVec
	derivationFailures prometheus.Counter
	generationSeconds  prometheus.Histogram
	tokens             *prometheus.CounterVec
	validations        *prometheus.CounterVec
	adjustments        prometheus.Counter
	httpRequests       *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		rulesDerived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rules_derived_total",
			Help: "Rules produced by the deriver, by category.",
		}, []string{"category"}),
		derivationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "derivation_failures_total",
			Help: "Attributes whose rule derivation failed.",
		}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "generation_duration_seconds",
			Help:    "Wall time of one attribute's rule generation.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total",
			Help: "Tokens consumed by generation calls.",
		}, []string{"model", "kind"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_validations_total",
			Help: "Rule validation outcomes.",
		}, []string{"verdict"}),
		adjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "threshold_adjustments_total",
			Help: "Thresholds raised after validation.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Read API requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rulesDerived, m.derivationFailures, m.generationSeconds, m.tokens,
		m.validations, m.adjustments, m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RuleDerived(category string) {
	if m == nil {
		return
	}
	m.rulesDerived.WithLabelValues(category).Inc()
}

func (m *Metrics) DerivationFailed() {
	if m == nil {
		return
	}
	m.derivationFailures.Inc()
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.generationSeconds.Observe(d.Seconds())
}

func (m *Metrics) AddTokens(model string, prompt, completion int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.tokens.WithLabelValues(model, "completion").Add(float64(completion))
}

// Validated counts one outcome: PASS, FAIL or INCONCLUSIVE
func (m *Metrics) Validated(verdict string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(verdict).Inc()
}

func (m *Metrics) ThresholdAdjusted() {
	if m == nil {
		return
	}
	m.adjustments.Inc()
}

func (m *Metrics) HTTPRequest(route string, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
