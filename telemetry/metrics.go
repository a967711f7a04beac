// Package telemetry exposes Prometheus metrics for pipeline runs and
// generation attempts.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tabula"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Attempts      *prometheus.CounterVec
	AttemptTime   *prometheus.HistogramVec
	Tokens        *prometheus.CounterVec
	Chunks        *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	ActiveRuns    prometheus.Gauge
	RateLimitHits prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Generation attempts by provider and outcome category.",
		}, []string{"provider", "outcome"}),
		AttemptTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempt_seconds",
			Help:      "Wall time of a single generation attempt.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		Tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Tokens reported by the generation service.",
		}, []string{"provider", "kind"}),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks recorded by the aggregator.",
		}, []string{"result"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by result and failure category.",
		}, []string{"result", "category"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Pipeline runs in progress.",
		}),
		RateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_cooldowns_total",
			Help:      "Cooldowns taken after the service signalled a rate limit.",
		}),
	}
	reg.MustRegister(m.Attempts, m.AttemptTime, m.Tokens, m.Chunks, m.Runs,
		m.RunDuration, m.ActiveRuns, m.RateLimitHits,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt records one generation attempt. outcome is "ok" or an
// error category label.
func (m *Metrics) ObserveAttempt(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(provider, outcome).Inc()
	m.AttemptTime.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// AddTokens records reported token usage.
func (m *Metrics) AddTokens(provider string, prompt, completion int) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues(provider, "prompt").Add(float64(prompt))
	m.Tokens.WithLabelValues(provider, "completion").Add(float64(completion))
}

// RateLimited counts a cooldown.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitHits.Inc()
}

// ObserveChunk records a chunk outcome.
func (m *Metrics) ObserveChunk(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Chunks.WithLabelValues("processed").Inc()
	} else {
		m.Chunks.WithLabelValues("failed").Inc()
	}
}

// RunStarted marks a run as active.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished records a terminal run. category is empty on success.
func (m *Metrics) RunFinished(success bool, category string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	result := "success"
	if !success {
		result = "failure"
	}
	m.Runs.WithLabelValues(result, category).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
