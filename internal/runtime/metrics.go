package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the counters below.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeEmpty = "empty"
)

// Metrics groups the prometheus collectors of a search run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	llmCalls      *prometheus.CounterVec
	searchCalls   *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	plans         *prometheus.CounterVec
	runs          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mindsearch",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindsearch",
			Name:      "llm_calls_total",
			Help:      "Language model calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		searchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindsearch",
			Name:      "search_calls_total",
			Help:      "Web search backend calls by outcome.",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindsearch",
			Name:      "fetches_total",
			Help:      "Page fetches by outcome.",
		}, []string{"outcome"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindsearch",
			Name:      "plans_total",
			Help:      "Executed plans by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mindsearch",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.stageDuration, m.llmCalls, m.searchCalls, m.fetches, m.plans, m.runs)
	return m
}

func (m *Metrics) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (m *Metrics) LLMCall(purpose string, err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(purpose, outcome(err)).Inc()
}

func (m *Metrics) SearchCall(err error) {
	if m == nil {
		return
	}
	m.searchCalls.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) Fetches(ok, failed int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(OutcomeOK).Add(float64(ok))
	m.fetches.WithLabelValues(OutcomeError).Add(float64(failed))
}

func (m *Metrics) Plan(outcome string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Run(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
