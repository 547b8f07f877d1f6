package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrchestratorMetrics covers model calls, recovery and function dispatch.
type OrchestratorMetrics struct {
	modelCalls   *prometheus.CounterVec
	modelLatency prometheus.Histogram
	llmErrors    *prometheus.CounterVec
	retries      *prometheus.CounterVec
	dispatch     *prometheus.HistogramVec
	transitions  *prometheus.CounterVec
}

func NewOrchestratorMetrics(reg prometheus.Registerer) *OrchestratorMetrics {
	if reg == nil {
		return &OrchestratorMetrics{}
	}
	m := &OrchestratorMetrics{
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "model_calls_total",
			Help:      "Conversational model invocations by outcome.",
		}, []string{"outcome"}),
		modelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "model_call_seconds",
			Help:      "Latency of conversational model calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		llmErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "llm_errors_total",
			Help:      "Classified model failures.",
		}, []string{"category"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "retries_total",
			Help:      "Scheduled turn retries by error category.",
		}, []string{"category"}),
		dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "function_dispatch_seconds",
			Help:      "Function call dispatch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function", "success"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Session state transitions by destination and result.",
		}, []string{"to", "result"}),
	}
	reg.MustRegister(m.modelCalls, m.modelLatency, m.llmErrors, m.retries, m.dispatch, m.transitions)
	return m
}

func (m *OrchestratorMetrics) ObserveModelCall(outcome string, d time.Duration) {
	if m == nil || m.modelCalls == nil {
		return
	}
	m.modelCalls.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.modelLatency.Observe(d.Seconds())
}

func (m *OrchestratorMetrics) IncLLMError(category string) {
	if m == nil || m.llmErrors == nil {
		return
	}
	m.llmErrors.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *OrchestratorMetrics) IncRetry(category string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *OrchestratorMetrics) ObserveDispatch(function string, success bool, d time.Duration) {
	if m == nil || m.dispatch == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.dispatch.WithLabelValues(normalizeLabel(function), label).Observe(d.Seconds())
}

func (m *OrchestratorMetrics) IncTransition(to string, ok bool) {
	if m == nil || m.transitions == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.transitions.WithLabelValues(normalizeLabel(to), result).Inc()
}
