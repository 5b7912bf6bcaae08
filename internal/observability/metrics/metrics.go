package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters for chat pipeline flows.
type PipelineMetrics struct {
	decisionsTotal    *prometheus.CounterVec
	intentsTotal      *prometheus.CounterVec
	escalationsTotal  *prometheus.CounterVec
	memoryWritesTotal *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chattia",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Pipeline stage decisions",
		}, []string{"stage", "outcome"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chattia",
			Subsystem: "pipeline",
			Name:      "intents_total",
			Help:      "Classified intents",
		}, []string{"intent"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chattia",
			Subsystem: "pipeline",
			Name:      "escalations_total",
			Help:      "Cloud escalations by provider and result",
		}, []string{"target", "status"}),
		memoryWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chattia",
			Subsystem: "pipeline",
			Name:      "memory_writes_total",
			Help:      "Encrypted memory writes",
		}, []string{"escalated"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chattia",
			Subsystem: "pipeline",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of a chat turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisionsTotal, m.intentsTotal, m.escalationsTotal, m.memoryWritesTotal, m.turnLatency)
	return m
}

func (m *PipelineMetrics) ObserveDecision(stage, outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *PipelineMetrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(intent).Inc()
}

func (m *PipelineMetrics) ObserveEscalation(target string, success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "ok"
	}
	m.escalationsTotal.WithLabelValues(target, status).Inc()
}

func (m *PipelineMetrics) ObserveMemoryWrite(escalated bool) {
	if m == nil {
		return
	}
	label := "false"
	if escalated {
		label = "true"
	}
	m.memoryWritesTotal.WithLabelValues(label).Inc()
}

func (m *PipelineMetrics) ObserveTurnLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(outcome).Observe(seconds)
}
