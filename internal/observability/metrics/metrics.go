package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssistantMetrics exposes counters/histograms for conversation turns.
type AssistantMetrics struct {
	turnsTotal        *prometheus.CounterVec
	aiExtractionTotal *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
}

func NewAssistantMetrics(reg prometheus.Registerer) *AssistantMetrics {
	m := &AssistantMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "dialog",
			Name:      "turns_total",
			Help:      "Total conversation turns processed",
		}, []string{"intent"}),
		aiExtractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "extraction",
			Name:      "ai_fallback_total",
			Help:      "Total AI entity-extraction fallback calls",
		}, []string{"status"}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "storage",
			Name:      "persistence_errors_total",
			Help:      "Total appointment persistence failures",
		}, []string{"operation"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "dialog",
			Name:      "turn_latency_seconds",
			Help:      "Latency of end-to-end turn processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.aiExtractionTotal, m.persistenceErrors, m.turnLatency)
	return m
}

func (m *AssistantMetrics) ObserveTurn(intent string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent).Inc()
	m.turnLatency.WithLabelValues(intent).Observe(seconds)
}

func (m *AssistantMetrics) ObserveAIExtraction(status string) {
	if m == nil {
		return
	}
	m.aiExtractionTotal.WithLabelValues(status).Inc()
}

func (m *AssistantMetrics) ObservePersistenceError(operation string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(operation).Inc()
}
