package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat assistant.
type ChatMetrics struct {
	turnsTotal         *prometheus.CounterVec
	completionLatency  *prometheus.HistogramVec
	toolCallsTotal     *prometheus.CounterVec
	leadCaptureTotal   *prometheus.CounterVec
	paymentVerifyTotal *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrconsult",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by transport and outcome",
		}, []string{"transport", "outcome"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hrconsult",
			Subsystem: "chat",
			Name:      "completion_latency_seconds",
			Help:      "Latency of completion API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrconsult",
			Subsystem: "chat",
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched on behalf of the model",
		}, []string{"tool", "status"}),
		leadCaptureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrconsult",
			Subsystem: "leads",
			Name:      "capture_total",
			Help:      "Lead capture attempts by outcome",
		}, []string{"outcome"}),
		paymentVerifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrconsult",
			Subsystem: "payments",
			Name:      "verifications_total",
			Help:      "Payment signature verifications by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.completionLatency, m.toolCallsTotal, m.leadCaptureTotal, m.paymentVerifyTotal)
	return m
}

func (m *ChatMetrics) ObserveTurn(transport, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(transport, outcome).Inc()
}

func (m *ChatMetrics) ObserveCompletionLatency(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.completionLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *ChatMetrics) ObserveToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *ChatMetrics) ObserveLeadCapture(outcome string) {
	if m == nil {
		return
	}
	m.leadCaptureTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObservePaymentVerification(result string) {
	if m == nil {
		return
	}
	m.paymentVerifyTotal.WithLabelValues(result).Inc()
}
