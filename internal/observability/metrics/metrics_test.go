package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChatMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)
	m.ObserveTurn("http", "rendered")
	m.ObserveTurn("http", "rendered")
	m.ObserveTurn("sse", "aborted")
	m.ObserveCompletionLatency("stream", 0.5)
	m.ObserveToolCall("get_pricing", true)
	m.ObserveToolCall("get_pricing", false)
	m.ObserveLeadCapture("persisted")
	m.ObservePaymentVerification("mismatch")

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("http", "rendered")); got != 2 {
		t.Fatalf("expected 2 rendered turns, got %v", got)
	}
	if got := testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("get_pricing", "error")); got != 1 {
		t.Fatalf("expected 1 failed tool call, got %v", got)
	}
	if got := testutil.ToFloat64(m.paymentVerifyTotal.WithLabelValues("mismatch")); got != 1 {
		t.Fatalf("expected 1 mismatch, got %v", got)
	}
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveTurn("http", "rendered")
	m.ObserveCompletionLatency("complete", 0.1)
	m.ObserveToolCall("get_services", true)
	m.ObserveLeadCapture("skipped")
	m.ObservePaymentVerification("ok")
}
