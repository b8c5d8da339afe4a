package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestReconciliationMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReconciliationMetrics(reg)
	m.IncTransition("WAITING_PAYMENT", "PAID", "payment")
	m.IncPaymentAttempt("VERIFIED")
	m.IncPaymentAttempt("VERIFIED")
	m.IncIndexFailure()
	m.IncSideEffectFailure("audit")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "order_transitions_total", map[string]string{"to": "PAID"}); err != nil || got != 1 {
		t.Fatalf("expected transition=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payment_attempts_total", map[string]string{"result": "VERIFIED"}); err != nil || got != 2 {
		t.Fatalf("expected payment attempts=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "side_effect_failures_total", map[string]string{"sink": "audit"}); err != nil || got != 1 {
		t.Fatalf("expected side effect failure=1, got %f (%v)", got, err)
	}
	mf := findMetricFamily(mfs, "index_write_failures_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected index failure counter=1")
	}
}

func TestReconciliationMetricsNilSafe(t *testing.T) {
	var m *ReconciliationMetrics
	m.IncTransition("a", "b", "c")
	m.IncIndexFailure()
	NewReconciliationMetrics(nil).IncPaymentAttempt("x")
}
