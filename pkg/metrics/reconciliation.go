package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReconciliationMetrics counts order transitions and the best-effort work that follows them.
type ReconciliationMetrics struct {
	transitions   *prometheus.CounterVec
	payments      *prometheus.CounterVec
	indexFailures prometheus.Counter
	sideEffects   *prometheus.CounterVec
}

func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	if reg == nil {
		return &ReconciliationMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Accepted order status transitions.",
	}, []string{"from", "to", "trigger"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Payment attempts by outcome reason.",
	}, []string{"result"})
	indexFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "index_write_failures_total",
		Help: "Customer index writes that failed after the order was committed.",
	})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effect_failures_total",
		Help: "Failed post-commit side effects by sink.",
	}, []string{"sink"})
	reg.MustRegister(transitions, payments, indexFailures, sideEffects)
	return &ReconciliationMetrics{
		transitions:   transitions,
		payments:      payments,
		indexFailures: indexFailures,
		sideEffects:   sideEffects,
	}
}

func (m *ReconciliationMetrics) IncTransition(from, to, trigger string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(trigger)).Inc()
}

func (m *ReconciliationMetrics) IncPaymentAttempt(result string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *ReconciliationMetrics) IncIndexFailure() {
	if m == nil || m.indexFailures == nil {
		return
	}
	m.indexFailures.Inc()
}

func (m *ReconciliationMetrics) IncSideEffectFailure(sink string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(sink)).Inc()
}
