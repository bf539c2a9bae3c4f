package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts guard decisions and admin operations. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	adminOps  *prometheus.CounterVec
}

// NewMetrics registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txn_auth_guard_decisions_total",
				Help: "Access guard decisions by kind.",
			},
			[]string{"kind"},
		),
		adminOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txn_auth_admin_operations_total",
				Help: "Admin operations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.decisions, m.adminOps} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DecisionCounter exposes the decision counter for the given kind.
func (m *Metrics) DecisionCounter(kind DecisionKind) prometheus.Counter {
	return m.decisions.WithLabelValues(kind.String())
}

// AdminOperationCounter exposes the admin operation counter.
func (m *Metrics) AdminOperationCounter(op, outcome string) prometheus.Counter {
	return m.adminOps.WithLabelValues(op, outcome)
}

func (m *Metrics) observeDecision(kind DecisionKind) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeAdminOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.adminOps.WithLabelValues(op, outcome).Inc()
}
