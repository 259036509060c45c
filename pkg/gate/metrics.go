package gate

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts gate decisions and times statement execution.
type Metrics struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the gate metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlguard",
				Name:      "gate_decisions_total",
				Help:      "Number of statements allowed or denied by the gate.",
			},
			[]string{"database", "mode", "tier", "decision"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sqlguard",
				Name:      "gate_execution_duration_seconds",
				Help:      "Time spent executing allowed statements.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"database", "operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.duration)
	}
	return m
}

func (m *Metrics) observeDecision(database string, mode Mode, tier string, decision string) {
	m.decisions.WithLabelValues(database, mode.String(), tier, decision).Inc()
}

func (m *Metrics) observeDuration(database, operation string, seconds float64) {
	m.duration.WithLabelValues(database, operation).Observe(seconds)
}
