package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink records the histogram/counter half of the telemetry
// contract: verify duration, settle duration, gas used, and an
// (network, error_reason) counter. Registered against a caller-supplied
// registry so cmd/facilitatord controls whether it is the default registry
// or a private one used in tests.
type PrometheusSink struct {
	verifyDuration *prometheus.HistogramVec
	settleDuration *prometheus.HistogramVec
	gasUsed        *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	transitions    *prometheus.CounterVec
}

// NewPrometheusSink creates and registers the sink's metrics against reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		verifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "facilitator",
			Name:      "verify_duration_seconds",
			Help:      "Duration of Verify calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"network"}),
		settleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "facilitator",
			Name:      "settle_duration_seconds",
			Help:      "Duration of Settle calls, end to end.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"network"}),
		gasUsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "facilitator",
			Name:      "settlement_gas_used",
			Help:      "Gas used by confirmed settlement transactions.",
			Buckets:   prometheus.ExponentialBuckets(21_000, 2, 14),
		}, []string{"network"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facilitator",
			Name:      "settlement_errors_total",
			Help:      "Settlement and verification failures by reason.",
		}, []string{"network", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facilitator",
			Name:      "settlement_transitions_total",
			Help:      "State machine transitions by resulting state.",
		}, []string{"network", "state"}),
	}

	reg.MustRegister(s.verifyDuration, s.settleDuration, s.gasUsed, s.errors, s.transitions)
	return s
}

func (s *PrometheusSink) RecordTransition(t Transition) {
	s.transitions.WithLabelValues(t.Network, t.State).Inc()
}

func (s *PrometheusSink) RecordVerifyDuration(network string, d time.Duration) {
	s.verifyDuration.WithLabelValues(network).Observe(d.Seconds())
}

func (s *PrometheusSink) RecordSettleDuration(network string, d time.Duration) {
	s.settleDuration.WithLabelValues(network).Observe(d.Seconds())
}

func (s *PrometheusSink) RecordGasUsed(network string, gasUsed uint64) {
	s.gasUsed.WithLabelValues(network).Observe(float64(gasUsed))
}

func (s *PrometheusSink) IncrementError(network, reason string) {
	s.errors.WithLabelValues(network, reason).Inc()
}

var _ Sink = (*PrometheusSink)(nil)
