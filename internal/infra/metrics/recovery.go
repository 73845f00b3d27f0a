package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(recoveryAttempts, recoveryDeduped)
}

var (
	recoveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_attempts_total",
			Help: "Recovery runs by outcome (ok|failed).",
		},
		[]string{"outcome"},
	)

	recoveryDeduped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_deduped_total",
			Help: "Fault signals ignored because a recovery was already in flight.",
		},
	)
)

func ObserveRecovery(ok bool) {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	recoveryAttempts.WithLabelValues(outcome).Inc()
}

func ObserveRecoveryDeduped() { recoveryDeduped.Inc() }
