package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		probeResults,
		probeAvailable,
		autoSelects,
		providerSwitches,
		activeProvider,
	)
}

var (
	probeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_probe_results_total",
			Help: "Availability probe outcomes per provider.",
		},
		[]string{"provider", "available"},
	)

	probeAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_available",
			Help: "1 when the last probe reported the provider available.",
		},
		[]string{"provider"},
	)

	autoSelects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_auto_selects_total",
			Help: "Auto-selection outcomes by selected provider ('none' when nothing was available).",
		},
		[]string{"provider"},
	)

	providerSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_switches_total",
			Help: "Manual provider activations per provider.",
		},
		[]string{"provider"},
	)

	activeProvider = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_active",
			Help: "1 for the currently active provider, 0 otherwise.",
		},
		[]string{"provider"},
	)
)

// ObserveProbe records one availability probe result.
func ObserveProbe(provider string, available bool) {
	label := "false"
	if available {
		label = "true"
	}
	probeResults.WithLabelValues(provider, label).Inc()
	v := 0.0
	if available {
		v = 1.0
	}
	probeAvailable.WithLabelValues(provider).Set(v)
}

// ObserveAutoSelect records the outcome of one auto-selection cycle.
func ObserveAutoSelect(provider string) {
	if provider == "" {
		provider = "none"
	}
	autoSelects.WithLabelValues(provider).Inc()
}

// ObserveSwitch records a manual activation.
func ObserveSwitch(provider string) {
	providerSwitches.WithLabelValues(provider).Inc()
}

// SetActiveProvider flips the active gauge to the named provider only.
// Pass the full set of known names so stale gauges drop back to zero.
func SetActiveProvider(active string, known []string) {
	for _, name := range known {
		v := 0.0
		if name == active {
			v = 1.0
		}
		activeProvider.WithLabelValues(name).Set(v)
	}
}
