package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		streamDeltas,
		streamFailures,
		streamLatencyMs,
		promptTokensIn,
		parseWarnings,
	)
}

var (
	streamDeltas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_deltas_total",
			Help: "Text deltas yielded per provider.",
		},
		[]string{"provider"},
	)

	streamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_failures_total",
			Help: "Terminal stream failures by class (transport|cancelled|fatal|other).",
		},
		[]string{"provider", "class"},
	)

	streamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_duration_ms",
			Help:    "Full stream duration distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider"},
	)

	promptTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_tokens_in",
			Help: "Estimated prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	parseWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_parse_warnings_total",
			Help: "Malformed stream payloads skipped per flavor.",
		},
		[]string{"flavor"},
	)
)

func ObserveDelta(provider string) { streamDeltas.WithLabelValues(provider).Inc() }

func ObserveStreamFailure(provider, class string) {
	streamFailures.WithLabelValues(provider, class).Inc()
}
func ObserveStreamDuration(provider string, ms float64) {
	streamLatencyMs.WithLabelValues(provider).Observe(ms)
}
func ObservePromptTokens(provider, model string, n int) {
	if n > 0 {
		promptTokensIn.WithLabelValues(provider, model).Add(float64(n))
	}
}
func ObserveParseWarning(flavor string) { parseWarnings.WithLabelValues(flavor).Inc() }
