// Package metrics exposes Prometheus counters for the dialogue engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeGenerated   = "generated"
	OutcomeInstruction = "instruction_only"
	OutcomeFallback    = "local_fallback"
	OutcomeDisabled    = "disabled"
	OutcomeLimited     = "usage_limited"
	OutcomeError       = "error"
)

var (
	// turnsTotal counts processed user turns by outcome.
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skopos_turns_total",
		Help: "Total user turns processed by outcome",
	}, []string{"outcome"})

	phaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skopos_phase_transitions_total",
		Help: "Total phase transitions by source and target phase",
	}, []string{"from", "to"})

	// loopsTotal counts candidate replies judged to be loops, by verdict source.
	loopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skopos_loops_detected_total",
		Help: "Total loops detected by verdict source",
	}, []string{"source"})

	replacementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skopos_loop_replacements_total",
		Help: "Total anti-loop replacements by strategy",
	}, []string{"strategy"})

	// remoteFallbacks counts remote calls that were replaced by the local path.
	remoteFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skopos_remote_fallbacks_total",
		Help: "Total remote generation failures recovered locally, by stage",
	}, []string{"stage"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skopos_turn_duration_seconds",
		Help:    "Turn processing duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})
)

// ObserveTurn records one processed turn.
func ObserveTurn(outcome string, seconds float64) {
	turnsTotal.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		turnDuration.Observe(seconds)
	}
}

// ObservePhaseTransition records a phase change.
func ObservePhaseTransition(from, to string) {
	phaseTransitions.WithLabelValues(from, to).Inc()
}

// ObserveLoop records a loop verdict and the replacement strategy used for it.
func ObserveLoop(source, strategy string) {
	loopsTotal.WithLabelValues(source).Inc()
	replacementsTotal.WithLabelValues(strategy).Inc()
}

// ObserveRemoteFallback records a remote failure recovered at stage.
func ObserveRemoteFallback(stage string) {
	remoteFallbacks.WithLabelValues(stage).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
