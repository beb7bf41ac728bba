// Package metrics exposes the brain's Prometheus instrumentation: job
// counters, agent-loop histograms, and breaker-state gauges (§5).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsDispatched counts dispatcher.Dispatch calls by job type (§4.9).
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakerst_jobs_dispatched_total",
		Help: "Total number of jobs dispatched onto the bus, by job type.",
	}, []string{"type"})

	// JobsCompleted counts terminal job outcomes by type and status (§4.9).
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakerst_jobs_completed_total",
		Help: "Total number of jobs that reached a terminal status, by type and status.",
	}, []string{"type", "status"})

	// JobDuration observes the wall-clock time a worker spends executing a
	// job, by job type (§4.9).
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bakerst_job_duration_seconds",
		Help:    "Time a worker spent executing a job, by job type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// AgentTurnDuration observes one full agent loop turn, including any
	// tool round-trips (§4.8).
	AgentTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bakerst_agent_turn_duration_seconds",
		Help:    "Duration of one agent chat turn, from first message to the done event.",
		Buckets: prometheus.DefBuckets,
	})

	// AgentToolCalls counts tool invocations by tool name and outcome (§4.8).
	AgentToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakerst_agent_tool_calls_total",
		Help: "Total number of tool calls made by the agent loop, by tool name and outcome.",
	}, []string{"tool", "outcome"})

	// BreakerState reports the circuit breaker's current state per guarded
	// resource: 0=closed, 1=half-open, 2=open (§4.7).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bakerst_breaker_state",
		Help: "Circuit breaker state by resource: 0=closed, 1=half-open, 2=open.",
	}, []string{"resource"})

	// BrainState reports 1 for the lifecycle state the brain currently
	// occupies and 0 for the others (§4.11).
	BrainState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bakerst_brain_state",
		Help: "Brain lifecycle state, 1 for the current state and 0 otherwise.",
	}, []string{"state"})
)

// BreakerStateValue maps a breaker state name to the gauge value used by
// BreakerState.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// SetBrainState updates BrainState so that only the given state reads 1.
func SetBrainState(states []string, current string) {
	for _, s := range states {
		value := 0.0
		if s == current {
			value = 1
		}
		BrainState.WithLabelValues(s).Set(value)
	}
}

// Handler returns the HTTP handler serving the Prometheus exposition
// format, to be mounted at /metrics by the caller.
func Handler() http.Handler {
	return promhttp.Handler()
}
