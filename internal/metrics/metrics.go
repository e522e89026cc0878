// Package metrics defines the Prometheus collectors for the lifecycle
// controller. All collectors are registered on the default registry and
// exposed by the trigger server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "divinepic"

// Label values for the outcome label.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// TriggersTotal counts handled trigger invocations by action and outcome.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "triggers_total",
			Help:      "Total number of handled trigger invocations",
		},
		[]string{"action", "outcome"},
	)

	// ProbeAttemptsTotal counts readiness probe attempts by outcome.
	ProbeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "attempts_total",
			Help:      "Total number of health probe attempts",
		},
		[]string{"outcome"},
	)

	// ProbeWaitSeconds observes total readiness wait durations.
	ProbeWaitSeconds = promauto.NewSummary(
		prometheus.SummaryOpts{
			Namespace:  namespace,
			Subsystem:  "probe",
			Name:       "wait_seconds",
			Help:       "Time spent waiting for an instance to become ready",
			Objectives: map[float64]float64{0.5: 1e-1, 0.9: 1e-2, 0.99: 1e-3},
		},
	)

	// ActivitySamplesTotal counts activity signal samples by source and outcome.
	ActivitySamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "samples_total",
			Help:      "Total number of activity signal samples",
		},
		[]string{"source", "outcome"},
	)

	// IdleEvaluationsTotal counts idle-loop evaluations by decision.
	IdleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idle",
			Name:      "evaluations_total",
			Help:      "Total number of idle window evaluations",
		},
		[]string{"decision"},
	)

	// IdleLoopsActive tracks the number of running idle-shutdown loops.
	IdleLoopsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "idle",
			Name:      "loops_active",
			Help:      "Number of idle-shutdown loops currently monitoring",
		},
	)

	// InstanceStopsTotal counts stop requests issued by the idle loop.
	InstanceStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idle",
			Name:      "instance_stops_total",
			Help:      "Total number of instance stop requests issued by the idle loop",
		},
		[]string{"outcome"},
	)
)
