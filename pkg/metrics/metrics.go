// Package metrics holds the engine's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "proactive_intervention"

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Evaluation cycles by result.",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	UsersEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_evaluated_total",
			Help:      "Per-user units of work by result.",
		},
		[]string{"result"},
	)

	CandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidate interventions by source and trigger type.",
		},
		[]string{"source", "trigger_type"},
	)

	SchedulingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduling_results_total",
			Help:      "Scheduling decisions by status or rejection reason.",
		},
		[]string{"result"},
	)

	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of abandonment risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_results_total",
			Help:      "Dispatch attempts by result.",
		},
		[]string{"result"},
	)

	Effectiveness = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outcome_effectiveness",
			Help:      "Effectiveness score of recorded outcomes.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"category"},
	)
)

// Collectors returns every engine collector for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		CyclesTotal,
		CycleDuration,
		UsersEvaluated,
		CandidatesTotal,
		SchedulingTotal,
		RiskScore,
		DispatchTotal,
		Effectiveness,
	}
}
