// Package risk scores abandonment risk and turns high scores into
// risk-driven candidate interventions.
//
// Scores range from 0.0 (engaged) to 1.0 (about to abandon). Scoring is
// deterministic: identical features always produce identical scores.
package risk

import (
	"math"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
)

// DefaultInterventionResponseRate is used when a user has no outcome history.
const DefaultInterventionResponseRate = 0.5

// Features is the extended feature vector fed to a Scorer. Rates are in
// [0,1]; Sentiment and ResponseTimeTrend are in [-1,1].
type Features struct {
	SubScores        map[string]float64 `json:"subScores"`
	Engagement       float64            `json:"engagement"`
	GoalCompletion   float64            `json:"goalCompletion"`
	HabitConsistency float64            `json:"habitConsistency"`
	// ResponseTimeTrend is the relative change in reply latency between the
	// two halves of the window. Positive means replies are slowing down.
	ResponseTimeTrend        float64 `json:"responseTimeTrend"`
	Sentiment                float64 `json:"sentiment"`
	InterventionResponseRate float64 `json:"interventionResponseRate"`
	// Missing marks factors with no data in the window, keyed by factor
	// name. A missing factor contributes no risk.
	Missing map[string]bool `json:"missing,omitempty"`
}

// ExtractFeatures builds the feature vector from a profile, the activity
// window it was computed from and the user's historical response rate.
// hasHistory is false when the user has no recorded outcomes yet.
func ExtractFeatures(profile *behavior.Profile, events activity.Events, window activity.Window, responseRate float64, hasHistory bool) Features {
	missing := make(map[string]bool)
	if len(events.OfKind(activity.KindGoalCompleted, activity.KindGoalMissed)) == 0 {
		missing[FactorMissedGoals] = true
	}
	if len(events.OfKind(activity.KindHabitCompleted, activity.KindHabitMissed)) == 0 {
		missing[FactorInconsistentHabits] = true
	}
	if _, ok := profile.Metrics[behavior.MetricSentiment]; !ok {
		missing[FactorNegativeSentiment] = true
	}
	if !hasHistory {
		missing[FactorIgnoredOutreach] = true
	}
	if len(missing) == 0 {
		missing = nil
	}

	return Features{
		SubScores:                profile.SubScores,
		Engagement:               profile.Overall,
		GoalCompletion:           metricOr(profile, behavior.MetricGoalCompletionRate, 0.5),
		HabitConsistency:         habitConsistency(events, window),
		ResponseTimeTrend:        responseTimeTrend(events, window),
		Sentiment:                metricOr(profile, behavior.MetricSentiment, 0),
		InterventionResponseRate: responseRate,
		Missing:                  missing,
	}
}

func metricOr(p *behavior.Profile, name string, fallback float64) float64 {
	if v, ok := p.Metrics[name]; ok {
		return v
	}
	return fallback
}

// habitConsistency is the share of window days with at least one completed
// habit, among users that track habits at all.
func habitConsistency(events activity.Events, window activity.Window) float64 {
	tracked := events.OfKind(activity.KindHabitCompleted, activity.KindHabitMissed)
	if len(tracked) == 0 {
		return 0.5
	}

	days := make(map[string]bool)
	for _, e := range tracked.OfKind(activity.KindHabitCompleted) {
		days[e.OccurredAt.UTC().Format("2006-01-02")] = true
	}
	return math.Min(1, float64(len(days))/window.Days())
}

// responseTimeTrend compares mean reply latency in the later half of the
// window with the earlier half.
func responseTimeTrend(events activity.Events, window activity.Window) float64 {
	mid := window.Start.Add(window.Duration() / 2)
	var early, late []float64
	for _, e := range events.OfKind(activity.KindResponse) {
		if e.OccurredAt.Before(mid) {
			early = append(early, e.Value)
		} else {
			late = append(late, e.Value)
		}
	}
	if len(early) == 0 || len(late) == 0 {
		return 0
	}

	before, after := avg(early), avg(late)
	if before <= 0 {
		return 0
	}
	return clamp((after-before)/before, -1, 1)
}

func avg(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
