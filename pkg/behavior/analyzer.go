// Package behavior turns a window of activity events into an engagement
// profile.
package behavior

import (
	"context"
	"sort"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultLookback is the activity window analyzed per cycle.
	DefaultLookback = 7 * 24 * time.Hour

	trendHistory = 3
	trendAlpha   = 0.5
	trendBand    = 0.05
	neutralScore = 0.5
)

// Analyzer computes engagement profiles.
type Analyzer struct {
	history HistoryStore
	weights WeightSource
}

// NewAnalyzer creates an analyzer. Either dependency may be nil: without
// history the trend is always stable, without a weight source the defaults
// apply.
func NewAnalyzer(history HistoryStore, weights WeightSource) *Analyzer {
	return &Analyzer{history: history, weights: weights}
}

// Analyze scores the events, derives the trend from stored history and
// appends the new profile to it. A window with no events yields an
// insufficient-data profile that is not recorded.
func (a *Analyzer) Analyze(ctx context.Context, userID string, window activity.Window, events activity.Events) (*Profile, error) {
	weights := a.currentWeights(ctx)
	profile := Compute(userID, window, events, weights)
	if profile.InsufficientData {
		return profile, nil
	}

	if a.history != nil {
		past, err := a.history.Recent(ctx, userID, trendHistory)
		if err != nil {
			logrus.Warnf("failed to load profile history for user %s: %v", userID, err)
		}
		profile.Trend, profile.Metrics[MetricTrendDelta] = trendOf(profile.Overall, past)

		if err := a.history.Append(ctx, profile); err != nil {
			logrus.Warnf("failed to append profile for user %s: %v", userID, err)
		}
	}

	return profile, nil
}

func (a *Analyzer) currentWeights(ctx context.Context) Weights {
	if a.weights == nil {
		return DefaultWeights()
	}
	w, err := a.weights.Weights(ctx)
	if err != nil {
		logrus.Warnf("failed to load analyzer weights, using defaults: %v", err)
		return DefaultWeights()
	}
	if err := w.Validate(); err != nil {
		logrus.Warnf("invalid analyzer weights, using defaults: %v", err)
		return DefaultWeights()
	}
	return w
}

// Compute scores a window of events without touching history.
func Compute(userID string, window activity.Window, events activity.Events, weights Weights) *Profile {
	profile := &Profile{
		UserID:    userID,
		Trend:     TrendStable,
		Timestamp: window.End,
		SubScores: make(map[string]float64, len(SubScoreNames)),
		Metrics:   map[string]float64{MetricEventCount: float64(len(events))},
	}
	if len(events) == 0 {
		profile.InsufficientData = true
		return profile
	}

	days := window.Days()
	m := profile.Metrics

	messages := events.OfKind(activity.KindMessage)
	m[MetricMessagesPerDay] = float64(len(messages)) / days
	profile.SubScores[SubFrequency] = frequencyCurve.At(m[MetricMessagesPerDay])

	responses := events.OfKind(activity.KindResponse)
	if len(responses) > 0 {
		m[MetricMedianLatencyMin] = median(values(responses)) / 60
		profile.SubScores[SubLatency] = latencyCurve.At(m[MetricMedianLatencyMin])
	} else {
		profile.SubScores[SubLatency] = neutralScore
	}

	sessions := events.OfKind(activity.KindSession)
	m[MetricSessionsPerDay] = float64(len(sessions)) / days
	if len(sessions) > 0 {
		m[MetricAvgSessionMin] = mean(values(sessions)) / 60
		profile.SubScores[SubDuration] = durationCurve.At(m[MetricAvgSessionMin])
	} else {
		profile.SubScores[SubDuration] = neutralScore
	}

	done := len(events.OfKind(activity.KindHabitCompleted))
	missed := len(events.OfKind(activity.KindHabitMissed))
	if done+missed > 0 {
		m[MetricHabitRate] = float64(done) / float64(done+missed)
		profile.SubScores[SubHabit] = m[MetricHabitRate]
	} else {
		m[MetricHabitRate] = neutralScore
		profile.SubScores[SubHabit] = neutralScore
	}

	m[MetricContentPerDay] = float64(len(events.OfKind(activity.KindContentInteraction))) / days
	profile.SubScores[SubContent] = contentCurve.At(m[MetricContentPerDay])

	if len(messages) > 0 {
		initiated := 0
		for _, e := range messages {
			if e.Initiated {
				initiated++
			}
		}
		m[MetricInitiationRatio] = float64(initiated) / float64(len(messages))
		profile.SubScores[SubInitiation] = initiationCurve.At(m[MetricInitiationRatio])
	} else {
		profile.SubScores[SubInitiation] = neutralScore
	}

	goalsDone := len(events.OfKind(activity.KindGoalCompleted))
	goalsMissed := len(events.OfKind(activity.KindGoalMissed))
	if goalsDone+goalsMissed > 0 {
		m[MetricGoalCompletionRate] = float64(goalsDone) / float64(goalsDone+goalsMissed)
	} else {
		m[MetricGoalCompletionRate] = neutralScore
	}

	if sentiment := events.OfKind(activity.KindSentiment); len(sentiment) > 0 {
		m[MetricSentiment] = mean(values(sentiment))
	}

	w := weights.Normalized()
	for _, name := range SubScoreNames {
		profile.Overall += w[name] * profile.SubScores[name]
	}
	profile.Overall = clamp01(profile.Overall)
	m[MetricOverall] = profile.Overall

	return profile
}

// trendOf compares score against an EWMA of past profiles (newest first).
func trendOf(score float64, past []*Profile) (Trend, float64) {
	var scores []float64
	for _, p := range past {
		if p == nil || p.InsufficientData {
			continue
		}
		scores = append(scores, p.Overall)
		if len(scores) == trendHistory {
			break
		}
	}
	if len(scores) == 0 {
		return TrendStable, 0
	}

	ewma := scores[len(scores)-1]
	for i := len(scores) - 2; i >= 0; i-- {
		ewma = trendAlpha*scores[i] + (1-trendAlpha)*ewma
	}

	delta := score - ewma
	switch {
	case delta > trendBand:
		return TrendImproving, delta
	case delta < -trendBand:
		return TrendDeclining, delta
	default:
		return TrendStable, delta
	}
}

func values(events activity.Events) []float64 {
	out := make([]float64, len(events))
	for i, e := range events {
		out[i] = e.Value
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
