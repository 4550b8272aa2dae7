package behavior

import (
	"context"
	"fmt"
	"time"
)

// Sub-score names. They double as metric names in trigger conditions.
const (
	SubFrequency  = "message_frequency"
	SubLatency    = "response_latency"
	SubDuration   = "session_duration"
	SubHabit      = "habit_completion"
	SubContent    = "content_interaction"
	SubInitiation = "proactive_initiation"
)

// SubScoreNames lists sub-scores in weight order.
var SubScoreNames = []string{SubFrequency, SubLatency, SubDuration, SubHabit, SubContent, SubInitiation}

// Raw metric names exposed to trigger conditions.
const (
	MetricMessagesPerDay     = "messages_per_day"
	MetricMedianLatencyMin   = "median_response_latency_minutes"
	MetricAvgSessionMin      = "avg_session_minutes"
	MetricSessionsPerDay     = "sessions_per_day"
	MetricHabitRate          = "habit_completion_rate"
	MetricContentPerDay      = "content_per_day"
	MetricInitiationRatio    = "initiation_ratio"
	MetricGoalCompletionRate = "goal_completion_rate"
	MetricSentiment          = "sentiment_avg"
	MetricEventCount         = "event_count"
	MetricOverall            = "engagement_score"
	MetricTrendDelta         = "trend_delta"
)

// Trend is the direction of the overall score relative to recent history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Profile is a user's engagement snapshot for one evaluation cycle. It is
// never mutated after the analyzer returns it.
type Profile struct {
	UserID           string             `json:"userId"`
	SubScores        map[string]float64 `json:"subScores"`
	Overall          float64            `json:"overall"`
	Trend            Trend              `json:"trend"`
	Timestamp        time.Time          `json:"timestamp"`
	Metrics          map[string]float64 `json:"metrics"`
	InsufficientData bool               `json:"insufficientData"`
}

// Metric resolves a condition metric name against raw metrics, sub-scores and
// the overall score.
func (p *Profile) Metric(name string) (float64, bool) {
	if v, ok := p.Metrics[name]; ok {
		return v, true
	}
	if v, ok := p.SubScores[name]; ok {
		return v, true
	}
	if name == MetricOverall {
		return p.Overall, true
	}
	return 0, false
}

// Weights maps sub-score names to their share of the overall score.
type Weights map[string]float64

// DefaultWeights returns the baseline weighting.
func DefaultWeights() Weights {
	return Weights{
		SubFrequency:  0.25,
		SubLatency:    0.20,
		SubDuration:   0.15,
		SubHabit:      0.20,
		SubContent:    0.10,
		SubInitiation: 0.10,
	}
}

// Validate checks every sub-score has a non-negative weight and the total is
// positive.
func (w Weights) Validate() error {
	total := 0.0
	for _, name := range SubScoreNames {
		v, ok := w[name]
		if !ok {
			return fmt.Errorf("missing weight for %s", name)
		}
		if v < 0 {
			return fmt.Errorf("negative weight for %s: %v", name, v)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("weights sum to %v", total)
	}
	return nil
}

// Normalized returns a copy scaled to sum to 1.
func (w Weights) Normalized() Weights {
	total := 0.0
	for _, name := range SubScoreNames {
		total += w[name]
	}
	out := make(Weights, len(SubScoreNames))
	for _, name := range SubScoreNames {
		if total > 0 {
			out[name] = w[name] / total
		}
	}
	return out
}

// HistoryStore keeps the append-only profile history.
type HistoryStore interface {
	// Recent returns up to n profiles, newest first.
	Recent(ctx context.Context, userID string, n int) ([]*Profile, error)
	Append(ctx context.Context, profile *Profile) error
}

// WeightSource supplies the current sub-score weights.
type WeightSource interface {
	Weights(ctx context.Context) (Weights, error)
}
