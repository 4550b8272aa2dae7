package risk

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniformFeatures returns features where every risk signal equals r.
func uniformFeatures(r float64) Features {
	return Features{
		Engagement:               1 - r,
		GoalCompletion:           1 - r,
		HabitConsistency:         1 - r,
		ResponseTimeTrend:        r,
		Sentiment:                1 - 2*r,
		InterventionResponseRate: 1 - r,
	}
}

type fixedScorer float64

func (f fixedScorer) Score(Features) float64 { return float64(f) }

type stubRates struct {
	rate float64
	ok   bool
	err  error
}

func (s stubRates) ResponseRate(ctx context.Context, userID string) (float64, bool, error) {
	return s.rate, s.ok, s.err
}

func TestHeuristicScorer_UniformSignals(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.75, 1} {
		assert.InDelta(t, r, HeuristicScorer{}.Score(uniformFeatures(r)), 1e-9)
	}
}

func TestHeuristicScorer_WeightsSumToOne(t *testing.T) {
	total := 0.0
	for _, w := range HeuristicWeights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-12)
}

func TestHeuristicScorer_Monotonic(t *testing.T) {
	base := uniformFeatures(0.5)
	baseScore := HeuristicScorer{}.Score(base)

	worse := []struct {
		name   string
		mutate func(*Features)
	}{
		{"lower engagement", func(f *Features) { f.Engagement -= 0.1 }},
		{"fewer goals", func(f *Features) { f.GoalCompletion -= 0.1 }},
		{"fewer habits", func(f *Features) { f.HabitConsistency -= 0.1 }},
		{"slower replies", func(f *Features) { f.ResponseTimeTrend += 0.1 }},
		{"sadder", func(f *Features) { f.Sentiment -= 0.1 }},
		{"ignores outreach", func(f *Features) { f.InterventionResponseRate -= 0.1 }},
	}

	for _, tt := range worse {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.mutate(&f)
			assert.Greater(t, HeuristicScorer{}.Score(f), baseScore)
		})
	}
}

func TestPredictor_Assess_Idempotent(t *testing.T) {
	p := NewPredictor(nil, nil, 0)
	f := Features{Engagement: 0.31, GoalCompletion: 0.27, HabitConsistency: 0.4, ResponseTimeTrend: 0.33, Sentiment: -0.2, InterventionResponseRate: 0.1}

	first := p.Assess("u1", f)
	for i := 0; i < 50; i++ {
		again := p.Assess("u1", f)
		assert.Equal(t, math.Float64bits(first.Score), math.Float64bits(again.Score))
		assert.Equal(t, first.Band, again.Band)
		assert.Equal(t, first.Factors, again.Factors)
	}
}

func TestBandFor_Boundaries(t *testing.T) {
	tests := []struct {
		score    float64
		expected Band
	}{
		{0, BandNone},
		{0.3999, BandNone},
		{0.4, BandMedium},
		{0.55, BandMedium},
		{0.7, BandMedium},
		{0.7001, BandHigh},
		{1, BandHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, BandFor(tt.score), "score %v", tt.score)
	}
}

func TestPredictor_Assess_RankedFactors(t *testing.T) {
	f := uniformFeatures(0.2)
	f.Engagement = 0 // low engagement dominates

	a := NewPredictor(nil, nil, 0).Assess("u1", f)

	require.NotEmpty(t, a.Factors)
	assert.Equal(t, FactorLowEngagement, a.Factors[0].Name)
	for i := 1; i < len(a.Factors); i++ {
		assert.GreaterOrEqual(t, a.Factors[i-1].Contribution, a.Factors[i].Contribution)
	}
}

func TestPredictor_RiskEscalationScenario(t *testing.T) {
	now := time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC)
	p := NewPredictor(fixedScorer(0.75), nil, 0)
	profile := &behavior.Profile{UserID: "u1", Overall: 0.2, SubScores: map[string]float64{behavior.SubFrequency: 0.1}, Metrics: map[string]float64{}}

	a, c := p.Predict(context.Background(), profile, activity.Events{}, activity.Lookback(now, behavior.DefaultLookback), now)

	require.NotNil(t, a)
	assert.Equal(t, BandHigh, a.Band)
	require.NotNil(t, c)
	assert.Equal(t, intervention.TriggerTypeRiskDriven, c.TriggerType)
	assert.Equal(t, intervention.CategoryHumanEscalation, c.Category)
	assert.Equal(t, intervention.UrgencyHigh, c.Urgency)
	assert.Equal(t, intervention.PriorityHigh, c.Priority)
	assert.Equal(t, EscalationMaxDelay, c.MaxDelay)
	assert.Equal(t, 0.75, c.Context.RiskScore)
}

func TestPredictor_HeuristicEscalation(t *testing.T) {
	p := NewPredictor(nil, nil, 0)

	a := p.Assess("u1", uniformFeatures(0.75))

	assert.InDelta(t, 0.75, a.Score, 1e-9)
	assert.Equal(t, BandHigh, a.Band)
	require.NotEmpty(t, a.Categories)
	assert.Equal(t, intervention.CategoryHumanEscalation, a.Categories[0])
}

func TestPredictor_MediumBand(t *testing.T) {
	now := time.Now()
	p := NewPredictor(fixedScorer(0.5), nil, 12*time.Hour)
	profile := &behavior.Profile{UserID: "u1", SubScores: map[string]float64{}, Metrics: map[string]float64{}}

	_, c := p.Predict(context.Background(), profile, nil, activity.Lookback(now, time.Hour), now)

	require.NotNil(t, c)
	assert.Equal(t, intervention.PriorityMedium, c.Priority)
	assert.Equal(t, intervention.CategoryEngagementBoost, c.Category)
	assert.Equal(t, 12*time.Hour, c.Cooldown)
	assert.Zero(t, c.MaxDelay)
}

func TestPredictor_LowBandNoCandidate(t *testing.T) {
	now := time.Now()
	p := NewPredictor(fixedScorer(0.39), nil, 0)
	profile := &behavior.Profile{UserID: "u1", SubScores: map[string]float64{}, Metrics: map[string]float64{}}

	a, c := p.Predict(context.Background(), profile, nil, activity.Lookback(now, time.Hour), now)

	require.NotNil(t, a)
	assert.Equal(t, BandNone, a.Band)
	assert.Nil(t, c)
}

func TestPredictor_NewUserSuppression(t *testing.T) {
	now := time.Now()
	p := NewPredictor(fixedScorer(1), nil, 0)
	profile := behavior.Compute("new", activity.Lookback(now, behavior.DefaultLookback), activity.Events{}, behavior.DefaultWeights())

	a, c := p.Predict(context.Background(), profile, activity.Events{}, activity.Lookback(now, behavior.DefaultLookback), now)

	assert.Nil(t, a)
	assert.Nil(t, c)
}

func TestPredictor_ResponseRateSource(t *testing.T) {
	now := time.Now()
	profile := &behavior.Profile{UserID: "u1", Overall: 0.5, SubScores: map[string]float64{}, Metrics: map[string]float64{}}
	window := activity.Lookback(now, time.Hour)

	a, _ := NewPredictor(nil, stubRates{rate: 0.9, ok: true}, 0).Predict(context.Background(), profile, nil, window, now)
	assert.Equal(t, 0.9, a.Features.InterventionResponseRate)

	a, _ = NewPredictor(nil, stubRates{}, 0).Predict(context.Background(), profile, nil, window, now)
	assert.Equal(t, DefaultInterventionResponseRate, a.Features.InterventionResponseRate)

	a, _ = NewPredictor(nil, stubRates{err: errors.New("redis down")}, 0).Predict(context.Background(), profile, nil, window, now)
	assert.Equal(t, DefaultInterventionResponseRate, a.Features.InterventionResponseRate)
}

func TestExtractFeatures_ResponseTimeTrend(t *testing.T) {
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	window := activity.Lookback(now, 4*24*time.Hour)
	events := activity.Events{
		{Kind: activity.KindResponse, OccurredAt: now.Add(-80 * time.Hour), Value: 60},
		{Kind: activity.KindResponse, OccurredAt: now.Add(-10 * time.Hour), Value: 90},
	}
	profile := behavior.Compute("u1", window, events, behavior.DefaultWeights())

	f := ExtractFeatures(profile, events, window, 0.5, false)

	assert.InDelta(t, 0.5, f.ResponseTimeTrend, 1e-9)
	assert.Equal(t, 0.5, f.HabitConsistency)
	assert.Equal(t, 0.5, f.GoalCompletion)
	assert.Equal(t, map[string]bool{
		FactorMissedGoals:        true,
		FactorInconsistentHabits: true,
		FactorNegativeSentiment:  true,
		FactorIgnoredOutreach:    true,
	}, f.Missing)
}

func TestExtractFeatures_ObservedSignals(t *testing.T) {
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	window := activity.Lookback(now, 4*24*time.Hour)
	events := activity.Events{
		{Kind: activity.KindGoalMissed, OccurredAt: now.Add(-30 * time.Hour)},
		{Kind: activity.KindHabitCompleted, OccurredAt: now.Add(-20 * time.Hour)},
		{Kind: activity.KindSentiment, OccurredAt: now.Add(-10 * time.Hour), Value: -0.4},
	}
	profile := behavior.Compute("u1", window, events, behavior.DefaultWeights())

	f := ExtractFeatures(profile, events, window, 0.2, true)

	assert.Nil(t, f.Missing)
	assert.Equal(t, 0.0, f.GoalCompletion)
	assert.Equal(t, 0.2, f.InterventionResponseRate)
}

func TestHeuristicScorer_MissingSignalsAddNoRisk(t *testing.T) {
	missing := map[string]bool{
		FactorMissedGoals:        true,
		FactorInconsistentHabits: true,
		FactorNegativeSentiment:  true,
		FactorIgnoredOutreach:    true,
	}
	// neutral placeholders for the missing signals
	f := Features{
		Engagement:               0.4,
		GoalCompletion:           0.5,
		HabitConsistency:         0.5,
		InterventionResponseRate: DefaultInterventionResponseRate,
		Missing:                  missing,
	}

	score := HeuristicScorer{}.Score(f)
	assert.InDelta(t, 0.25*0.6, score, 1e-9)
	assert.Equal(t, BandNone, BandFor(score))

	contrib := HeuristicScorer{}.Contributions(f)
	for name := range missing {
		assert.Zero(t, contrib[name], name)
	}

	// Engagement and latency alone top out at the bottom of the medium band.
	worst := Features{ResponseTimeTrend: 1, Missing: missing}
	assert.InDelta(t, MediumThreshold, HeuristicScorer{}.Score(worst), 1e-9)
}

func TestPredictor_NoHistoryUserNotEscalatedOnDefaults(t *testing.T) {
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	window := activity.Lookback(now, 7*24*time.Hour)
	profile := &behavior.Profile{
		UserID:    "u1",
		Overall:   0.45,
		SubScores: map[string]float64{},
		Metrics:   map[string]float64{behavior.MetricGoalCompletionRate: 0.5},
	}

	a, c := NewPredictor(nil, stubRates{}, 0).Predict(context.Background(), profile, activity.Events{}, window, now)

	require.NotNil(t, a)
	assert.InDelta(t, 0.25*0.55, a.Score, 1e-9)
	assert.Equal(t, BandNone, a.Band)
	assert.Nil(t, c)
}
