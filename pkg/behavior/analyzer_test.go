package behavior

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryHistory struct {
	profiles  []*Profile
	appendErr error
}

func (m *memoryHistory) Recent(ctx context.Context, userID string, n int) ([]*Profile, error) {
	if len(m.profiles) < n {
		n = len(m.profiles)
	}
	return m.profiles[:n], nil
}

func (m *memoryHistory) Append(ctx context.Context, p *Profile) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.profiles = append([]*Profile{p}, m.profiles...)
	return nil
}

type staticWeights struct {
	w   Weights
	err error
}

func (s staticWeights) Weights(ctx context.Context) (Weights, error) { return s.w, s.err }

var analysisEnd = time.Date(2025, 5, 12, 12, 0, 0, 0, time.UTC)

func weekWindow() activity.Window {
	return activity.Lookback(analysisEnd, DefaultLookback)
}

// healthyWeek returns 3 messages/day, quick replies, 15 minute sessions and
// perfect habits.
func healthyWeek(userID string) activity.Events {
	var events activity.Events
	for d := 0; d < 7; d++ {
		day := analysisEnd.Add(-time.Duration(d)*24*time.Hour - time.Hour)
		for i := 0; i < 3; i++ {
			events = append(events, activity.Event{
				UserID: userID, Kind: activity.KindMessage,
				OccurredAt: day.Add(-time.Duration(i) * time.Minute), Initiated: i == 0,
			})
		}
		events = append(events,
			activity.Event{UserID: userID, Kind: activity.KindResponse, OccurredAt: day, Value: 120},
			activity.Event{UserID: userID, Kind: activity.KindSession, OccurredAt: day, Value: 900},
			activity.Event{UserID: userID, Kind: activity.KindHabitCompleted, OccurredAt: day},
			activity.Event{UserID: userID, Kind: activity.KindContentInteraction, OccurredAt: day},
			activity.Event{UserID: userID, Kind: activity.KindContentInteraction, OccurredAt: day},
			activity.Event{UserID: userID, Kind: activity.KindContentInteraction, OccurredAt: day},
		)
	}
	events.Sort()
	return events
}

func TestCurve_At(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		expected float64
	}{
		{"below range clamps", -1, 0},
		{"optimal low edge", 2, 1},
		{"optimal interior", 3.5, 1},
		{"optimal high edge", 5, 1},
		{"interpolated", 0.75, 0.45},
		{"gentle burst decay", 8, 0.85},
		{"above range clamps", 100, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, frequencyCurve.At(tt.x), 1e-9)
		})
	}
}

func TestCompute_InsufficientData(t *testing.T) {
	profile := Compute("new-user", weekWindow(), activity.Events{}, DefaultWeights())

	assert.True(t, profile.InsufficientData)
	assert.Zero(t, profile.Overall)
	assert.Equal(t, 0.0, profile.Metrics[MetricEventCount])
}

func TestCompute_HealthyUser(t *testing.T) {
	profile := Compute("u1", weekWindow(), healthyWeek("u1"), DefaultWeights())

	require.False(t, profile.InsufficientData)
	assert.InDelta(t, 3.0, profile.Metrics[MetricMessagesPerDay], 1e-9)
	assert.Equal(t, 1.0, profile.SubScores[SubFrequency])
	assert.Equal(t, 1.0, profile.SubScores[SubLatency])
	assert.Equal(t, 1.0, profile.SubScores[SubDuration])
	assert.Equal(t, 1.0, profile.SubScores[SubHabit])
	assert.Equal(t, 1.0, profile.SubScores[SubContent])
	assert.InDelta(t, initiationCurve.At(1.0/3.0), profile.SubScores[SubInitiation], 1e-9)
	assert.Greater(t, profile.Overall, 0.9)
	assert.LessOrEqual(t, profile.Overall, 1.0)
}

func TestCompute_NeutralWithoutSupportingEvents(t *testing.T) {
	events := activity.Events{
		{UserID: "u1", Kind: activity.KindContentInteraction, OccurredAt: analysisEnd.Add(-time.Hour)},
	}

	profile := Compute("u1", weekWindow(), events, DefaultWeights())

	assert.Equal(t, neutralScore, profile.SubScores[SubHabit])
	assert.Equal(t, neutralScore, profile.SubScores[SubLatency])
	assert.Equal(t, neutralScore, profile.SubScores[SubDuration])
	assert.Equal(t, neutralScore, profile.SubScores[SubInitiation])
	assert.Equal(t, 0.0, profile.SubScores[SubFrequency])
}

func TestCompute_CustomWeights(t *testing.T) {
	onlyFrequency := Weights{SubFrequency: 2, SubLatency: 0, SubDuration: 0, SubHabit: 0, SubContent: 0, SubInitiation: 0}
	events := activity.Events{
		{UserID: "u1", Kind: activity.KindMessage, OccurredAt: analysisEnd.Add(-time.Hour)},
	}

	profile := Compute("u1", weekWindow(), events, onlyFrequency)

	assert.InDelta(t, frequencyCurve.At(1.0/7.0), profile.Overall, 1e-9)
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		past     []*Profile
		expected Trend
	}{
		{"no history", 0.2, nil, TrendStable},
		{"within band", 0.62, []*Profile{{Overall: 0.6}, {Overall: 0.6}, {Overall: 0.6}}, TrendStable},
		{"improving", 0.8, []*Profile{{Overall: 0.6}, {Overall: 0.6}}, TrendImproving},
		{"declining", 0.3, []*Profile{{Overall: 0.6}, {Overall: 0.5}, {Overall: 0.7}}, TrendDeclining},
		{"insufficient history ignored", 0.5, []*Profile{{InsufficientData: true}, {Overall: 0.5}}, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, _ := trendOf(tt.score, tt.past)
			assert.Equal(t, tt.expected, trend)
		})
	}
}

func TestAnalyzer_Analyze_AppendsHistory(t *testing.T) {
	history := &memoryHistory{profiles: []*Profile{{Overall: 0.2}, {Overall: 0.2}, {Overall: 0.2}}}
	analyzer := NewAnalyzer(history, nil)

	profile, err := analyzer.Analyze(context.Background(), "u1", weekWindow(), healthyWeek("u1"))
	require.NoError(t, err)

	assert.Equal(t, TrendImproving, profile.Trend)
	assert.Greater(t, profile.Metrics[MetricTrendDelta], trendBand)
	require.Len(t, history.profiles, 4)
	assert.Same(t, profile, history.profiles[0])
}

func TestAnalyzer_Analyze_InsufficientDataNotRecorded(t *testing.T) {
	history := &memoryHistory{}
	analyzer := NewAnalyzer(history, nil)

	profile, err := analyzer.Analyze(context.Background(), "new-user", weekWindow(), activity.Events{})
	require.NoError(t, err)

	assert.True(t, profile.InsufficientData)
	assert.Empty(t, history.profiles)
}

func TestAnalyzer_Analyze_DegradesOnDependencyErrors(t *testing.T) {
	history := &memoryHistory{appendErr: errors.New("redis down")}
	analyzer := NewAnalyzer(history, staticWeights{err: errors.New("redis down")})

	profile, err := analyzer.Analyze(context.Background(), "u1", weekWindow(), healthyWeek("u1"))
	require.NoError(t, err)

	expected := Compute("u1", weekWindow(), healthyWeek("u1"), DefaultWeights())
	assert.InDelta(t, expected.Overall, profile.Overall, 1e-9)
}

func TestWeights_Normalized(t *testing.T) {
	w := DefaultWeights()
	w[SubFrequency] = 0.5

	n := w.Normalized()
	total := 0.0
	for _, name := range SubScoreNames {
		total += n[name]
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.NoError(t, n.Validate())

	delete(w, SubHabit)
	assert.Error(t, w.Validate())
}
