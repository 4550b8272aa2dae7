package effectiveness_test

import (
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/effectiveness"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	window := 48 * time.Hour
	tests := []struct {
		name      string
		responded bool
		latency   time.Duration
		delta     float64
		want      float64
	}{
		{"immediate response, flat engagement", true, 0, 0, 0.85},
		{"response at half window", true, 24 * time.Hour, 0, 0.7},
		{"no response, engagement collapsed", false, 0, -0.5, 0},
		{"no response, engagement up", false, 0, 0.5, 0.3},
		{"delta beyond range is clamped", true, 0, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, effectiveness.Score(tt.responded, tt.latency, window, tt.delta), 1e-9)
		})
	}
}

func TestEvaluate(t *testing.T) {
	delivered := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	iv := &intervention.Scheduled{
		ID:          "iv-1",
		UserID:      "user-1",
		TriggerType: "inactivity",
		Category:    intervention.CategoryReEngagement,
		DeliveredAt: delivered,
		Context: intervention.Context{
			ProfileScore:  0.4,
			ProfileScores: map[string]float64{behavior.SubHabit: 0.3},
		},
	}
	window := activity.Window{Start: delivered, End: delivered.Add(48 * time.Hour)}

	t.Run("first reply after delivery", func(t *testing.T) {
		events := activity.Events{
			{UserID: "user-1", Kind: activity.KindSession, OccurredAt: delivered.Add(10 * time.Minute), Value: 600},
			{UserID: "user-1", Kind: activity.KindResponse, OccurredAt: delivered.Add(2 * time.Hour), Value: 7200},
			{UserID: "user-1", Kind: activity.KindMessage, OccurredAt: delivered.Add(5 * time.Hour)},
			{UserID: "user-1", Kind: activity.KindHabitCompleted, OccurredAt: delivered.Add(6 * time.Hour)},
		}
		after := behavior.Compute("user-1", window, events, behavior.DefaultWeights())

		out := effectiveness.Evaluate(iv, events, after, 48*time.Hour, delivered.Add(48*time.Hour))

		assert.True(t, out.ResponseReceived)
		assert.Equal(t, 2*time.Hour, out.ResponseLatency)
		assert.InDelta(t, after.Overall-0.4, out.EngagementDelta, 1e-9)
		assert.InDelta(t, 0.7, out.SubScoreDeltas[behavior.SubHabit], 1e-9)
		assert.Len(t, out.SubScoreDeltas, 1)
		assert.Equal(t, "iv-1", out.InterventionID)
		assert.Equal(t, intervention.CategoryReEngagement, out.Category)
	})

	t.Run("silence counts as zero engagement", func(t *testing.T) {
		after := behavior.Compute("user-1", window, nil, behavior.DefaultWeights())

		out := effectiveness.Evaluate(iv, nil, after, 48*time.Hour, delivered.Add(48*time.Hour))

		assert.False(t, out.ResponseReceived)
		assert.Zero(t, out.ResponseLatency)
		assert.InDelta(t, -0.4, out.EngagementDelta, 1e-9)
		assert.Empty(t, out.SubScoreDeltas)
		assert.InDelta(t, 0.3*0.1, out.Effectiveness, 1e-9)
	})
}

func TestAdjustWeights(t *testing.T) {
	base := behavior.DefaultWeights()

	t.Run("moves toward improved sub-scores", func(t *testing.T) {
		deltas := map[string]float64{behavior.SubHabit: 0.4, behavior.SubFrequency: -0.2}

		next := effectiveness.AdjustWeights(base, deltas, 1, 0.1)

		assert.Greater(t, next[behavior.SubHabit], base[behavior.SubHabit])
		assert.Less(t, next[behavior.SubFrequency], base[behavior.SubFrequency])
		assert.NoError(t, next.Validate())

		total := 0.0
		for _, name := range behavior.SubScoreNames {
			total += next[name]
		}
		assert.InDelta(t, 1, total, 1e-9)
	})

	t.Run("no improvement leaves weights alone", func(t *testing.T) {
		deltas := map[string]float64{behavior.SubHabit: -0.1}
		assert.Equal(t, base, effectiveness.AdjustWeights(base, deltas, 1, 0.1))
	})

	t.Run("ineffective outreach leaves weights alone", func(t *testing.T) {
		deltas := map[string]float64{behavior.SubHabit: 0.4}
		assert.Equal(t, base, effectiveness.AdjustWeights(base, deltas, 0, 0.1))
	})

	t.Run("repeated updates stay bounded", func(t *testing.T) {
		w := base
		deltas := map[string]float64{behavior.SubHabit: 1}
		for i := 0; i < 500; i++ {
			w = effectiveness.AdjustWeights(w, deltas, 1, 0.5)
		}
		for _, name := range behavior.SubScoreNames {
			assert.LessOrEqual(t, w[name], effectiveness.MaxWeight+1e-9, name)
			assert.GreaterOrEqual(t, w[name], effectiveness.MinWeight-1e-9, name)
		}
	})
}
