package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC)

func inactivityDefinition() *Definition {
	return &Definition{
		Type:     "INACTIVITY",
		Priority: intervention.PriorityMedium,
		Urgency:  intervention.UrgencyMedium,
		Cooldown: 24 * time.Hour,
		Category: intervention.CategoryReEngagement,
		Conditions: []Condition{
			{Name: "no_recent_messages", Kind: KindDurationSince, Event: string(activity.KindMessage), Op: OpGreaterThan, Value: 24},
		},
	}
}

func inactiveUserEvents() activity.Events {
	return activity.Events{
		{UserID: "u1", Kind: activity.KindHabitCompleted, OccurredAt: evalNow.Add(-50 * time.Hour)},
		{UserID: "u1", Kind: activity.KindMessage, OccurredAt: evalNow.Add(-25 * time.Hour)},
	}
}

func analyze(events activity.Events) (*behavior.Profile, activity.Window) {
	window := activity.Lookback(evalNow, behavior.DefaultLookback)
	return behavior.Compute("u1", window, events, behavior.DefaultWeights()), window
}

func newTestEvaluator(defs ...*Definition) *Evaluator {
	registry := NewRegistry()
	registry.Replace(defs)
	return NewEvaluator(registry, time.UTC)
}

func TestEvaluator_InactivityScenario(t *testing.T) {
	events := inactiveUserEvents()
	profile, window := analyze(events)
	evaluator := newTestEvaluator(inactivityDefinition())

	candidates := evaluator.Evaluate(context.Background(), profile, events, window, nil, evalNow)

	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "INACTIVITY", c.TriggerType)
	assert.Equal(t, intervention.PriorityMedium, c.Priority)
	assert.Equal(t, intervention.CategoryReEngagement, c.Category)
	assert.Equal(t, []string{"no_recent_messages"}, c.Context.FiredConditions)
	assert.InDelta(t, 25.0, c.Context.Metrics["no_recent_messages"], 1e-9)
	// 25h against a 24h threshold: margin 1/24.
	assert.InDelta(t, 0.5+0.5/24, c.Confidence, 1e-9)
	assert.Equal(t, profile.Overall, c.Context.ProfileScore)
}

func TestEvaluator_AllConditionsMustHold(t *testing.T) {
	def := inactivityDefinition()
	def.Conditions = append(def.Conditions, Condition{
		Name: "no_habits", Kind: KindDurationSince, Event: string(activity.KindHabitCompleted), Op: OpGreaterThan, Value: 72,
	})
	events := inactiveUserEvents()
	profile, window := analyze(events)

	candidates := newTestEvaluator(def).Evaluate(context.Background(), profile, events, window, nil, evalNow)

	assert.Empty(t, candidates)
}

func TestEvaluator_NewUserSuppression(t *testing.T) {
	profile, window := analyze(activity.Events{})
	evaluator := newTestEvaluator(inactivityDefinition())

	candidates := evaluator.Evaluate(context.Background(), profile, activity.Events{}, window, nil, evalNow)

	assert.True(t, profile.InsufficientData)
	assert.Empty(t, candidates)
}

func TestEvaluator_CooldownSkipsTrigger(t *testing.T) {
	events := inactiveUserEvents()
	profile, window := analyze(events)
	evaluator := newTestEvaluator(inactivityDefinition())

	tests := []struct {
		name      string
		lastFired time.Duration
		expected  int
	}{
		{"fired 2h ago", -2 * time.Hour, 0},
		{"fired 23h ago", -23 * time.Hour, 0},
		{"fired 25h ago", -25 * time.Hour, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := intervention.NewUserSet("u1")
			set.LastFired["INACTIVITY"] = evalNow.Add(tt.lastFired)

			candidates := evaluator.Evaluate(context.Background(), profile, events, window, set, evalNow)
			assert.Len(t, candidates, tt.expected)
		})
	}
}

func TestEvaluator_PendingSkipsTrigger(t *testing.T) {
	events := inactiveUserEvents()
	profile, window := analyze(events)
	evaluator := newTestEvaluator(inactivityDefinition())

	set := intervention.NewUserSet("u1")
	set.Interventions = append(set.Interventions, &intervention.Scheduled{
		ID: "p1", TriggerType: "INACTIVITY", Status: intervention.StatusPending, DeliverAt: evalNow.Add(72 * time.Hour),
	})

	candidates := evaluator.Evaluate(context.Background(), profile, events, window, set, evalNow)
	assert.Empty(t, candidates)
}

func TestEvaluator_OrderedByPriorityThenConfidence(t *testing.T) {
	lowScore := &Definition{
		Type: "LOW_ENGAGEMENT", Priority: intervention.PriorityHigh, Urgency: intervention.UrgencyHigh,
		Category: intervention.CategoryCheckIn,
		Conditions: []Condition{
			{Name: "score", Kind: KindThreshold, Metric: behavior.MetricOverall, Op: OpLessThan, Value: 0.9},
		},
	}
	barely := inactivityDefinition()
	strong := inactivityDefinition()
	strong.Type = "LONG_SILENCE"
	strong.Conditions[0].Value = 5

	events := inactiveUserEvents()
	profile, window := analyze(events)

	candidates := newTestEvaluator(barely, lowScore, strong).
		Evaluate(context.Background(), profile, events, window, nil, evalNow)

	require.Len(t, candidates, 3)
	assert.Equal(t, "LOW_ENGAGEMENT", candidates[0].TriggerType)
	assert.Equal(t, "LONG_SILENCE", candidates[1].TriggerType)
	assert.Equal(t, "INACTIVITY", candidates[2].TriggerType)
	assert.Greater(t, candidates[1].Confidence, candidates[2].Confidence)
}

func TestEvaluate_ConditionKinds(t *testing.T) {
	now := evalNow
	window := activity.Lookback(now, 7*24*time.Hour)
	var events activity.Events
	// habit completed on each of the last four days, including today
	for d := 0; d < 4; d++ {
		events = append(events, activity.Event{Kind: activity.KindHabitCompleted, OccurredAt: now.Add(-time.Duration(d)*24*time.Hour - time.Hour)})
	}
	profile := behavior.Compute("u1", window, events, behavior.DefaultWeights())
	in := Input{Profile: profile, Events: events, Window: window, Now: now, Location: time.UTC}

	tests := []struct {
		name     string
		cond     Condition
		matched  bool
		measured float64
	}{
		{
			name:     "threshold on raw metric",
			cond:     Condition{Name: "habits", Kind: KindThreshold, Metric: behavior.MetricHabitRate, Op: OpEqual, Value: 1},
			matched:  true,
			measured: 1,
		},
		{
			name:    "threshold on unknown metric never matches",
			cond:    Condition{Name: "x", Kind: KindThreshold, Metric: "unknown", Op: OpGreaterOrEqual, Value: 0},
			matched: false,
		},
		{
			name:     "duration since missing event reports window length",
			cond:     Condition{Name: "silence", Kind: KindDurationSince, Event: "message", Op: OpGreaterOrEqual, Value: 168},
			matched:  true,
			measured: 168,
		},
		{
			name:     "consecutive days with event",
			cond:     Condition{Name: "streak", Kind: KindConsecutiveCount, Event: "habit_completed", Op: OpGreaterOrEqual, Value: 4},
			matched:  true,
			measured: 4,
		},
		{
			name:     "consecutive days without event",
			cond:     Condition{Name: "no_goals", Kind: KindConsecutiveCount, Event: "goal_completed", Absent: true, Op: OpLessThan, Value: 3},
			matched:  false,
			measured: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(tt.cond, in)
			require.NoError(t, err)
			assert.Equal(t, tt.matched, res.Matched)
			if tt.measured != 0 {
				assert.InDelta(t, tt.measured, res.Measured, 1e-9)
			}
			if res.Matched {
				assert.GreaterOrEqual(t, res.Margin, 0.0)
				assert.LessOrEqual(t, res.Margin, 1.0)
			}
		})
	}
}

func TestConsecutiveDays_StreakSurvivesUnfinishedToday(t *testing.T) {
	now := time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC)
	window := activity.Lookback(now, 7*24*time.Hour)
	events := activity.Events{
		{Kind: activity.KindHabitCompleted, OccurredAt: time.Date(2025, 6, 3, 20, 0, 0, 0, time.UTC)},
		{Kind: activity.KindHabitCompleted, OccurredAt: time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)},
		{Kind: activity.KindHabitCompleted, OccurredAt: time.Date(2025, 5, 31, 20, 0, 0, 0, time.UTC)},
	}
	in := Input{Events: events, Window: window, Now: now, Location: time.UTC}

	assert.Equal(t, 2, consecutiveDays(in, activity.KindHabitCompleted, false))
	assert.Equal(t, 1, consecutiveDays(in, activity.KindHabitCompleted, true))
}

func TestOperator_Compare(t *testing.T) {
	tests := []struct {
		op       Operator
		measured float64
		expected bool
	}{
		{OpGreaterThan, 2, true},
		{OpGreaterThan, 1, false},
		{OpGreaterOrEqual, 1, true},
		{OpLessThan, 0.5, true},
		{OpLessOrEqual, 1, true},
		{OpLessOrEqual, 1.1, false},
		{OpEqual, 1, true},
		{Operator("between"), 1, false},
	}

	for _, tt := range tests {
		if got := tt.op.Compare(tt.measured, 1); got != tt.expected {
			t.Errorf("%s.Compare(%v, 1) = %v, expected %v", tt.op, tt.measured, got, tt.expected)
		}
	}
}
