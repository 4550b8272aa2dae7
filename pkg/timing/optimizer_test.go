package timing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday afternoon.
var now = time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC)

type stubPatterns struct {
	pattern *ResponsePattern
	err     error
}

func (s stubPatterns) Pattern(ctx context.Context, userID string) (*ResponsePattern, error) {
	return s.pattern, s.err
}

func (s stubPatterns) RecordResponse(ctx context.Context, userID string, hour int, responded bool) error {
	return nil
}

func candidate(urgency intervention.Urgency, category intervention.Category) *intervention.Candidate {
	return &intervention.Candidate{UserID: "u1", TriggerType: "T", Urgency: urgency, Category: category}
}

// eveningUser is active at 19:00 on each of the last seven days.
func eveningUser() activity.Events {
	var events activity.Events
	for d := 1; d <= 7; d++ {
		day := now.AddDate(0, 0, -d)
		events = append(events, activity.Event{
			UserID: "u1", Kind: activity.KindSession,
			OccurredAt: time.Date(day.Year(), day.Month(), day.Day(), 19, 0, 0, 0, time.UTC),
		})
	}
	return events
}

func TestPropose_NoHistoryFallsBackToNineAM(t *testing.T) {
	opt := NewOptimizer(nil)

	p := opt.Propose(context.Background(), candidate(intervention.UrgencyMedium, intervention.CategoryCheckIn), nil, now, time.UTC)

	assert.Equal(t, SourceDefault, p.Source)
	assert.Equal(t, time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC), p.ProposedAt)
}

func TestPropose_NoHistoryUsesUserLocation(t *testing.T) {
	plus7 := time.FixedZone("UTC+7", 7*3600)
	opt := NewOptimizer(nil)

	p := opt.Propose(context.Background(), candidate(intervention.UrgencyLow, intervention.CategoryCheckIn), nil, now, plus7)

	// 15:00 UTC is 22:00 local; next local 09:00 is 02:00 UTC the next day.
	assert.True(t, p.ProposedAt.Equal(time.Date(2025, 6, 5, 2, 0, 0, 0, time.UTC)), "got %s", p.ProposedAt)
}

func TestPropose_NoHistoryHighUrgencyIsImmediate(t *testing.T) {
	p := NewOptimizer(nil).Propose(context.Background(), candidate(intervention.UrgencyHigh, intervention.CategoryHumanEscalation), nil, now, time.UTC)

	assert.Equal(t, now.Add(immediateDelay), p.ProposedAt)
}

func TestPropose_PrefersHistoricalPeak(t *testing.T) {
	p := NewOptimizer(nil).Propose(context.Background(), candidate(intervention.UrgencyMedium, intervention.CategoryCheckIn), eveningUser(), now, time.UTC)

	assert.Equal(t, SourceHistoricalPeak, p.Source)
	assert.Equal(t, time.Date(2025, 6, 4, 19, 0, 0, 0, time.UTC), p.ProposedAt)
	assert.Greater(t, p.Weight, 0.0)
	assert.LessOrEqual(t, p.Weight, 1.0)
}

func TestPropose_HighUrgencyPrefersImmediate(t *testing.T) {
	p := NewOptimizer(nil).Propose(context.Background(), candidate(intervention.UrgencyHigh, intervention.CategoryHumanEscalation), eveningUser(), now, time.UTC)

	assert.Equal(t, SourceImmediate, p.Source)
	assert.Equal(t, now.Add(immediateDelay), p.ProposedAt)
}

func TestPropose_PatternStoreErrorIsNotFatal(t *testing.T) {
	opt := NewOptimizer(stubPatterns{err: errors.New("redis down")})

	p := opt.Propose(context.Background(), candidate(intervention.UrgencyMedium, intervention.CategoryCheckIn), eveningUser(), now, time.UTC)

	assert.False(t, p.ProposedAt.IsZero())
	assert.False(t, p.ProposedAt.Before(now))
}

func TestSlots_Sources(t *testing.T) {
	hist := newHistogram(eveningUser(), time.UTC)

	medium := slots(candidate(intervention.UrgencyMedium, intervention.CategoryReEngagement), hist, now, time.UTC)
	require.Len(t, medium, 3)
	assert.Equal(t, SourceHistoricalPeak, medium[0].Source)
	assert.Equal(t, SourceTypeOptimum, medium[1].Source)
	assert.Equal(t, 18, medium[1].At.Hour())
	assert.Equal(t, SourceWeekdayPattern, medium[2].Source)
	assert.Equal(t, hist.peakWeekday(), medium[2].At.Weekday())

	high := slots(candidate(intervention.UrgencyHigh, intervention.CategoryHumanEscalation), hist, now, time.UTC)
	assert.Len(t, high, 4)

	empty := slots(candidate(intervention.UrgencyLow, intervention.CategoryCheckIn), histogram{}, now, time.UTC)
	assert.Len(t, empty, 2)
}

func TestSlots_BestHoursHint(t *testing.T) {
	c := candidate(intervention.UrgencyMedium, intervention.CategoryCheckIn)
	c.Context.BestHours = []int{7, 20}

	out := slots(c, histogram{}, now, time.UTC)

	assert.Equal(t, time.Date(2025, 6, 4, 20, 0, 0, 0, time.UTC), out[0].At)
}

func TestScore_ResponseRateRaisesScore(t *testing.T) {
	hist := newHistogram(eveningUser(), time.UTC)
	slot := Slot{At: time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC)}

	ignored := &ResponsePattern{}
	answered := &ResponsePattern{}
	for i := 0; i < 10; i++ {
		ignored.Record(9, false)
		answered.Record(9, true)
	}

	low := score(slot, intervention.UrgencyMedium, ignored, hist, now, time.UTC)
	high := score(slot, intervention.UrgencyMedium, answered, hist, now, time.UTC)
	assert.Greater(t, high, low)
}

func TestResponsePattern(t *testing.T) {
	var p ResponsePattern
	assert.Equal(t, 0.5, p.Rate(10))

	p.Record(10, true)
	p.Record(10, false)
	p.Record(25, true)

	assert.Equal(t, 2, p.TotalSent())
	assert.Equal(t, 0.5, p.Rate(10))
	assert.Equal(t, 1, p.Responded[10])
}

func TestNextAt(t *testing.T) {
	assert.Equal(t, time.Date(2025, 6, 4, 16, 0, 0, 0, time.UTC), nextAt(now, 16, time.UTC))
	assert.Equal(t, time.Date(2025, 6, 5, 15, 0, 0, 0, time.UTC), nextAt(now, 15, time.UTC))
	assert.Equal(t, time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC), nextAt(now, 9, time.UTC))
}
