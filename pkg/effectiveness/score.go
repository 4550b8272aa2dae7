// Package effectiveness scores delivered interventions after an observation
// window and feeds the result back into scoring weights and timing patterns.
package effectiveness

import (
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// Effectiveness blend.
const (
	ResponseWeight = 0.4
	LatencyWeight  = 0.3
	DeltaWeight    = 0.3
)

// firstResponse finds the first user message or reply after delivery.
func firstResponse(events activity.Events, deliveredAt time.Time) (time.Duration, bool) {
	var (
		first time.Time
		found bool
	)
	for _, e := range events.OfKind(activity.KindMessage, activity.KindResponse) {
		if e.OccurredAt.Before(deliveredAt) {
			continue
		}
		if !found || e.OccurredAt.Before(first) {
			first = e.OccurredAt
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return first.Sub(deliveredAt), true
}

// latencyScore is 1 for an immediate response, falling linearly to 0 at the
// end of the observation window.
func latencyScore(latency, window time.Duration, responded bool) float64 {
	if !responded || window <= 0 {
		return 0
	}
	return clamp01(1 - float64(latency)/float64(window))
}

// deltaScore maps an engagement change in [-1,1] to [0,1] with 0.5 neutral.
func deltaScore(delta float64) float64 {
	return clamp01(0.5 + delta)
}

// Score is the effectiveness in [0,1].
func Score(responded bool, latency, window time.Duration, delta float64) float64 {
	resp := 0.0
	if responded {
		resp = 1
	}
	return clamp01(ResponseWeight*resp +
		LatencyWeight*latencyScore(latency, window, responded) +
		DeltaWeight*deltaScore(delta))
}

// Evaluate builds the outcome of a delivered intervention from the activity
// observed after it. after is the profile computed over the observation
// window.
func Evaluate(iv *intervention.Scheduled, events activity.Events, after *behavior.Profile, window time.Duration, now time.Time) *intervention.Outcome {
	latency, responded := firstResponse(events, iv.DeliveredAt)

	outcome := &intervention.Outcome{
		InterventionID:   iv.ID,
		UserID:           iv.UserID,
		TriggerType:      iv.TriggerType,
		Category:         iv.Category,
		DeliveredAt:      iv.DeliveredAt,
		ResponseReceived: responded,
		ResponseLatency:  latency,
		RecordedAt:       now,
	}

	// No activity at all after outreach counts as engagement dropping to zero.
	afterOverall := 0.0
	if after != nil && !after.InsufficientData {
		afterOverall = after.Overall
		outcome.SubScoreDeltas = make(map[string]float64, len(after.SubScores))
		for name, v := range after.SubScores {
			if before, ok := iv.Context.ProfileScores[name]; ok {
				outcome.SubScoreDeltas[name] = v - before
			}
		}
	}
	outcome.EngagementDelta = afterOverall - iv.Context.ProfileScore

	outcome.Effectiveness = Score(responded, latency, window, outcome.EngagementDelta)
	return outcome
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
