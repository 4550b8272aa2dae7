package timing

import (
	"context"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/sirupsen/logrus"
)

// Slot sources.
const (
	SourceHistoricalPeak = "historical_peak"
	SourceTypeOptimum    = "type_optimum"
	SourceWeekdayPattern = "weekday_pattern"
	SourceImmediate      = "immediate"
	SourceDefault        = "default"
)

const (
	// DefaultHour is the fallback delivery hour when there is no history.
	DefaultHour = 9

	immediateDelay = 5 * time.Minute
	rateWeight     = 0.6
	activityWeight = 0.4
	weekdayBoost   = 1.1
)

// CategoryHours are the best local hours per category, used when a trigger
// carries no best-hours hint.
var CategoryHours = map[intervention.Category][]int{
	intervention.CategoryCheckIn:         {9},
	intervention.CategoryReEngagement:    {18},
	intervention.CategoryCelebration:     {20},
	intervention.CategoryEngagementBoost: {12},
}

// proximity half-lives by urgency: a slot this far away scores half.
var halfLife = map[intervention.Urgency]time.Duration{
	intervention.UrgencyHigh:   time.Hour,
	intervention.UrgencyMedium: 12 * time.Hour,
	intervention.UrgencyLow:    48 * time.Hour,
}

// Slot is one scored timing option.
type Slot struct {
	At     time.Time
	Source string
	Score  float64
}

// Optimizer proposes delivery times. It never finalizes them.
type Optimizer struct {
	patterns PatternStore
}

// NewOptimizer creates an optimizer. patterns may be nil.
func NewOptimizer(patterns PatternStore) *Optimizer {
	return &Optimizer{patterns: patterns}
}

// Propose picks the best-scoring slot for the candidate in the user's
// location.
func (o *Optimizer) Propose(
	ctx context.Context,
	c *intervention.Candidate,
	events activity.Events,
	now time.Time,
	loc *time.Location,
) intervention.Proposal {
	if loc == nil {
		loc = time.UTC
	}

	pattern := o.loadPattern(ctx, c.UserID)
	hist := newHistogram(events, loc)

	if hist.total == 0 && pattern.TotalSent() == 0 {
		at := nextAt(now, DefaultHour, loc)
		if c.Urgency == intervention.UrgencyHigh {
			at = now.Add(immediateDelay)
		}
		return intervention.Proposal{Candidate: c, ProposedAt: at, Weight: 0.5, Source: SourceDefault}
	}

	options := slots(c, hist, now, loc)
	best := options[0]
	for _, s := range options {
		s.Score = score(s, c.Urgency, pattern, hist, now, loc)
		if s.Score > best.Score || (s.Score == best.Score && s.At.Before(best.At)) {
			best = s
		}
	}

	logrus.Debugf("timing for user %s trigger %s: %s at %s (score %.3f)",
		c.UserID, c.TriggerType, best.Source, best.At.Format(time.RFC3339), best.Score)

	weight := best.Score
	if weight > 1 {
		weight = 1
	}
	return intervention.Proposal{Candidate: c, ProposedAt: best.At, Weight: weight, Source: best.Source}
}

func (o *Optimizer) loadPattern(ctx context.Context, userID string) *ResponsePattern {
	if o.patterns == nil {
		return &ResponsePattern{}
	}
	p, err := o.patterns.Pattern(ctx, userID)
	if err != nil || p == nil {
		if err != nil {
			logrus.Warnf("failed to load response pattern for user %s: %v", userID, err)
		}
		return &ResponsePattern{}
	}
	return p
}

// slots generates two to four timing options from distinct sources.
func slots(c *intervention.Candidate, hist histogram, now time.Time, loc *time.Location) []Slot {
	var out []Slot

	if hist.total > 0 {
		out = append(out, Slot{At: nextAt(now, hist.peakHour(), loc), Source: SourceHistoricalPeak})
	}

	hours := c.Context.BestHours
	if len(hours) == 0 {
		hours = CategoryHours[c.Category]
	}
	if len(hours) == 0 {
		hours = []int{DefaultHour}
	}
	typeAt := nextAt(now, hours[0], loc)
	for _, h := range hours[1:] {
		if at := nextAt(now, h, loc); at.Before(typeAt) {
			typeAt = at
		}
	}
	out = append(out, Slot{At: typeAt, Source: SourceTypeOptimum})

	if hist.total > 0 {
		day := hist.peakWeekday()
		at := nextAt(now, hist.peakHour(), loc)
		for at.In(loc).Weekday() != day {
			at = at.AddDate(0, 0, 1)
		}
		out = append(out, Slot{At: at, Source: SourceWeekdayPattern})
	}

	if c.Urgency == intervention.UrgencyHigh || c.Category == intervention.CategoryHumanEscalation {
		out = append(out, Slot{At: now.Add(immediateDelay), Source: SourceImmediate})
	}

	if len(out) == 1 {
		out = append(out, Slot{At: nextAt(now, DefaultHour, loc), Source: SourceDefault})
	}
	return out
}

func score(s Slot, urgency intervention.Urgency, pattern *ResponsePattern, hist histogram, now time.Time, loc *time.Location) float64 {
	local := s.At.In(loc)
	hour := local.Hour()

	base := rateWeight*pattern.Rate(hour) + activityWeight*hist.hourShare(hour)

	hl, ok := halfLife[urgency]
	if !ok {
		hl = halfLife[intervention.UrgencyMedium]
	}
	delay := s.At.Sub(now)
	if delay < 0 {
		delay = 0
	}
	proximity := 1 / (1 + float64(delay)/float64(hl))

	result := base * proximity
	if hist.total > 0 && hist.activeWeekday(local.Weekday()) {
		result *= weekdayBoost
	}
	return result
}

// nextAt returns the next time at hour:00 in loc strictly after now.
func nextAt(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// histogram is the user's activity distribution by local hour and weekday.
type histogram struct {
	hours    [24]int
	weekdays [7]int
	total    int
}

func newHistogram(events activity.Events, loc *time.Location) histogram {
	var h histogram
	for _, e := range events {
		local := e.OccurredAt.In(loc)
		h.hours[local.Hour()]++
		h.weekdays[local.Weekday()]++
		h.total++
	}
	return h
}

func (h histogram) peakHour() int {
	peak := 0
	for hour, n := range h.hours {
		if n > h.hours[peak] {
			peak = hour
		}
	}
	return peak
}

func (h histogram) peakWeekday() time.Weekday {
	peak := 0
	for day, n := range h.weekdays {
		if n > h.weekdays[peak] {
			peak = day
		}
	}
	return time.Weekday(peak)
}

// hourShare is the activity at hour relative to the peak hour.
func (h histogram) hourShare(hour int) float64 {
	peak := h.hours[h.peakHour()]
	if peak == 0 {
		return 0
	}
	return float64(h.hours[hour]) / float64(peak)
}

// activeWeekday reports whether the weekday sees at least average activity.
func (h histogram) activeWeekday(day time.Weekday) bool {
	if h.total == 0 {
		return false
	}
	return float64(h.weekdays[day])*7 >= float64(h.total)
}
