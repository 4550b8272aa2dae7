package scheduler

import (
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// Default constraint values.
const (
	DefaultMinGap           = 4 * time.Hour
	DefaultHighMaxDelay     = 30 * time.Minute
	DefaultLowMinDelay      = 2 * time.Hour
	DefaultMediumMinDelay   = 0
	DefaultMediumMaxDelay   = 24 * time.Hour
	DefaultMaxPerDay        = 3
	DefaultMaxShiftAttempts = 8
	DefaultRetention        = 30 * 24 * time.Hour
)

// QuietHours is a daily do-not-disturb window in minutes after local
// midnight. The window may wrap midnight. Start == End disables it.
type QuietHours struct {
	Start int
	End   int
}

// ParseQuietHours builds a window from "HH:MM" strings.
func ParseQuietHours(start, end string) (QuietHours, error) {
	s, err := intervention.ParseClock(start)
	if err != nil {
		return QuietHours{}, err
	}
	e, err := intervention.ParseClock(end)
	if err != nil {
		return QuietHours{}, err
	}
	return QuietHours{Start: s, End: e}, nil
}

// Enabled reports whether the window is non-empty.
func (q QuietHours) Enabled() bool {
	return q.Start != q.End
}

// Contains reports whether t falls inside the window in loc.
func (q QuietHours) Contains(t time.Time, loc *time.Location) bool {
	if !q.Enabled() {
		return false
	}
	local := t.In(loc)
	m := local.Hour()*60 + local.Minute()
	if q.Start < q.End {
		return m >= q.Start && m < q.End
	}
	return m >= q.Start || m < q.End
}

// Clamp shifts t to the end of the window when it falls inside it.
func (q QuietHours) Clamp(t time.Time, loc *time.Location) time.Time {
	if !q.Contains(t, loc) {
		return t
	}
	local := t.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), q.End/60, q.End%60, 0, 0, loc)
	if !end.After(t) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// Constraints are the global scheduling bounds.
type Constraints struct {
	QuietHours       QuietHours
	Location         *time.Location
	MinGap           time.Duration
	HighMaxDelay     time.Duration
	LowMinDelay      time.Duration
	MediumMinDelay   time.Duration
	MediumMaxDelay   time.Duration
	MaxPerDay        int
	MaxShiftAttempts int
	Retention        time.Duration
}

// DefaultConstraints returns the default bounds with quiet hours 22:00-07:00
// UTC.
func DefaultConstraints() Constraints {
	return Constraints{
		QuietHours:       QuietHours{Start: 22 * 60, End: 7 * 60},
		Location:         time.UTC,
		MinGap:           DefaultMinGap,
		HighMaxDelay:     DefaultHighMaxDelay,
		LowMinDelay:      DefaultLowMinDelay,
		MediumMinDelay:   DefaultMediumMinDelay,
		MediumMaxDelay:   DefaultMediumMaxDelay,
		MaxPerDay:        DefaultMaxPerDay,
		MaxShiftAttempts: DefaultMaxShiftAttempts,
		Retention:        DefaultRetention,
	}
}

// Validate checks ranges and cross-field rules.
func (c Constraints) Validate() error {
	if c.MinGap < 0 {
		return fmt.Errorf("min gap must be non-negative")
	}
	if c.HighMaxDelay <= 0 {
		return fmt.Errorf("high urgency max delay must be positive")
	}
	if c.MediumMaxDelay > 0 && c.MediumMaxDelay < c.MediumMinDelay {
		return fmt.Errorf("medium max delay %v is below min delay %v", c.MediumMaxDelay, c.MediumMinDelay)
	}
	if c.MaxShiftAttempts < 1 {
		return fmt.Errorf("max shift attempts must be at least 1")
	}
	if c.QuietHours.Start < 0 || c.QuietHours.Start >= 24*60 || c.QuietHours.End < 0 || c.QuietHours.End >= 24*60 {
		return fmt.Errorf("quiet hours out of range")
	}
	return nil
}

// ForUser applies a user's preferences on top of the global bounds.
func (c Constraints) ForUser(prefs *intervention.Preferences) Constraints {
	out := c
	if out.Location == nil {
		out.Location = time.UTC
	}
	if prefs == nil {
		return out
	}
	out.Location = prefs.Location(out.Location)
	if prefs.QuietStart != "" {
		if q, err := ParseQuietHours(prefs.QuietStart, prefs.QuietEnd); err == nil {
			out.QuietHours = q
		}
	}
	return out
}

// bounds returns the allowed delivery interval for the candidate. A zero hi
// means unbounded.
func (c Constraints) bounds(cand *intervention.Candidate, now time.Time) (lo, hi time.Time) {
	lo = now
	switch cand.Urgency {
	case intervention.UrgencyHigh:
		hi = now.Add(c.HighMaxDelay)
	case intervention.UrgencyLow:
		lo = now.Add(c.LowMinDelay)
	default:
		lo = now.Add(c.MediumMinDelay)
		if c.MediumMaxDelay > 0 {
			hi = now.Add(c.MediumMaxDelay)
		}
	}
	if cand.MaxDelay > 0 {
		capAt := now.Add(cand.MaxDelay)
		if hi.IsZero() || capAt.Before(hi) {
			hi = capAt
		}
	}
	return lo, hi
}
