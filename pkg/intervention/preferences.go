package intervention

import (
	"fmt"
	"time"
)

// Preferences are per-user delivery settings. Empty fields fall back to the
// engine-wide configuration.
type Preferences struct {
	UserID       string    `json:"userId"`
	QuietStart   string    `json:"quietStart,omitempty"`
	QuietEnd     string    `json:"quietEnd,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	ChannelHint  string    `json:"channelHint,omitempty"`
	Unsubscribed bool      `json:"unsubscribed"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks clock and timezone formats.
func (p *Preferences) Validate() error {
	if (p.QuietStart == "") != (p.QuietEnd == "") {
		return fmt.Errorf("quietStart and quietEnd must be set together")
	}
	if p.QuietStart != "" {
		if _, err := ParseClock(p.QuietStart); err != nil {
			return err
		}
		if _, err := ParseClock(p.QuietEnd); err != nil {
			return err
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
		}
	}
	return nil
}

// Location resolves the preferred timezone, or fallback.
func (p *Preferences) Location(fallback *time.Location) *time.Location {
	if p == nil || p.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
