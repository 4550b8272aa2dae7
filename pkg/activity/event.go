// Package activity provides the activity event store the engine reads
// behavioral telemetry from.
package activity

import (
	"context"
	"sort"
	"time"
)

// Kind identifies an activity event type.
type Kind string

const (
	// KindMessage is a message sent by the user. Initiated is true when the user
	// started the conversation.
	KindMessage Kind = "message"
	// KindResponse is a user reply to an outbound message. Value is the latency
	// in seconds.
	KindResponse Kind = "response"
	// KindSession is an app session. Value is the duration in seconds.
	KindSession            Kind = "session"
	KindHabitCompleted     Kind = "habit_completed"
	KindHabitMissed        Kind = "habit_missed"
	KindContentInteraction Kind = "content_interaction"
	KindGoalCompleted      Kind = "goal_completed"
	KindGoalMissed         Kind = "goal_missed"
	// KindSentiment carries a sentiment reading in [-1, 1] as Value.
	KindSentiment Kind = "sentiment"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMessage, KindResponse, KindSession, KindHabitCompleted, KindHabitMissed,
		KindContentInteraction, KindGoalCompleted, KindGoalMissed, KindSentiment:
		return true
	}
	return false
}

// Event is a single behavioral telemetry record.
type Event struct {
	UserID     string    `json:"userId"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurredAt"`
	Value      float64   `json:"value,omitempty"`
	Initiated  bool      `json:"initiated,omitempty"`
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Lookback returns the window of length d ending at end.
func Lookback(end time.Time, d time.Duration) Window {
	return Window{Start: end.Add(-d), End: end}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Days returns the window length in days, never less than one.
func (w Window) Days() float64 {
	days := w.Duration().Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

// Events is an ordered (oldest first) event slice.
type Events []Event

// Sort orders events by occurrence time.
func (es Events) Sort() {
	sort.SliceStable(es, func(i, j int) bool {
		return es[i].OccurredAt.Before(es[j].OccurredAt)
	})
}

// OfKind returns the events of the given kinds.
func (es Events) OfKind(kinds ...Kind) Events {
	var out Events
	for _, e := range es {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Within returns the events inside w.
func (es Events) Within(w Window) Events {
	var out Events
	for _, e := range es {
		if w.Contains(e.OccurredAt) {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event of kind, if any.
func (es Events) Last(kind Kind) (Event, bool) {
	var (
		last  Event
		found bool
	)
	for _, e := range es {
		if e.Kind != kind {
			continue
		}
		if !found || e.OccurredAt.After(last.OccurredAt) {
			last = e
			found = true
		}
	}
	return last, found
}

// Store is the read side of the activity event store.
type Store interface {
	// QueryActivity returns a user's events inside the window, oldest first.
	// Unknown users yield an empty result, not an error.
	QueryActivity(ctx context.Context, userID string, window Window) (Events, error)
}

// UserSource enumerates the users a cycle should evaluate.
type UserSource interface {
	// ListUsers returns users with any activity since the given time.
	ListUsers(ctx context.Context, since time.Time) ([]string, error)
}
