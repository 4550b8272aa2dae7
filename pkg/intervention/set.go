package intervention

import (
	"fmt"
	"sort"
	"time"
)

// UserSet is the complete per-user intervention state. It is read and written
// as one unit inside a per-user store transaction.
type UserSet struct {
	UserID        string               `json:"userId"`
	Interventions []*Scheduled         `json:"interventions"`
	LastFired     map[string]time.Time `json:"lastFired"`
}

// NewUserSet returns an empty set for a user.
func NewUserSet(userID string) *UserSet {
	return &UserSet{
		UserID:        userID,
		Interventions: []*Scheduled{},
		LastFired:     make(map[string]time.Time),
	}
}

// Pending returns pending interventions ordered by delivery time.
func (s *UserSet) Pending() []*Scheduled {
	var pending []*Scheduled
	for _, iv := range s.Interventions {
		if iv.Status == StatusPending {
			pending = append(pending, iv)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].DeliverAt.Before(pending[j].DeliverAt)
	})
	return pending
}

// PendingOfType returns the pending intervention for a trigger type, if any.
func (s *UserSet) PendingOfType(triggerType string) *Scheduled {
	for _, iv := range s.Interventions {
		if iv.Status == StatusPending && iv.TriggerType == triggerType {
			return iv
		}
	}
	return nil
}

// Get returns the intervention with the given id.
func (s *UserSet) Get(id string) *Scheduled {
	for _, iv := range s.Interventions {
		if iv.ID == id {
			return iv
		}
	}
	return nil
}

// Occupied returns the delivery timestamps of pending and delivered
// interventions. These are the anchors for the minimum gap.
func (s *UserSet) Occupied() []*Scheduled {
	var occupied []*Scheduled
	for _, iv := range s.Interventions {
		switch iv.Status {
		case StatusPending, StatusDelivered, StatusOutcomeRecorded:
			occupied = append(occupied, iv)
		}
	}
	return occupied
}

// InCooldown reports whether the trigger type fired within cooldown of at.
func (s *UserSet) InCooldown(triggerType string, cooldown time.Duration, at time.Time) bool {
	last, ok := s.LastFired[triggerType]
	if !ok || last.IsZero() || cooldown <= 0 {
		return false
	}
	return absDuration(at.Sub(last)) < cooldown
}

// CountWithin counts pending and delivered interventions within window of at.
func (s *UserSet) CountWithin(at time.Time, window time.Duration) int {
	count := 0
	for _, iv := range s.Occupied() {
		if absDuration(iv.DeliverAt.Sub(at)) < window {
			count++
		}
	}
	return count
}

// Add appends a new intervention. Pending records also mark the trigger type
// as fired at their delivery time.
func (s *UserSet) Add(iv *Scheduled) {
	s.Interventions = append(s.Interventions, iv)
	if iv.Status == StatusPending {
		if s.LastFired == nil {
			s.LastFired = make(map[string]time.Time)
		}
		if iv.DeliverAt.After(s.LastFired[iv.TriggerType]) {
			s.LastFired[iv.TriggerType] = iv.DeliverAt
		}
	}
}

// Transition moves an intervention to a new status, enforcing the lifecycle.
func (s *UserSet) Transition(id string, to Status, now time.Time) (*Scheduled, error) {
	iv := s.Get(id)
	if iv == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !allowed(iv.Status, to) {
		return iv, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, iv.Status, to)
	}

	iv.Status = to
	iv.UpdatedAt = now
	if to == StatusDelivered {
		iv.DeliveredAt = now
	}

	// A cancelled or superseded intervention never fired, so it must not keep
	// its trigger type in cooldown.
	if to == StatusCancelled || to == StatusSuperseded {
		s.recomputeLastFired(iv.TriggerType)
	}
	return iv, nil
}

// Prune drops terminal interventions older than retention.
func (s *UserSet) Prune(now time.Time, retention time.Duration) {
	kept := s.Interventions[:0]
	for _, iv := range s.Interventions {
		if iv.Status.Terminal() && now.Sub(iv.UpdatedAt) > retention {
			continue
		}
		kept = append(kept, iv)
	}
	s.Interventions = kept
}

func (s *UserSet) recomputeLastFired(triggerType string) {
	var last time.Time
	for _, iv := range s.Interventions {
		if iv.TriggerType != triggerType {
			continue
		}
		switch iv.Status {
		case StatusPending, StatusDelivered, StatusOutcomeRecorded:
			if iv.DeliverAt.After(last) {
				last = iv.DeliverAt
			}
		}
	}
	if last.IsZero() {
		delete(s.LastFired, triggerType)
		return
	}
	s.LastFired[triggerType] = last
}

func allowed(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusDelivered || to == StatusCancelled || to == StatusSuperseded
	case StatusDelivered:
		return to == StatusOutcomeRecorded
	default:
		return false
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
