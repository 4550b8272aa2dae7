// Package scheduler commits candidate interventions to a per-user schedule
// under quiet hours, minimum gap, urgency bounds and conflict resolution.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Rejection reasons.
const (
	RejectCooldown      = "cooldown"
	RejectPending       = "already_pending"
	RejectOutranked     = "outranked_by_pending"
	RejectConstraint    = "constraint_violation"
	RejectDailyCap      = "daily_cap"
	RejectInvalidInput  = "invalid_candidate"
	supersededInCycle   = "superseded_in_cycle"
	supersededByHigher  = "superseded_by_higher_priority"
	dailyCapWindowHours = 24
)

// Store holds per-user intervention sets.
type Store interface {
	// Update loads the user's set, applies fn and writes it back as one
	// serialized transaction. fn may run more than once on contention.
	Update(ctx context.Context, userID string, fn func(set *intervention.UserSet) error) error
	Load(ctx context.Context, userID string) (*intervention.UserSet, error)
}

// Rejection records a candidate that produced no schedule.
type Rejection struct {
	Candidate *intervention.Candidate
	Reason    string
	Err       error
}

// Result summarizes one scheduling transaction.
type Result struct {
	Scheduled  []*intervention.Scheduled
	Superseded []*intervention.Scheduled
	Rejected   []Rejection
}

// Scheduler commits proposals for one user at a time.
type Scheduler struct {
	store       Store
	constraints Constraints
	now         func() time.Time
	newID       func() string
}

// New creates a scheduler.
func New(store Store, constraints Constraints) *Scheduler {
	if constraints.Location == nil {
		constraints.Location = time.UTC
	}
	return &Scheduler{
		store:       store,
		constraints: constraints,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Constraints returns the global bounds.
func (s *Scheduler) Constraints() Constraints {
	return s.constraints
}

// Schedule resolves and persists the user's proposals in one transaction.
// Store failures are wrapped in intervention.ErrExternalDependency; nothing
// is committed in that case and the caller should retry next cycle.
func (s *Scheduler) Schedule(
	ctx context.Context,
	userID string,
	proposals []intervention.Proposal,
	prefs *intervention.Preferences,
) (*Result, error) {
	if len(proposals) == 0 {
		return &Result{}, nil
	}
	cons := s.constraints.ForUser(prefs)

	var result *Result
	err := s.store.Update(ctx, userID, func(set *intervention.UserSet) error {
		result = s.resolve(set, proposals, cons, prefs, s.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scheduling user %s: %v", intervention.ErrExternalDependency, userID, err)
	}

	for _, r := range result.Rejected {
		if errors.Is(r.Err, intervention.ErrConstraintViolation) {
			logrus.Warnf("discarding %s candidate for user %s: %v", r.Candidate.TriggerType, userID, r.Err)
			continue
		}
		logrus.Debugf("rejected %s candidate for user %s: %s", r.Candidate.TriggerType, userID, r.Reason)
	}
	for _, iv := range result.Scheduled {
		logrus.Infof("scheduled %s intervention %s for user %s at %s (urgency %s)",
			iv.TriggerType, iv.ID, userID, iv.DeliverAt.Format(time.RFC3339), iv.Urgency)
	}
	for _, iv := range result.Superseded {
		logrus.Infof("intervention %s (%s) for user %s superseded by %s", iv.ID, iv.TriggerType, userID, iv.SupersededBy)
	}

	return result, nil
}

type placement struct {
	proposal intervention.Proposal
	at       time.Time
	id       string
}

// resolve runs conflict resolution against the loaded set. It must be
// side-effect free outside set since the store may retry it.
func (s *Scheduler) resolve(
	set *intervention.UserSet,
	proposals []intervention.Proposal,
	cons Constraints,
	prefs *intervention.Preferences,
	now time.Time,
) *Result {
	result := &Result{}

	ordered := append([]intervention.Proposal(nil), proposals...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return outranks(ordered[i].Candidate, ordered[j].Candidate)
	})

	// Step 1 checks and steps 2-4 placement run against the stored state only;
	// candidates of this cycle meet each other in the collision pass below.
	var placed []placement
	for _, p := range ordered {
		c := p.Candidate
		if c == nil {
			continue
		}
		if reason := admissible(set, c, now); reason != "" {
			result.Rejected = append(result.Rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}

		at, err := place(p.ProposedAt, c, set, cons, now)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{Candidate: c, Reason: RejectConstraint, Err: err})
			continue
		}
		placed = append(placed, placement{proposal: p, at: at, id: s.newID()})
	}

	var kept []placement
	for _, pl := range placed {
		c := pl.proposal.Candidate

		if winner := collidesWith(pl.at, kept, cons.MinGap); winner != nil {
			rec := s.record(pl, cons, prefs, now)
			rec.Status = intervention.StatusSuperseded
			rec.SupersededBy = winner.id
			rec.CancelReason = supersededInCycle
			set.Add(rec)
			result.Superseded = append(result.Superseded, rec)
			continue
		}

		displaced := lowerPendingWithin(set, c.Priority, pl.at, cons.MinGap)
		if cons.MaxPerDay > 0 && dailyCount(set, displaced, pl.at) >= cons.MaxPerDay {
			result.Rejected = append(result.Rejected, Rejection{Candidate: c, Reason: RejectDailyCap})
			continue
		}

		for _, old := range displaced {
			if _, err := set.Transition(old.ID, intervention.StatusSuperseded, now); err != nil {
				continue
			}
			old.SupersededBy = pl.id
			old.CancelReason = supersededByHigher
			result.Superseded = append(result.Superseded, old)
		}

		rec := s.record(pl, cons, prefs, now)
		set.Add(rec)
		kept = append(kept, pl)
		result.Scheduled = append(result.Scheduled, rec)
	}

	if cons.Retention > 0 {
		set.Prune(now, cons.Retention)
	}
	return result
}

func (s *Scheduler) record(pl placement, cons Constraints, prefs *intervention.Preferences, now time.Time) *intervention.Scheduled {
	c := pl.proposal.Candidate
	rec := &intervention.Scheduled{
		ID:          pl.id,
		UserID:      c.UserID,
		TriggerType: c.TriggerType,
		Priority:    c.Priority,
		Urgency:     c.Urgency,
		Category:    c.Category,
		Confidence:  c.Confidence,
		DeliverAt:   pl.at,
		Status:      intervention.StatusPending,
		Cooldown:    c.Cooldown,
		Context:     c.Context,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prefs != nil {
		rec.ChannelHint = prefs.ChannelHint
	}
	return rec
}

// outranks orders candidates by priority tier, then urgency, then confidence.
// The tier comparison matches lowerPendingWithin.
func outranks(a, b *intervention.Candidate) bool {
	if a == nil || b == nil {
		return b == nil && a != nil
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Urgency != b.Urgency {
		return a.Urgency > b.Urgency
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.TriggerType < b.TriggerType
}

// admissible applies step 1 against the stored set.
func admissible(set *intervention.UserSet, c *intervention.Candidate, now time.Time) string {
	if c.Urgency < intervention.UrgencyLow || c.Urgency > intervention.UrgencyHigh ||
		c.Priority < intervention.PriorityLow || c.Priority > intervention.PriorityHigh {
		return RejectInvalidInput
	}
	if set.InCooldown(c.TriggerType, c.Cooldown, now) {
		return RejectCooldown
	}
	if set.PendingOfType(c.TriggerType) != nil {
		return RejectPending
	}
	for _, iv := range set.Pending() {
		if iv.Priority >= c.Priority {
			return RejectOutranked
		}
	}
	return ""
}

// place iterates quiet-hours, minimum-gap and urgency adjustments until one
// full pass leaves the timestamp unchanged.
func place(proposed time.Time, c *intervention.Candidate, set *intervention.UserSet, cons Constraints, now time.Time) (time.Time, error) {
	t := proposed
	if t.Before(now) {
		t = now
	}

	anchors := gapAnchors(set, c.Priority)
	lo, hi := cons.bounds(c, now)

	for attempt := 0; attempt < cons.MaxShiftAttempts; attempt++ {
		moved := false
		shift := func(to time.Time) {
			if !to.Equal(t) {
				t = to
				moved = true
			}
		}

		shift(cons.QuietHours.Clamp(t, cons.Location))

		for _, a := range anchors {
			if absDuration(t.Sub(a)) < cons.MinGap {
				shift(a.Add(cons.MinGap))
			}
		}

		if t.Before(lo) {
			shift(lo)
		}
		if !hi.IsZero() && t.After(hi) {
			shift(hi)
		}

		if !moved {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s for user %s could not be placed within %d shifts",
		intervention.ErrConstraintViolation, c.TriggerType, c.UserID, cons.MaxShiftAttempts)
}

// gapAnchors are delivery times the minimum gap is enforced against: every
// delivered intervention plus pending ones not outranked by priority.
func gapAnchors(set *intervention.UserSet, priority intervention.Priority) []time.Time {
	var anchors []time.Time
	for _, iv := range set.Occupied() {
		if iv.Status == intervention.StatusPending && iv.Priority < priority {
			continue
		}
		at := iv.DeliverAt
		if !iv.DeliveredAt.IsZero() {
			at = iv.DeliveredAt
		}
		anchors = append(anchors, at)
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Before(anchors[j]) })
	return anchors
}

func collidesWith(at time.Time, kept []placement, gap time.Duration) *placement {
	for i := range kept {
		if absDuration(at.Sub(kept[i].at)) < gap {
			return &kept[i]
		}
	}
	return nil
}

func lowerPendingWithin(set *intervention.UserSet, priority intervention.Priority, at time.Time, gap time.Duration) []*intervention.Scheduled {
	var out []*intervention.Scheduled
	for _, iv := range set.Pending() {
		if iv.Priority < priority && absDuration(iv.DeliverAt.Sub(at)) < gap {
			out = append(out, iv)
		}
	}
	return out
}

// dailyCount counts deliveries within 24h of at, ignoring those about to be
// displaced. Survivors of the current cycle are already in set.
func dailyCount(set *intervention.UserSet, displaced []*intervention.Scheduled, at time.Time) int {
	skip := make(map[string]bool, len(displaced))
	for _, d := range displaced {
		skip[d.ID] = true
	}

	window := dailyCapWindowHours * time.Hour
	count := 0
	for _, iv := range set.Occupied() {
		if !skip[iv.ID] && absDuration(iv.DeliverAt.Sub(at)) < window {
			count++
		}
	}
	return count
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Cancel moves one pending intervention to cancelled.
func (s *Scheduler) Cancel(ctx context.Context, userID, id, reason string) (*intervention.Scheduled, error) {
	var cancelled *intervention.Scheduled
	var transitionErr error
	err := s.store.Update(ctx, userID, func(set *intervention.UserSet) error {
		cancelled, transitionErr = nil, nil
		iv, err := set.Transition(id, intervention.StatusCancelled, s.now())
		if err != nil {
			transitionErr = err
			return nil
		}
		iv.CancelReason = reason
		cancelled = iv
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cancelling %s for user %s: %v", intervention.ErrExternalDependency, id, userID, err)
	}
	if transitionErr != nil {
		return nil, transitionErr
	}

	logrus.Infof("cancelled intervention %s for user %s: %s", id, userID, reason)
	return cancelled, nil
}

// CancelAll cancels every pending intervention of the user.
func (s *Scheduler) CancelAll(ctx context.Context, userID, reason string) ([]*intervention.Scheduled, error) {
	var cancelled []*intervention.Scheduled
	err := s.store.Update(ctx, userID, func(set *intervention.UserSet) error {
		cancelled = nil
		now := s.now()
		for _, iv := range set.Pending() {
			if _, err := set.Transition(iv.ID, intervention.StatusCancelled, now); err != nil {
				return err
			}
			iv.CancelReason = reason
			cancelled = append(cancelled, iv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cancelling pending for user %s: %v", intervention.ErrExternalDependency, userID, err)
	}

	if len(cancelled) > 0 {
		logrus.Infof("cancelled %d pending interventions for user %s: %s", len(cancelled), userID, reason)
	}
	return cancelled, nil
}
