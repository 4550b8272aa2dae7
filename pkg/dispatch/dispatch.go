// Package dispatch turns due pending interventions into delivered messages.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// GenerationRequest is what the language generation service gets to work
// with. It never carries raw activity.
type GenerationRequest struct {
	InterventionID string                `json:"interventionId"`
	UserID         string                `json:"userId"`
	TriggerType    string                `json:"triggerType"`
	Category       intervention.Category `json:"category"`
	Urgency        intervention.Urgency  `json:"urgency"`
	Context        intervention.Context  `json:"context"`
}

// Generator returns message text or fails.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Receipt acknowledges a delivery.
type Receipt struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	SentAt  time.Time `json:"sentAt"`
}

// Channel delivers a message to a user.
type Channel interface {
	Deliver(ctx context.Context, userID, message, channelHint string) (Receipt, error)
}

// RewardGranter grants an item to a user.
type RewardGranter interface {
	GrantEntitlement(ctx context.Context, userID, itemID string, quantity int) error
}

// StatUpdater increments a per-user statistic.
type StatUpdater interface {
	IncrementStat(ctx context.Context, userID, statCode string) error
}

// Store is the intervention state the dispatcher reads and transitions.
type Store interface {
	Load(ctx context.Context, userID string) (*intervention.UserSet, error)
	Update(ctx context.Context, userID string, fn func(set *intervention.UserSet) error) error
	// Due returns pending interventions whose delivery time is not after
	// before, oldest first.
	Due(ctx context.Context, before time.Time, limit int) ([]intervention.Ref, error)
	// Dequeue drops a reference that no longer points at a pending record.
	Dequeue(ctx context.Context, ref intervention.Ref) error
	// Claim takes an exclusive lease on a due reference for ttl. It reports
	// false when another dispatcher holds the lease.
	Claim(ctx context.Context, ref intervention.Ref, ttl time.Duration) (bool, error)
	// Release drops a lease taken by Claim.
	Release(ctx context.Context, ref intervention.Ref) error
}

// ErrCancelled reports an intervention that left pending before delivery.
var ErrCancelled = errors.New("intervention no longer pending")
