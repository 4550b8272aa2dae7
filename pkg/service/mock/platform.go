package mock

import (
	"context"
	"sync"
)

// GrantCall tracks parameters for GrantEntitlement calls
type GrantCall struct {
	UserID   string
	ItemID   string
	Quantity int
}

// RewardGranter is a mock implementation of dispatch.RewardGranter for testing
type RewardGranter struct {
	Error error

	mu    sync.Mutex
	Calls []GrantCall
}

// GrantEntitlement records the grant
func (m *RewardGranter) GrantEntitlement(ctx context.Context, userID, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, GrantCall{UserID: userID, ItemID: itemID, Quantity: quantity})
	return m.Error
}

// StatUpdater is a mock implementation of dispatch.StatUpdater for testing
type StatUpdater struct {
	Error error

	mu     sync.Mutex
	Counts map[string]int
}

// IncrementStat counts increments per user and stat code
func (m *StatUpdater) IncrementStat(ctx context.Context, userID, statCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil {
		return m.Error
	}
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[userID+"/"+statCode]++
	return nil
}

// Count returns the increments recorded for a user and stat code
func (m *StatUpdater) Count(userID, statCode string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[userID+"/"+statCode]
}
