package activity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]Events
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]Events)}
}

// Add appends events.
func (s *MemoryStore) Add(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.events[e.UserID] = append(s.events[e.UserID], e)
	}
}

// QueryActivity implements Store.
func (s *MemoryStore) QueryActivity(ctx context.Context, userID string, window Window) (Events, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.events[userID].Within(window)
	if out == nil {
		out = Events{}
	}
	out.Sort()
	return out, nil
}

// ListUsers implements UserSource.
func (s *MemoryStore) ListUsers(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []string
	for id, events := range s.events {
		for _, e := range events {
			if !e.OccurredAt.Before(since) {
				users = append(users, id)
				break
			}
		}
	}
	sort.Strings(users)
	return users, nil
}
