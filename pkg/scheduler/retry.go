package scheduler

import (
	"sort"
	"sync"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/sirupsen/logrus"
)

// DefaultMaxScheduleAttempts is how many cycles a candidate is re-offered
// after store failures before it is dropped.
const DefaultMaxScheduleAttempts = 3

type retryEntry struct {
	candidate *intervention.Candidate
	attempts  int
}

// RetryQueue buffers candidates whose scheduling transaction failed so the
// next cycle can offer them again.
type RetryQueue struct {
	mu          sync.Mutex
	maxAttempts int
	entries     map[string]map[string]*retryEntry
}

// NewRetryQueue creates a queue. maxAttempts below 1 uses the default.
func NewRetryQueue(maxAttempts int) *RetryQueue {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxScheduleAttempts
	}
	return &RetryQueue{
		maxAttempts: maxAttempts,
		entries:     make(map[string]map[string]*retryEntry),
	}
}

// Pending returns the buffered candidates of a user ordered by trigger type.
func (q *RetryQueue) Pending(userID string) []*intervention.Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()

	byType := q.entries[userID]
	out := make([]*intervention.Candidate, 0, len(byType))
	for _, e := range byType {
		out = append(out, e.candidate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerType < out[j].TriggerType })
	return out
}

// Offer records a failed attempt for each candidate. Candidates that reached
// the attempt limit are removed and returned.
func (q *RetryQueue) Offer(userID string, candidates []*intervention.Candidate) []*intervention.Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()

	byType := q.entries[userID]
	if byType == nil {
		byType = make(map[string]*retryEntry)
		q.entries[userID] = byType
	}

	var dropped []*intervention.Candidate
	for _, c := range candidates {
		e := byType[c.TriggerType]
		if e == nil {
			e = &retryEntry{}
			byType[c.TriggerType] = e
		}
		e.candidate = c
		e.attempts++

		if e.attempts >= q.maxAttempts {
			logrus.Warnf("dropping %s candidate for user %s after %d failed scheduling attempts",
				c.TriggerType, userID, e.attempts)
			delete(byType, c.TriggerType)
			dropped = append(dropped, c)
		}
	}
	if len(byType) == 0 {
		delete(q.entries, userID)
	}
	return dropped
}

// Clear forgets a user's buffered candidates after a successful transaction.
func (q *RetryQueue) Clear(userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, userID)
}

// Len returns the number of buffered candidates across users.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, byType := range q.entries {
		n += len(byType)
	}
	return n
}

// Merge combines fresh candidates with buffered ones. Fresh candidates win
// for the same trigger type.
func Merge(fresh, retried []*intervention.Candidate) []*intervention.Candidate {
	seen := make(map[string]bool, len(fresh))
	out := make([]*intervention.Candidate, 0, len(fresh)+len(retried))
	for _, c := range fresh {
		seen[c.TriggerType] = true
		out = append(out, c)
	}
	for _, c := range retried {
		if !seen[c.TriggerType] {
			out = append(out, c)
		}
	}
	return out
}
