package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
)

// DeliverCall tracks parameters for Deliver calls
type DeliverCall struct {
	UserID      string
	Message     string
	ChannelHint string
}

// Channel is a mock implementation of dispatch.Channel for testing
type Channel struct {
	// DeliverFunc is called when Deliver is invoked
	DeliverFunc func(ctx context.Context, userID, message, channelHint string) (dispatch.Receipt, error)

	// FailTimes makes the first n calls fail with Error
	FailTimes int
	Error     error
	SentAt    time.Time

	mu    sync.Mutex
	Calls []DeliverCall
}

// Deliver returns a receipt or the configured failure
func (m *Channel) Deliver(ctx context.Context, userID, message, channelHint string) (dispatch.Receipt, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, DeliverCall{UserID: userID, Message: message, ChannelHint: channelHint})
	n := len(m.Calls)
	m.mu.Unlock()

	if m.DeliverFunc != nil {
		return m.DeliverFunc(ctx, userID, message, channelHint)
	}
	if m.Error != nil && (m.FailTimes == 0 || n <= m.FailTimes) {
		return dispatch.Receipt{}, m.Error
	}

	channel := channelHint
	if channel == "" {
		channel = "push"
	}
	return dispatch.Receipt{
		ID:      fmt.Sprintf("receipt-%d", n),
		Channel: channel,
		SentAt:  m.SentAt,
	}, nil
}

// CallCount returns how many times Deliver was invoked
func (m *Channel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
