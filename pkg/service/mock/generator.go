package mock

import (
	"context"
	"sync"

	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
)

// Generator is a mock implementation of dispatch.Generator for testing
type Generator struct {
	// GenerateFunc allows tests to customize the behavior
	GenerateFunc func(ctx context.Context, req dispatch.GenerationRequest) (string, error)

	// Simple fields for common test scenarios
	Message string
	Error   error

	// Call tracking
	mu    sync.Mutex
	Calls []dispatch.GenerationRequest
}

// Generate returns the mocked message
func (m *Generator) Generate(ctx context.Context, req dispatch.GenerationRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if m.Error != nil {
		return "", m.Error
	}
	if m.Message == "" {
		return "Hey, we saved your spot. Want to pick up where you left off?", nil
	}
	return m.Message, nil
}

// CallCount returns how many times Generate was invoked
func (m *Generator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
