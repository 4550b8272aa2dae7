package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/stretchr/testify/assert"
)

type countingCycler struct {
	calls atomic.Int32
	err   error
}

func (c *countingCycler) RunCycle(ctx context.Context) (*Summary, error) {
	c.calls.Add(1)
	return &Summary{}, c.err
}

type countingPoller struct {
	dispatched atomic.Int32
	tracked    atomic.Int32
}

func (p *countingPoller) dispatcher() DuePoller { return duePollerFunc(p.dispatch) }

func (p *countingPoller) dispatch(ctx context.Context) (dispatch.Summary, error) {
	p.dispatched.Add(1)
	return dispatch.Summary{}, nil
}

type duePollerFunc func(ctx context.Context) (dispatch.Summary, error)

func (f duePollerFunc) ProcessDue(ctx context.Context) (dispatch.Summary, error) { return f(ctx) }

type outcomeRecorderFunc func(ctx context.Context) (int, error)

func (f outcomeRecorderFunc) ProcessDue(ctx context.Context) (int, error) { return f(ctx) }

func TestRunner_RunsLoopsUntilCancelled(t *testing.T) {
	cycler := &countingCycler{}
	poller := &countingPoller{}
	tracker := outcomeRecorderFunc(func(ctx context.Context) (int, error) {
		poller.tracked.Add(1)
		return 0, errors.New("redis unavailable")
	})

	runner := NewRunner(cycler, poller.dispatcher(), tracker, 20*time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}

	assert.GreaterOrEqual(t, cycler.calls.Load(), int32(2))
	assert.GreaterOrEqual(t, poller.dispatched.Load(), int32(3))
	// Tracking errors do not stop the loop.
	assert.GreaterOrEqual(t, poller.tracked.Load(), int32(3))
}

func TestRunner_CycleErrorsDoNotStopRunner(t *testing.T) {
	cycler := &countingCycler{err: errors.New("catalog unreadable")}
	runner := NewRunner(cycler, nil, nil, 5*time.Millisecond, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	err := runner.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.GreaterOrEqual(t, cycler.calls.Load(), int32(2))
}
