package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Cycler runs one evaluation cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (*Summary, error)
}

// DuePoller delivers due interventions.
type DuePoller interface {
	ProcessDue(ctx context.Context) (dispatch.Summary, error)
}

// OutcomeRecorder closes elapsed observation windows.
type OutcomeRecorder interface {
	ProcessDue(ctx context.Context) (int, error)
}

// Runner drives the evaluation cycle and the dispatch/observation loop on
// their own tickers. Each loop runs one iteration at a time; ticks that fire
// while an iteration is still running are dropped.
type Runner struct {
	cycler           Cycler
	dispatcher       DuePoller
	tracker          OutcomeRecorder
	cycleInterval    time.Duration
	dispatchInterval time.Duration
}

// NewRunner creates a runner. dispatcher and tracker may be nil.
func NewRunner(cycler Cycler, dispatcher DuePoller, tracker OutcomeRecorder, cycleInterval, dispatchInterval time.Duration) *Runner {
	if cycleInterval <= 0 {
		cycleInterval = time.Hour
	}
	if dispatchInterval <= 0 {
		dispatchInterval = time.Minute
	}
	return &Runner{
		cycler:           cycler,
		dispatcher:       dispatcher,
		tracker:          tracker,
		cycleInterval:    cycleInterval,
		dispatchInterval: dispatchInterval,
	}
}

// Run blocks until ctx is cancelled. The first cycle starts immediately.
func (r *Runner) Run(ctx context.Context) error {
	logrus.Infof("starting runner: cycle every %s, dispatch every %s", r.cycleInterval, r.dispatchInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop(gctx, r.cycleInterval, r.cycle)
	})
	if r.dispatcher != nil || r.tracker != nil {
		g.Go(func() error {
			return loop(gctx, r.dispatchInterval, r.dispatch)
		})
	}

	err := g.Wait()
	logrus.Info("runner stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loop(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	if _, err := r.cycler.RunCycle(ctx); err != nil && ctx.Err() == nil {
		logrus.Errorf("evaluation cycle failed: %v", err)
	}
}

func (r *Runner) dispatch(ctx context.Context) {
	if r.dispatcher != nil {
		if _, err := r.dispatcher.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			logrus.Errorf("dispatch failed: %v", err)
		}
	}
	if r.tracker != nil {
		if _, err := r.tracker.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			logrus.Errorf("outcome tracking failed: %v", err)
		}
	}
}
