// Package pipeline runs the per-user evaluation cycle:
// Activity → Profile → {Triggers, Risk} → Timing → Scheduler
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/common"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/AccelByte/extend-proactive-intervention/pkg/metrics"
	"github.com/AccelByte/extend-proactive-intervention/pkg/risk"
	"github.com/AccelByte/extend-proactive-intervention/pkg/scheduler"
	"github.com/AccelByte/extend-proactive-intervention/pkg/timing"
	"github.com/AccelByte/extend-proactive-intervention/pkg/trigger"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Per-user results.
const (
	ResultScheduled    = "scheduled"
	ResultNoCandidates = "no_candidates"
	ResultInsufficient = "insufficient_data"
	ResultUnsubscribed = "unsubscribed"
	ResultDeferred     = "deferred"
)

// Defaults for Config.
const (
	DefaultWorkerCount   = 8
	DefaultQueryTimeout  = 10 * time.Second
	DefaultQueryAttempts = 3
)

// CatalogLoader returns a freshly compiled trigger catalog.
type CatalogLoader func() (*trigger.Catalog, error)

// FileCatalog loads the catalog from a YAML file on every call.
func FileCatalog(path string) CatalogLoader {
	return func() (*trigger.Catalog, error) {
		return trigger.LoadCatalog(path)
	}
}

// InterventionLoader reads a user's intervention set.
type InterventionLoader interface {
	Load(ctx context.Context, userID string) (*intervention.UserSet, error)
}

// PreferenceSource reads per-user delivery preferences. A nil result means
// defaults.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (*intervention.Preferences, error)
}

// ActivitySource is the activity store as seen by the cycle.
type ActivitySource interface {
	activity.Store
	activity.UserSource
}

// Config tunes the cycle.
type Config struct {
	WorkerCount   int
	Lookback      time.Duration
	QueryTimeout  time.Duration
	QueryAttempts int
	RetryInterval time.Duration
}

// Components are the engine stages a cycle drives.
type Components struct {
	Catalog       CatalogLoader
	Registry      *trigger.Registry
	Activity      ActivitySource
	Analyzer      *behavior.Analyzer
	Evaluator     *trigger.Evaluator
	Predictor     *risk.Predictor
	Optimizer     *timing.Optimizer
	Scheduler     *scheduler.Scheduler
	Interventions InterventionLoader
	Preferences   PreferenceSource
	Retry         *scheduler.RetryQueue
}

// Summary counts per-user results of one cycle.
type Summary struct {
	Users    int
	Results  map[string]int
	Duration time.Duration
}

// Manager orchestrates one evaluation cycle over every active user.
type Manager struct {
	c   Components
	cfg Config
	now func() time.Time
}

// NewManager creates a cycle manager. Zero config fields take defaults.
func NewManager(c Components, cfg Config) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = behavior.DefaultLookback
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.QueryAttempts <= 0 {
		cfg.QueryAttempts = DefaultQueryAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if c.Registry == nil {
		c.Registry = trigger.NewRegistry()
	}
	if c.Retry == nil {
		c.Retry = scheduler.NewRetryQueue(scheduler.DefaultMaxScheduleAttempts)
	}
	return &Manager{c: c, cfg: cfg, now: time.Now}
}

// RunCycle re-reads the trigger catalog and evaluates every user with
// activity inside the lookback window. Per-user failures are isolated; only
// an unreadable catalog or user listing aborts the cycle.
func (m *Manager) RunCycle(ctx context.Context) (*Summary, error) {
	start := m.now()
	cycleID := common.MakeTraceID("cycle")

	if err := m.reloadCatalog(); err != nil {
		metrics.CyclesTotal.WithLabelValues("aborted").Inc()
		return nil, err
	}

	users, err := m.c.Activity.ListUsers(ctx, start.Add(-m.cfg.Lookback))
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("%w: listing users: %v", intervention.ErrExternalDependency, err)
	}

	summary := &Summary{Users: len(users), Results: make(map[string]int)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.WorkerCount)
	for _, userID := range users {
		if gctx.Err() != nil {
			break
		}
		userID := userID
		g.Go(func() error {
			result, err := m.ProcessUser(gctx, userID, start)
			if err != nil {
				logrus.Warnf("user %s deferred to next cycle: %v", userID, err)
			}
			metrics.UsersEvaluated.WithLabelValues(result).Inc()

			mu.Lock()
			summary.Results[result]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = m.now().Sub(start)
	metrics.CycleDuration.Observe(summary.Duration.Seconds())
	if ctx.Err() != nil {
		metrics.CyclesTotal.WithLabelValues("cancelled").Inc()
		return summary, ctx.Err()
	}
	metrics.CyclesTotal.WithLabelValues("completed").Inc()

	logrus.Infof("cycle %s done in %s: %d users, %d scheduled, %d deferred, %d without candidates",
		cycleID, summary.Duration, summary.Users, summary.Results[ResultScheduled],
		summary.Results[ResultDeferred], summary.Results[ResultNoCandidates])
	return summary, nil
}

func (m *Manager) reloadCatalog() error {
	catalog, err := m.c.Catalog()
	if err != nil {
		return err
	}
	if err := ValidateCatalog(catalog); err != nil {
		logrus.Warn(err.Error())
	}
	m.c.Registry.Replace(catalog.Definitions)
	logrus.Debugf("loaded %d trigger definitions", len(catalog.Definitions))
	return nil
}

// ProcessUser runs one unit of work for a user. The returned error is set
// only for deferred users; their candidates are retried next cycle.
func (m *Manager) ProcessUser(ctx context.Context, userID string, now time.Time) (string, error) {
	scope := common.ChildScopeFromRemoteScope(ctx, "pipeline.ProcessUser")
	defer scope.Finish()
	scope.AddBaggage("user_id", userID)
	ctx = scope.Ctx

	prefs, err := m.preferences(ctx, userID)
	if err != nil {
		scope.TraceError(err)
		return ResultDeferred, err
	}
	if prefs != nil && prefs.Unsubscribed {
		cancelled, err := m.c.Scheduler.CancelAll(ctx, userID, intervention.ReasonUserUnsubscribed)
		if err != nil {
			scope.TraceError(err)
			return ResultDeferred, err
		}
		if len(cancelled) > 0 {
			scope.Log.Infof("cancelled %d pending interventions of unsubscribed user %s", len(cancelled), userID)
		}
		m.c.Retry.Clear(userID)
		return ResultUnsubscribed, nil
	}

	window := activity.Lookback(now, m.cfg.Lookback)
	events, err := m.queryActivity(ctx, userID, window)
	if err != nil {
		scope.TraceError(err)
		return ResultDeferred, err
	}

	profile, err := m.c.Analyzer.Analyze(ctx, userID, window, events)
	if err != nil {
		scope.TraceError(err)
		return ResultDeferred, fmt.Errorf("%w: analyzing user %s: %v", intervention.ErrExternalDependency, userID, err)
	}
	if profile.InsufficientData {
		scope.Log.Debugf("user %s: %v", userID, intervention.ErrInsufficientData)
		return ResultInsufficient, nil
	}

	set, err := m.c.Interventions.Load(ctx, userID)
	if err != nil {
		scope.TraceError(err)
		return ResultDeferred, fmt.Errorf("%w: loading interventions of %s: %v", intervention.ErrExternalDependency, userID, err)
	}

	candidates := m.c.Evaluator.Evaluate(ctx, profile, events, window, set, now)
	for _, c := range candidates {
		metrics.CandidatesTotal.WithLabelValues("trigger", c.TriggerType).Inc()
	}

	if m.c.Predictor != nil {
		assessment, c := m.c.Predictor.Predict(ctx, profile, events, window, now)
		if assessment != nil {
			metrics.RiskScore.Observe(assessment.Score)
			scope.SetAttributes("risk_score", assessment.Score)
		}
		if c != nil {
			metrics.CandidatesTotal.WithLabelValues("predictor", c.TriggerType).Inc()
			candidates = append(candidates, c)
		}
	}

	candidates = scheduler.Merge(candidates, m.c.Retry.Pending(userID))
	if len(candidates) == 0 {
		return ResultNoCandidates, nil
	}

	loc := m.c.Scheduler.Constraints().ForUser(prefs).Location
	proposals := make([]intervention.Proposal, 0, len(candidates))
	for _, c := range candidates {
		proposals = append(proposals, m.c.Optimizer.Propose(ctx, c, events, now, loc))
	}

	schedScope := scope.NewChildScope("scheduler.Schedule")
	result, err := m.c.Scheduler.Schedule(schedScope.Ctx, userID, proposals, prefs)
	schedScope.Finish()
	if err != nil {
		scope.TraceError(err)
		if errors.Is(err, intervention.ErrExternalDependency) {
			m.c.Retry.Offer(userID, candidates)
		}
		return ResultDeferred, err
	}
	m.c.Retry.Clear(userID)

	for range result.Scheduled {
		metrics.SchedulingTotal.WithLabelValues("scheduled").Inc()
	}
	for range result.Superseded {
		metrics.SchedulingTotal.WithLabelValues("superseded").Inc()
	}
	for _, r := range result.Rejected {
		metrics.SchedulingTotal.WithLabelValues(r.Reason).Inc()
	}

	if len(result.Scheduled) == 0 {
		return ResultNoCandidates, nil
	}
	return ResultScheduled, nil
}

func (m *Manager) preferences(ctx context.Context, userID string) (*intervention.Preferences, error) {
	if m.c.Preferences == nil {
		return nil, nil
	}
	prefs, err := m.c.Preferences.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading preferences of %s: %v", intervention.ErrExternalDependency, userID, err)
	}
	return prefs, nil
}

// queryActivity reads the window with a per-attempt timeout and exponential
// backoff between attempts.
func (m *Manager) queryActivity(ctx context.Context, userID string, window activity.Window) (activity.Events, error) {
	var events activity.Events
	operation := func() error {
		qctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
		defer cancel()

		var err error
		events, err = m.c.Activity.QueryActivity(qctx, userID, window)
		if err != nil {
			logrus.Debugf("activity query for user %s failed: %v", userID, err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.cfg.QueryAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("%w: querying activity of %s: %v", intervention.ErrExternalDependency, userID, err)
	}
	return events, nil
}
