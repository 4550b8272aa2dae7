package effectiveness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/common"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/AccelByte/extend-proactive-intervention/pkg/metrics"
	"github.com/AccelByte/extend-proactive-intervention/pkg/timing"
	"github.com/sirupsen/logrus"
)

// DefaultObservationWindow is how long activity is observed after delivery.
const DefaultObservationWindow = 48 * time.Hour

// InterventionStore is the part of the intervention store the tracker needs.
type InterventionStore interface {
	Update(ctx context.Context, userID string, fn func(*intervention.UserSet) error) error
	Load(ctx context.Context, userID string) (*intervention.UserSet, error)
	// Delivered lists interventions delivered before the given time that
	// still await an outcome.
	Delivered(ctx context.Context, before time.Time, limit int) ([]intervention.Ref, error)
	Unobserve(ctx context.Context, ref intervention.Ref) error
}

// OutcomeWriter persists outcomes. Save reports false when an outcome for the
// intervention already exists.
type OutcomeWriter interface {
	Save(ctx context.Context, outcome *intervention.Outcome) (bool, error)
	Get(ctx context.Context, interventionID string) (*intervention.Outcome, error)
}

// WeightStore holds the shared sub-score weights.
type WeightStore interface {
	Weights(ctx context.Context) (behavior.Weights, error)
	Update(ctx context.Context, fn func(behavior.Weights) behavior.Weights) error
}

// PreferenceSource resolves the user's timezone for response patterns.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (*intervention.Preferences, error)
}

// Config tunes the tracker.
type Config struct {
	ObservationWindow time.Duration
	LearningRate      float64
	BatchSize         int
	Location          *time.Location
}

// Tracker records outcomes once the observation window of a delivered
// intervention has elapsed.
type Tracker struct {
	store    InterventionStore
	outcomes OutcomeWriter
	activity activity.Store
	weights  WeightStore
	patterns timing.PatternStore
	prefs    PreferenceSource
	cfg      Config
	now      func() time.Time
}

// NewTracker creates a tracker. weights, patterns and prefs may be nil, which
// disables the matching feedback.
func NewTracker(
	store InterventionStore,
	outcomes OutcomeWriter,
	events activity.Store,
	weights WeightStore,
	patterns timing.PatternStore,
	prefs PreferenceSource,
	cfg Config,
) *Tracker {
	if cfg.ObservationWindow <= 0 {
		cfg.ObservationWindow = DefaultObservationWindow
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Tracker{
		store:    store,
		outcomes: outcomes,
		activity: events,
		weights:  weights,
		patterns: patterns,
		prefs:    prefs,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ProcessDue records outcomes for one batch of interventions whose
// observation window has elapsed. It returns the number recorded.
func (t *Tracker) ProcessDue(ctx context.Context) (int, error) {
	now := t.now()
	refs, err := t.store.Delivered(ctx, now.Add(-t.cfg.ObservationWindow), t.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: listing delivered interventions: %v", intervention.ErrExternalDependency, err)
	}

	recorded := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return recorded, ctx.Err()
		}
		outcome, err := t.Track(ctx, ref)
		if err != nil {
			logrus.Errorf("failed to record outcome of intervention %s for user %s: %v", ref.ID, ref.UserID, err)
			continue
		}
		if outcome != nil {
			recorded++
		}
	}
	if recorded > 0 {
		logrus.Infof("recorded %d intervention outcomes", recorded)
	}
	return recorded, nil
}

// Track records the outcome of one delivered intervention. It returns nil
// without error when the intervention no longer awaits an outcome.
func (t *Tracker) Track(ctx context.Context, ref intervention.Ref) (*intervention.Outcome, error) {
	scope := common.ChildScopeFromRemoteScope(ctx, "effectiveness.Track")
	defer scope.Finish()
	scope.AddBaggage("intervention_id", ref.ID)
	ctx = scope.Ctx

	set, err := t.store.Load(ctx, ref.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", intervention.ErrExternalDependency, err)
	}
	iv := set.Get(ref.ID)
	if iv == nil || iv.Status != intervention.StatusDelivered {
		if err := t.store.Unobserve(ctx, ref); err != nil {
			logrus.Warnf("failed to drop stale observation %s: %v", ref.ID, err)
		}
		return nil, nil
	}

	window := activity.Window{Start: iv.DeliveredAt, End: iv.DeliveredAt.Add(t.cfg.ObservationWindow)}
	events, err := t.activity.QueryActivity(ctx, ref.UserID, window)
	if err != nil {
		return nil, fmt.Errorf("%w: querying activity: %v", intervention.ErrExternalDependency, err)
	}
	events = events.Within(window)

	weights := t.currentWeights(ctx)
	after := behavior.Compute(ref.UserID, window, events, weights)
	outcome := Evaluate(iv, events, after, t.cfg.ObservationWindow, t.now())

	scope.SetAttributes("effectiveness", outcome.Effectiveness)

	created, err := t.outcomes.Save(ctx, outcome)
	if err != nil {
		return nil, fmt.Errorf("%w: saving outcome: %v", intervention.ErrExternalDependency, err)
	}
	if !created {
		// Outcomes are write-once; feed back the stored record.
		stored, err := t.outcomes.Get(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: loading outcome: %v", intervention.ErrExternalDependency, err)
		}
		outcome = stored
	}

	// Feedback belongs to the run that moves the intervention out of
	// delivered. A failed transition leaves it delivered for the next run.
	err = t.store.Update(ctx, ref.UserID, func(set *intervention.UserSet) error {
		_, err := set.Transition(ref.ID, intervention.StatusOutcomeRecorded, t.now())
		return err
	})
	if errors.Is(err, intervention.ErrInvalidTransition) || errors.Is(err, intervention.ErrNotFound) {
		logrus.Debugf("outcome of intervention %s already recorded", ref.ID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: marking outcome recorded: %v", intervention.ErrExternalDependency, err)
	}

	metrics.Effectiveness.WithLabelValues(string(outcome.Category)).Observe(outcome.Effectiveness)
	t.feedback(ctx, iv, outcome)

	logrus.Infof("intervention %s for user %s: responded=%v delta=%.3f effectiveness=%.3f",
		iv.ID, iv.UserID, outcome.ResponseReceived, outcome.EngagementDelta, outcome.Effectiveness)
	return outcome, nil
}

func (t *Tracker) feedback(ctx context.Context, iv *intervention.Scheduled, outcome *intervention.Outcome) {
	if t.patterns != nil {
		hour := iv.DeliveredAt.In(t.location(ctx, iv.UserID)).Hour()
		if err := t.patterns.RecordResponse(ctx, iv.UserID, hour, outcome.ResponseReceived); err != nil {
			logrus.Warnf("failed to record response pattern for user %s: %v", iv.UserID, err)
		}
	}

	if t.weights != nil && len(outcome.SubScoreDeltas) > 0 {
		err := t.weights.Update(ctx, func(w behavior.Weights) behavior.Weights {
			return AdjustWeights(w, outcome.SubScoreDeltas, outcome.Effectiveness, t.cfg.LearningRate)
		})
		if err != nil {
			logrus.Warnf("failed to update analyzer weights: %v", err)
		}
	}
}

func (t *Tracker) currentWeights(ctx context.Context) behavior.Weights {
	if t.weights == nil {
		return behavior.DefaultWeights()
	}
	w, err := t.weights.Weights(ctx)
	if err != nil || w.Validate() != nil {
		return behavior.DefaultWeights()
	}
	return w
}

func (t *Tracker) location(ctx context.Context, userID string) *time.Location {
	if t.prefs == nil {
		return t.cfg.Location
	}
	prefs, err := t.prefs.Get(ctx, userID)
	if err != nil || prefs == nil {
		return t.cfg.Location
	}
	return prefs.Location(t.cfg.Location)
}
