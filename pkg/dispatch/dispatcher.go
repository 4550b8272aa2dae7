package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/common"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/AccelByte/extend-proactive-intervention/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Result of one dispatch attempt.
type Result string

const (
	ResultDelivered        Result = "delivered"
	ResultSkipped          Result = "skipped"
	ResultGenerationFailed Result = "generation_failed"
	ResultDeliveryFailed   Result = "delivery_failed"
	ResultError            Result = "error"
)

// Config tunes the dispatcher.
type Config struct {
	BatchSize          int
	GenerationAttempts int
	DeliveryAttempts   int
	RetryInterval      time.Duration
	ClaimTTL           time.Duration
	RewardItemID       string
	RewardQuantity     int
	StatCode           string
}

// DefaultConfig retries generation once and delivery twice. ClaimTTL must
// cover generation plus all delivery attempts.
func DefaultConfig() Config {
	return Config{
		BatchSize:          100,
		GenerationAttempts: 2,
		DeliveryAttempts:   3,
		RetryInterval:      500 * time.Millisecond,
		ClaimTTL:           5 * time.Minute,
		RewardQuantity:     1,
	}
}

// Summary counts results of one ProcessDue call.
type Summary map[Result]int

// Dispatcher delivers due interventions.
type Dispatcher struct {
	store     Store
	generator Generator
	channel   Channel
	rewards   RewardGranter
	stats     StatUpdater
	cfg       Config
	now       func() time.Time
}

// New creates a dispatcher. Zero config fields take defaults.
func New(store Store, generator Generator, channel Channel, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.GenerationAttempts <= 0 {
		cfg.GenerationAttempts = def.GenerationAttempts
	}
	if cfg.DeliveryAttempts <= 0 {
		cfg.DeliveryAttempts = def.DeliveryAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	if cfg.RewardQuantity <= 0 {
		cfg.RewardQuantity = def.RewardQuantity
	}
	return &Dispatcher{
		store:     store,
		generator: generator,
		channel:   channel,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithRewards grants cfg.RewardItemID on delivered celebrations.
func (d *Dispatcher) WithRewards(rewards RewardGranter) *Dispatcher {
	d.rewards = rewards
	return d
}

// WithStats increments cfg.StatCode on every delivery.
func (d *Dispatcher) WithStats(stats StatUpdater) *Dispatcher {
	d.stats = stats
	return d
}

// ProcessDue dispatches one batch of due interventions.
func (d *Dispatcher) ProcessDue(ctx context.Context) (Summary, error) {
	refs, err := d.store.Due(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: listing due interventions: %v", intervention.ErrExternalDependency, err)
	}

	summary := Summary{}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		result := d.Dispatch(ctx, ref)
		summary[result]++
		metrics.DispatchTotal.WithLabelValues(string(result)).Inc()
	}

	if len(refs) > 0 {
		logrus.Infof("dispatch batch done: %d due, %d delivered, %d skipped, %d failed",
			len(refs), summary[ResultDelivered], summary[ResultSkipped],
			summary[ResultGenerationFailed]+summary[ResultDeliveryFailed]+summary[ResultError])
	}
	return summary, nil
}

// Dispatch generates and delivers one intervention.
func (d *Dispatcher) Dispatch(ctx context.Context, ref intervention.Ref) Result {
	scope := common.ChildScopeFromRemoteScope(ctx, "dispatch.Dispatch")
	defer scope.Finish()
	scope.AddBaggage("user_id", ref.UserID)
	scope.AddBaggage("intervention_id", ref.ID)
	ctx = scope.Ctx

	// The lease is kept after delivery or cancellation and lapses on its own.
	claimed, err := d.store.Claim(ctx, ref, d.cfg.ClaimTTL)
	if err != nil {
		logrus.Errorf("failed to claim intervention %s for user %s: %v", ref.ID, ref.UserID, err)
		return ResultError
	}
	if !claimed {
		logrus.Debugf("intervention %s is being dispatched elsewhere", ref.ID)
		return ResultSkipped
	}

	iv, err := d.pending(ctx, ref)
	if errors.Is(err, ErrCancelled) {
		if err := d.store.Dequeue(ctx, ref); err != nil {
			logrus.Warnf("failed to dequeue stale intervention %s: %v", ref.ID, err)
		}
		return ResultSkipped
	}
	if err != nil {
		logrus.Errorf("failed to load intervention %s for user %s: %v", ref.ID, ref.UserID, err)
		if err := d.store.Release(ctx, ref); err != nil {
			logrus.Warnf("failed to release intervention %s: %v", ref.ID, err)
		}
		return ResultError
	}

	message, err := d.generate(ctx, iv)
	if err != nil {
		scope.TraceError(err)
		scope.Log.Warnf("generation failed for intervention %s: %v", iv.ID, err)
		d.cancel(ctx, ref, intervention.ReasonGenerationFailed)
		return ResultGenerationFailed
	}

	receipt, err := d.deliver(ctx, ref, iv, message)
	if errors.Is(err, ErrCancelled) {
		logrus.Infof("intervention %s cancelled before delivery", iv.ID)
		return ResultSkipped
	}
	if err != nil {
		scope.TraceError(err)
		scope.Log.Warnf("delivery failed for intervention %s: %v", iv.ID, err)
		d.cancel(ctx, ref, intervention.ReasonDeliveryFailed)
		return ResultDeliveryFailed
	}

	if err := d.markDelivered(ctx, ref, receipt); err != nil {
		logrus.Errorf("intervention %s delivered (receipt %s) but not marked: %v", iv.ID, receipt.ID, err)
		return ResultError
	}
	scope.TraceEvent("delivered")
	scope.Log.Infof("delivered intervention %s (%s) to user %s via %s",
		iv.ID, iv.TriggerType, iv.UserID, receipt.Channel)

	d.afterDelivery(ctx, iv)
	return ResultDelivered
}

func (d *Dispatcher) pending(ctx context.Context, ref intervention.Ref) (*intervention.Scheduled, error) {
	set, err := d.store.Load(ctx, ref.UserID)
	if err != nil {
		return nil, err
	}
	iv := set.Get(ref.ID)
	if iv == nil || iv.Status != intervention.StatusPending {
		return nil, ErrCancelled
	}
	return iv, nil
}

func (d *Dispatcher) generate(ctx context.Context, iv *intervention.Scheduled) (string, error) {
	req := GenerationRequest{
		InterventionID: iv.ID,
		UserID:         iv.UserID,
		TriggerType:    iv.TriggerType,
		Category:       iv.Category,
		Urgency:        iv.Urgency,
		Context:        iv.Context,
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.GenerationAttempts; attempt++ {
		message, err := d.generator.Generate(ctx, req)
		if err == nil && message != "" {
			return message, nil
		}
		if err == nil {
			err = fmt.Errorf("empty message")
		}
		lastErr = err
		logrus.Debugf("generation attempt %d/%d for %s failed: %v", attempt, d.cfg.GenerationAttempts, iv.ID, err)
	}
	return "", fmt.Errorf("%w: %v", intervention.ErrExternalDependency, lastErr)
}

// deliver re-checks the status right before every attempt so a cancellation
// that lands during generation or between retries is honored.
func (d *Dispatcher) deliver(ctx context.Context, ref intervention.Ref, iv *intervention.Scheduled, message string) (Receipt, error) {
	var receipt Receipt

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.DeliveryAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		if _, err := d.pending(ctx, ref); err != nil {
			if errors.Is(err, ErrCancelled) {
				return backoff.Permanent(err)
			}
			return err
		}
		r, err := d.channel.Deliver(ctx, iv.UserID, message, iv.ChannelHint)
		if err != nil {
			logrus.Debugf("delivery attempt for %s failed: %v", iv.ID, err)
			return err
		}
		receipt = r
		return nil
	}, policy)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return Receipt{}, ErrCancelled
		}
		return Receipt{}, fmt.Errorf("%w: %v", intervention.ErrExternalDependency, err)
	}
	return receipt, nil
}

func (d *Dispatcher) markDelivered(ctx context.Context, ref intervention.Ref, receipt Receipt) error {
	return d.store.Update(ctx, ref.UserID, func(set *intervention.UserSet) error {
		at := receipt.SentAt
		if at.IsZero() {
			at = d.now()
		}
		iv, err := set.Transition(ref.ID, intervention.StatusDelivered, at)
		if err != nil {
			return err
		}
		iv.Receipt = receipt.ID
		if receipt.Channel != "" {
			iv.ChannelHint = receipt.Channel
		}
		return nil
	})
}

func (d *Dispatcher) cancel(ctx context.Context, ref intervention.Ref, reason string) {
	err := d.store.Update(ctx, ref.UserID, func(set *intervention.UserSet) error {
		iv, err := set.Transition(ref.ID, intervention.StatusCancelled, d.now())
		if err != nil {
			// already moved on, nothing to cancel
			return nil
		}
		iv.CancelReason = reason
		return nil
	})
	if err != nil {
		logrus.Errorf("failed to cancel intervention %s (%s): %v", ref.ID, reason, err)
	}
}

func (d *Dispatcher) afterDelivery(ctx context.Context, iv *intervention.Scheduled) {
	if d.rewards != nil && d.cfg.RewardItemID != "" && iv.Category == intervention.CategoryCelebration {
		if err := d.rewards.GrantEntitlement(ctx, iv.UserID, d.cfg.RewardItemID, d.cfg.RewardQuantity); err != nil {
			logrus.Errorf("failed to grant celebration reward to user %s: %v", iv.UserID, err)
		} else {
			logrus.Infof("granted %s x%d to user %s for intervention %s",
				d.cfg.RewardItemID, d.cfg.RewardQuantity, iv.UserID, iv.ID)
		}
	}
	if d.stats != nil && d.cfg.StatCode != "" {
		if err := d.stats.IncrementStat(ctx, iv.UserID, d.cfg.StatCode); err != nil {
			logrus.Errorf("failed to increment %s for user %s: %v", d.cfg.StatCode, iv.UserID, err)
		}
	}
}
