package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/AccelByte/extend-proactive-intervention/pkg/service"
	"github.com/AccelByte/extend-proactive-intervention/pkg/service/mock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *service.RedisInterventionStore
	generator *mock.Generator
	channel   *mock.Channel
	rewards   *mock.RewardGranter
	stats     *mock.StatUpdater
	mr        *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &fixture{
		store:     service.NewRedisInterventionStore(client, service.RedisInterventionStoreConfig{}),
		generator: &mock.Generator{},
		channel:   &mock.Channel{},
		rewards:   &mock.RewardGranter{},
		stats:     &mock.StatUpdater{},
		mr:        mr,
	}
}

func (f *fixture) dispatcher(cfg dispatch.Config) *dispatch.Dispatcher {
	cfg.RetryInterval = time.Millisecond
	return dispatch.New(f.store, f.generator, f.channel, cfg).
		WithRewards(f.rewards).
		WithStats(f.stats)
}

func (f *fixture) schedule(t *testing.T, id string, category intervention.Category, at time.Time) {
	t.Helper()
	err := f.store.Update(context.Background(), "user-1", func(set *intervention.UserSet) error {
		set.Add(&intervention.Scheduled{
			ID:          id,
			UserID:      "user-1",
			TriggerType: "trigger-" + id,
			Priority:    intervention.PriorityMedium,
			Urgency:     intervention.UrgencyMedium,
			Category:    category,
			DeliverAt:   at,
			Status:      intervention.StatusPending,
			ChannelHint: "whatsapp",
		})
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) status(t *testing.T, id string) *intervention.Scheduled {
	t.Helper()
	set, err := f.store.Load(context.Background(), "user-1")
	require.NoError(t, err)
	iv := set.Get(id)
	require.NotNil(t, iv)
	return iv
}

func TestProcessDue_DeliversAndMarks(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-time.Minute)
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, past)
	f.schedule(t, "iv-future", intervention.CategoryCheckIn, time.Now().Add(time.Hour))

	summary, err := f.dispatcher(dispatch.Config{StatCode: "interventions-delivered"}).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary[dispatch.ResultDelivered])

	iv := f.status(t, "iv-1")
	assert.Equal(t, intervention.StatusDelivered, iv.Status)
	assert.NotEmpty(t, iv.Receipt)
	assert.False(t, iv.DeliveredAt.IsZero())
	assert.Equal(t, intervention.StatusPending, f.status(t, "iv-future").Status)

	require.Len(t, f.channel.Calls, 1)
	assert.Equal(t, "whatsapp", f.channel.Calls[0].ChannelHint)
	assert.Equal(t, 1, f.stats.Count("user-1", "interventions-delivered"))
	assert.Empty(t, f.rewards.Calls, "check-ins carry no reward")

	observed, err := f.store.Delivered(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, observed, 1)
	assert.Equal(t, "iv-1", observed[0].ID)
}

func TestDispatch_CelebrationGrantsReward(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "iv-1", intervention.CategoryCelebration, time.Now().Add(-time.Minute))

	d := f.dispatcher(dispatch.Config{RewardItemID: "STREAK_BADGE"})
	result := d.Dispatch(context.Background(), intervention.Ref{UserID: "user-1", ID: "iv-1"})
	assert.Equal(t, dispatch.ResultDelivered, result)

	require.Len(t, f.rewards.Calls, 1)
	assert.Equal(t, mock.GrantCall{UserID: "user-1", ItemID: "STREAK_BADGE", Quantity: 1}, f.rewards.Calls[0])
}

func TestDispatch_RewardFailureKeepsDelivery(t *testing.T) {
	f := newFixture(t)
	f.rewards.Error = errors.New("platform unavailable")
	f.schedule(t, "iv-1", intervention.CategoryCelebration, time.Now().Add(-time.Minute))

	result := f.dispatcher(dispatch.Config{RewardItemID: "STREAK_BADGE"}).
		Dispatch(context.Background(), intervention.Ref{UserID: "user-1", ID: "iv-1"})
	assert.Equal(t, dispatch.ResultDelivered, result)
	assert.Equal(t, intervention.StatusDelivered, f.status(t, "iv-1").Status)
}

func TestDispatch_CancelledIsNotDelivered(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, time.Now().Add(-time.Minute))

	err := f.store.Update(context.Background(), "user-1", func(set *intervention.UserSet) error {
		_, err := set.Transition("iv-1", intervention.StatusCancelled, time.Now())
		return err
	})
	require.NoError(t, err)

	result := f.dispatcher(dispatch.Config{}).Dispatch(context.Background(), intervention.Ref{UserID: "user-1", ID: "iv-1"})
	assert.Equal(t, dispatch.ResultSkipped, result)
	assert.Equal(t, 0, f.generator.CallCount())
	assert.Equal(t, 0, f.channel.CallCount())
}

func TestDispatch_CancelledDuringGeneration(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, time.Now().Add(-time.Minute))

	f.generator.GenerateFunc = func(ctx context.Context, req dispatch.GenerationRequest) (string, error) {
		// a coach takes over while the text is being written
		err := f.store.Update(ctx, "user-1", func(set *intervention.UserSet) error {
			iv, err := set.Transition(req.InterventionID, intervention.StatusCancelled, time.Now())
			if err == nil {
				iv.CancelReason = intervention.ReasonCoachTakeover
			}
			return err
		})
		return "hello", err
	}

	result := f.dispatcher(dispatch.Config{}).Dispatch(context.Background(), intervention.Ref{UserID: "user-1", ID: "iv-1"})
	assert.Equal(t, dispatch.ResultSkipped, result)
	assert.Equal(t, 0, f.channel.CallCount())

	iv := f.status(t, "iv-1")
	assert.Equal(t, intervention.StatusCancelled, iv.Status)
	assert.Equal(t, intervention.ReasonCoachTakeover, iv.CancelReason)
}

func TestDispatch_GenerationRetriedOnceThenCancelled(t *testing.T) {
	f := newFixture(t)
	f.generator.Error = errors.New("model overloaded")
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, time.Now().Add(-time.Minute))

	result := f.dispatcher(dispatch.Config{}).Dispatch(context.Background(), intervention.Ref{UserID: "user-1", ID: "iv-1"})
	assert.Equal(t, dispatch.ResultGenerationFailed, result)
	assert.Equal(t, 2, f.generator.CallCount())
	assert.Equal(t, 0, f.channel.CallCount())

	iv := f.status(t, "iv-1")
	assert.Equal(t, intervention.StatusCancelled, iv.Status)
	assert.Equal(t, intervention.ReasonGenerationFailed, iv.CancelReason)
}

func TestDispatch_DeliveryRetried(t *testing.T) {
	f := newFixture(t)
	f.channel.Error = errors.New("timeout")
	f.channel.FailTimes = 2
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, time.Now().Add(-time.Minute))

	result := f.dispatcher(dispatch.Config{DeliveryAttempts: 3}).Dispatch(context.Background(), intervention.Ref{UserID: "user-1", ID: "iv-1"})
	assert.Equal(t, dispatch.ResultDelivered, result)
	assert.Equal(t, 3, f.channel.CallCount())
}

func TestDispatch_DeliveryExhaustedCancels(t *testing.T) {
	f := newFixture(t)
	f.channel.Error = errors.New("channel down")
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, time.Now().Add(-time.Minute))

	result := f.dispatcher(dispatch.Config{DeliveryAttempts: 3}).Dispatch(context.Background(), intervention.Ref{UserID: "user-1", ID: "iv-1"})
	assert.Equal(t, dispatch.ResultDeliveryFailed, result)
	assert.Equal(t, 3, f.channel.CallCount())

	iv := f.status(t, "iv-1")
	assert.Equal(t, intervention.StatusCancelled, iv.Status)
	assert.Equal(t, intervention.ReasonDeliveryFailed, iv.CancelReason)

	due, err := f.store.Due(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDispatch_SecondDispatcherDoesNotRedeliver(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, time.Now().Add(-time.Minute))
	ref := intervention.Ref{UserID: "user-1", ID: "iv-1"}

	first := f.dispatcher(dispatch.Config{})
	second := f.dispatcher(dispatch.Config{})

	var secondResult dispatch.Result
	f.generator.GenerateFunc = func(ctx context.Context, req dispatch.GenerationRequest) (string, error) {
		if secondResult == "" {
			// another replica polls the same due entry mid-generation
			secondResult = second.Dispatch(ctx, ref)
		}
		return "hello", nil
	}

	result := first.Dispatch(context.Background(), ref)
	assert.Equal(t, dispatch.ResultDelivered, result)
	assert.Equal(t, dispatch.ResultSkipped, secondResult)
	assert.Equal(t, 1, f.generator.CallCount())
	assert.Equal(t, 1, f.channel.CallCount())
	assert.Equal(t, intervention.StatusDelivered, f.status(t, "iv-1").Status)
}

func TestProcessDue_ConcurrentDispatchersDeliverOnce(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"iv-1", "iv-2", "iv-3"} {
		f.schedule(t, id, intervention.CategoryCheckIn, time.Now().Add(-time.Minute))
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		d := f.dispatcher(dispatch.Config{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.ProcessDue(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, f.channel.CallCount())
	for _, id := range []string{"iv-1", "iv-2", "iv-3"} {
		assert.Equal(t, intervention.StatusDelivered, f.status(t, id).Status)
	}
}

func TestDispatch_ExpiredClaimIsRetaken(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "iv-1", intervention.CategoryCheckIn, time.Now().Add(-time.Minute))
	ref := intervention.Ref{UserID: "user-1", ID: "iv-1"}

	// a replica claimed the entry and died before delivering
	ok, err := f.store.Claim(context.Background(), ref, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	d := f.dispatcher(dispatch.Config{})
	assert.Equal(t, dispatch.ResultSkipped, d.Dispatch(context.Background(), ref))
	assert.Equal(t, 0, f.channel.CallCount())

	f.mr.FastForward(2 * time.Minute)
	assert.Equal(t, dispatch.ResultDelivered, d.Dispatch(context.Background(), ref))
	assert.Equal(t, 1, f.channel.CallCount())
}

func TestProcessDue_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := f.dispatcher(dispatch.Config{}).ProcessDue(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, intervention.ErrExternalDependency))
}
