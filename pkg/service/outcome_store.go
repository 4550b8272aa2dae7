package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/go-redis/redis/v8"
)

const (
	outcomeKeyPrefix     = "proactive_intervention:outcome:"
	outcomeIndexKey      = "proactive_intervention:outcomes"
	outcomeUserKeyPrefix = "proactive_intervention:user_outcomes:"

	outcomeDefaultListLimit   = 100
	outcomeResponseRateWindow = 20
)

// RedisOutcomeStore persists write-once outcomes and the feed indexes.
type RedisOutcomeStore struct {
	client *redis.Client
	cfg    RedisOutcomeStoreConfig
}

type RedisOutcomeStoreConfig struct {
	// TTL of outcome records. Zero keeps them forever.
	TTL time.Duration
}

func NewRedisOutcomeStore(client *redis.Client, cfg RedisOutcomeStoreConfig) *RedisOutcomeStore {
	return &RedisOutcomeStore{
		client: client,
		cfg:    cfg,
	}
}

func makeOutcomeKey(interventionID string) string {
	return fmt.Sprintf("%s%s", outcomeKeyPrefix, interventionID)
}

func makeUserOutcomeKey(userID string) string {
	return fmt.Sprintf("%s%s", outcomeUserKeyPrefix, userID)
}

// Save writes the outcome once. created is false when an outcome for the
// intervention already exists; the stored one is left untouched.
func (r *RedisOutcomeStore) Save(ctx context.Context, outcome *intervention.Outcome) (bool, error) {
	data, err := json.Marshal(outcome)
	if err != nil {
		return false, fmt.Errorf("failed to marshal outcome: %w", err)
	}

	created, err := r.client.SetNX(ctx, makeOutcomeKey(outcome.InterventionID), data, r.cfg.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to save outcome: %w", err)
	}
	if !created {
		return false, nil
	}

	z := &redis.Z{Score: float64(outcome.RecordedAt.UnixMilli()), Member: outcome.InterventionID}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, outcomeIndexKey, z)
		pipe.ZAdd(ctx, makeUserOutcomeKey(outcome.UserID), z)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("failed to index outcome: %w", err)
	}
	return true, nil
}

// Get returns one outcome or intervention.ErrNotFound.
func (r *RedisOutcomeStore) Get(ctx context.Context, interventionID string) (*intervention.Outcome, error) {
	data, err := r.client.Get(ctx, makeOutcomeKey(interventionID)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: outcome %s", intervention.ErrNotFound, interventionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	var outcome intervention.Outcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	return &outcome, nil
}

// List returns outcomes newest first.
func (r *RedisOutcomeStore) List(ctx context.Context, q intervention.OutcomeQuery) ([]*intervention.Outcome, error) {
	key := outcomeIndexKey
	if q.UserID != "" {
		key = makeUserOutcomeKey(q.UserID)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = outcomeDefaultListLimit
	}
	min := "-inf"
	if !q.Since.IsZero() {
		min = strconv.FormatInt(q.Since.UnixMilli(), 10)
	}

	ids, err := r.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   min,
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	if len(ids) == 0 {
		return []*intervention.Outcome{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = makeOutcomeKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	outcomes := make([]*intervention.Outcome, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// expired record still indexed
			continue
		}
		var outcome intervention.Outcome
		if err := json.Unmarshal([]byte(s), &outcome); err != nil {
			continue
		}
		outcomes = append(outcomes, &outcome)
	}
	return outcomes, nil
}

// ResponseRate is the share of the user's recent outcomes that got a
// response. ok is false without history.
func (r *RedisOutcomeStore) ResponseRate(ctx context.Context, userID string) (float64, bool, error) {
	outcomes, err := r.List(ctx, intervention.OutcomeQuery{UserID: userID, Limit: outcomeResponseRateWindow})
	if err != nil {
		return 0, false, err
	}
	if len(outcomes) == 0 {
		return 0, false, nil
	}

	responded := 0
	for _, o := range outcomes {
		if o.ResponseReceived {
			responded++
		}
	}
	return float64(responded) / float64(len(outcomes)), true, nil
}
