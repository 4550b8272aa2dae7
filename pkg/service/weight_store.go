package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const weightStoreKey = "proactive_intervention:weights"

// RedisWeightStore holds the engine-wide analyzer weights.
type RedisWeightStore struct {
	client *redis.Client
	cfg    RedisWeightStoreConfig
}

type RedisWeightStoreConfig struct {
	// Initial is returned until weights have been saved.
	Initial behavior.Weights
}

func NewRedisWeightStore(client *redis.Client, cfg RedisWeightStoreConfig) *RedisWeightStore {
	if cfg.Initial == nil {
		cfg.Initial = behavior.DefaultWeights()
	}
	return &RedisWeightStore{
		client: client,
		cfg:    cfg,
	}
}

// Weights returns the stored weights or the initial set.
func (r *RedisWeightStore) Weights(ctx context.Context) (behavior.Weights, error) {
	return r.load(ctx, r.client)
}

func (r *RedisWeightStore) load(ctx context.Context, getter stringGetter) (behavior.Weights, error) {
	data, err := getter.Get(ctx, weightStoreKey).Result()
	if err == redis.Nil {
		return copyWeights(r.cfg.Initial), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get weights: %w", err)
	}

	var w behavior.Weights
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	return w, nil
}

// Save replaces the weights after validation.
func (r *RedisWeightStore) Save(ctx context.Context, w behavior.Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	if err := r.client.Set(ctx, weightStoreKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set weights: %w", err)
	}
	return nil
}

// Update applies fn to the current weights atomically.
func (r *RedisWeightStore) Update(ctx context.Context, fn func(behavior.Weights) behavior.Weights) error {
	txf := func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx)
		if err != nil {
			return err
		}
		next := fn(current)
		if err := next.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal weights: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, weightStoreKey, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < interventionStoreMaxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, weightStoreKey)
		if err == redis.TxFailedErr {
			logrus.Debugf("weights changed concurrently, retrying")
			continue
		}
		return err
	}
	return fmt.Errorf("weights: too much contention")
}

func copyWeights(w behavior.Weights) behavior.Weights {
	out := make(behavior.Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
