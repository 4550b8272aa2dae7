package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/go-redis/redis/v8"
)

const preferenceStoreKeyPrefix = "proactive_intervention:preferences:"

// RedisPreferenceStore keeps per-user delivery preferences.
type RedisPreferenceStore struct {
	client *redis.Client
	cfg    RedisPreferenceStoreConfig
}

type RedisPreferenceStoreConfig struct{}

func NewRedisPreferenceStore(client *redis.Client, cfg RedisPreferenceStoreConfig) *RedisPreferenceStore {
	return &RedisPreferenceStore{
		client: client,
		cfg:    cfg,
	}
}

func makePreferenceKey(userID string) string {
	return fmt.Sprintf("%s%s", preferenceStoreKeyPrefix, userID)
}

// Get returns the user's preferences, or nil when none were set.
func (r *RedisPreferenceStore) Get(ctx context.Context, userID string) (*intervention.Preferences, error) {
	data, err := r.client.Get(ctx, makePreferenceKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	var prefs intervention.Preferences
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	return &prefs, nil
}

// Set validates and stores preferences.
func (r *RedisPreferenceStore) Set(ctx context.Context, prefs *intervention.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", intervention.ErrConfiguration, err)
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := r.client.Set(ctx, makePreferenceKey(prefs.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set preferences: %w", err)
	}
	return nil
}
