package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	profileHistoryDefaultTTL   = 30 * 24 * time.Hour
	profileHistoryDefaultDepth = 10
	profileHistoryKeyPrefix    = "proactive_intervention:profile_history:"
)

// RedisProfileHistoryStore keeps the newest profiles per user in a capped
// list, newest first.
type RedisProfileHistoryStore struct {
	client *redis.Client
	cfg    RedisProfileHistoryStoreConfig
}

type RedisProfileHistoryStoreConfig struct {
	Depth int
	TTL   time.Duration
}

func NewRedisProfileHistoryStore(client *redis.Client, cfg RedisProfileHistoryStoreConfig) *RedisProfileHistoryStore {
	if cfg.Depth <= 0 {
		cfg.Depth = profileHistoryDefaultDepth
	}
	if cfg.TTL <= 0 {
		cfg.TTL = profileHistoryDefaultTTL
	}
	return &RedisProfileHistoryStore{
		client: client,
		cfg:    cfg,
	}
}

func makeProfileHistoryKey(userID string) string {
	return fmt.Sprintf("%s%s", profileHistoryKeyPrefix, userID)
}

// Append pushes a profile and trims the list to the configured depth.
func (r *RedisProfileHistoryStore) Append(ctx context.Context, profile *behavior.Profile) error {
	key := makeProfileHistoryKey(profile.UserID)

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(r.cfg.Depth-1))
		pipe.Expire(ctx, key, r.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append profile: %w", err)
	}
	return nil
}

// Recent returns up to n profiles, newest first.
func (r *RedisProfileHistoryStore) Recent(ctx context.Context, userID string, n int) ([]*behavior.Profile, error) {
	if n <= 0 {
		return nil, nil
	}

	items, err := r.client.LRange(ctx, makeProfileHistoryKey(userID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read profile history: %w", err)
	}

	profiles := make([]*behavior.Profile, 0, len(items))
	for _, item := range items {
		var p behavior.Profile
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			// Skip invalid entries
			logrus.Warnf("skipping unreadable profile for user %s: %v", userID, err)
			continue
		}
		profiles = append(profiles, &p)
	}
	return profiles, nil
}

// Latest returns the newest profile, or nil when there is none.
func (r *RedisProfileHistoryStore) Latest(ctx context.Context, userID string) (*behavior.Profile, error) {
	profiles, err := r.Recent(ctx, userID, 1)
	if err != nil || len(profiles) == 0 {
		return nil, err
	}
	return profiles[0], nil
}
