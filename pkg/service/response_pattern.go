package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/timing"
	"github.com/go-redis/redis/v8"
)

const (
	responsePatternDefaultTTL = 180 * 24 * time.Hour
	responsePatternKeyPrefix  = "proactive_intervention:response_pattern:"
	sentFieldPrefix           = "sent:"
	respondedFieldPrefix      = "responded:"
)

// RedisResponsePatternStore counts deliveries and responses per local hour
// in a hash, one field per counter.
// Example: {"sent:09": 4, "responded:09": 3} means 3 of 4 messages sent at
// 09:00 got a response.
type RedisResponsePatternStore struct {
	client *redis.Client
	cfg    RedisResponsePatternStoreConfig
}

type RedisResponsePatternStoreConfig struct {
	TTL time.Duration
}

func NewRedisResponsePatternStore(client *redis.Client, cfg RedisResponsePatternStoreConfig) *RedisResponsePatternStore {
	if cfg.TTL <= 0 {
		cfg.TTL = responsePatternDefaultTTL
	}
	return &RedisResponsePatternStore{
		client: client,
		cfg:    cfg,
	}
}

func makeResponsePatternKey(userID string) string {
	return fmt.Sprintf("%s%s", responsePatternKeyPrefix, userID)
}

func hourField(prefix string, hour int) string {
	return fmt.Sprintf("%s%02d", prefix, hour)
}

// RecordResponse adds one delivery at hour, and one response if responded.
func (r *RedisResponsePatternStore) RecordResponse(ctx context.Context, userID string, hour int, responded bool) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("hour out of range: %d", hour)
	}
	key := makeResponsePatternKey(userID)

	// Atomic increments using HINCRBY
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, hourField(sentFieldPrefix, hour), 1)
		if responded {
			pipe.HIncrBy(ctx, key, hourField(respondedFieldPrefix, hour), 1)
		}
		pipe.Expire(ctx, key, r.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record response: %w", err)
	}
	return nil
}

// Pattern returns the user's counters. Unknown users get an empty pattern.
func (r *RedisResponsePatternStore) Pattern(ctx context.Context, userID string) (*timing.ResponsePattern, error) {
	data, err := r.client.HGetAll(ctx, makeResponsePatternKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get response pattern: %w", err)
	}

	pattern := &timing.ResponsePattern{}
	for field, value := range data {
		count, err := strconv.Atoi(value)
		if err != nil {
			// Skip invalid entries
			continue
		}
		switch {
		case strings.HasPrefix(field, sentFieldPrefix):
			if hour, ok := parseHour(field[len(sentFieldPrefix):]); ok {
				pattern.Sent[hour] = count
			}
		case strings.HasPrefix(field, respondedFieldPrefix):
			if hour, ok := parseHour(field[len(respondedFieldPrefix):]); ok {
				pattern.Responded[hour] = count
			}
		}
	}
	return pattern, nil
}

func parseHour(s string) (int, bool) {
	h, err := strconv.Atoi(s)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}
