package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// interventionStoreDefaultTTL keeps an idle user's set for 30 days
	interventionStoreDefaultTTL = 30 * 24 * time.Hour
	// interventionStoreKeyPrefix is the prefix for per-user intervention sets
	interventionStoreKeyPrefix = "proactive_intervention:user_set:"
	// interventionDueKey indexes pending interventions by delivery time
	interventionDueKey = "proactive_intervention:due"
	// interventionObserveKey indexes delivered interventions by delivery time
	interventionObserveKey = "proactive_intervention:observe"
	// interventionClaimKeyPrefix is the prefix for dispatch leases
	interventionClaimKeyPrefix = "proactive_intervention:claim:"

	interventionStoreMaxTxRetries = 10
	refSeparator                  = "|"
)

// RedisInterventionStore keeps each user's intervention set as one JSON
// document and maintains the due and observe indexes in the same
// transaction.
type RedisInterventionStore struct {
	client *redis.Client
	cfg    RedisInterventionStoreConfig
}

type RedisInterventionStoreConfig struct {
	TTL time.Duration
}

// NewRedisInterventionStore creates a new Redis-backed intervention store.
func NewRedisInterventionStore(
	client *redis.Client,
	cfg RedisInterventionStoreConfig,
) *RedisInterventionStore {
	if cfg.TTL <= 0 {
		cfg.TTL = interventionStoreDefaultTTL
	}
	return &RedisInterventionStore{
		client: client,
		cfg:    cfg,
	}
}

func makeInterventionStoreKey(userID string) string {
	return fmt.Sprintf("%s%s", interventionStoreKeyPrefix, userID)
}

func refMember(userID, id string) string {
	return userID + refSeparator + id
}

func parseRefMember(member string) (intervention.Ref, bool) {
	i := strings.LastIndex(member, refSeparator)
	if i <= 0 || i == len(member)-1 {
		return intervention.Ref{}, false
	}
	return intervention.Ref{UserID: member[:i], ID: member[i+1:]}, true
}

// Load retrieves a user's intervention set. Unknown users get an empty set.
func (r *RedisInterventionStore) Load(ctx context.Context, userID string) (*intervention.UserSet, error) {
	return loadUserSet(ctx, r.client, userID)
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadUserSet(ctx context.Context, getter stringGetter, userID string) (*intervention.UserSet, error) {
	data, err := getter.Get(ctx, makeInterventionStoreKey(userID)).Result()
	if err == redis.Nil {
		return intervention.NewUserSet(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intervention set: %w", err)
	}

	set := intervention.NewUserSet(userID)
	if err := json.Unmarshal([]byte(data), set); err != nil {
		logrus.Errorf("failed to unmarshal intervention set for user %s: %v", userID, err)
		return nil, fmt.Errorf("failed to unmarshal intervention set: %w", err)
	}
	if set.LastFired == nil {
		set.LastFired = make(map[string]time.Time)
	}
	return set, nil
}

// Update applies fn to the user's set under WATCH and commits it with MULTI.
// fn runs again when a concurrent writer touched the set.
func (r *RedisInterventionStore) Update(
	ctx context.Context,
	userID string,
	fn func(set *intervention.UserSet) error,
) error {
	key := makeInterventionStoreKey(userID)

	txf := func(tx *redis.Tx) error {
		set, err := loadUserSet(ctx, tx, userID)
		if err != nil {
			return err
		}
		before := make(map[string]bool, len(set.Interventions))
		for _, iv := range set.Interventions {
			before[iv.ID] = true
		}

		if err := fn(set); err != nil {
			return err
		}

		data, err := json.Marshal(set)
		if err != nil {
			return fmt.Errorf("failed to marshal intervention set: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.cfg.TTL)
			for _, iv := range set.Interventions {
				delete(before, iv.ID)
				syncIndexes(ctx, pipe, userID, iv)
			}
			// pruned records
			for id := range before {
				member := refMember(userID, id)
				pipe.ZRem(ctx, interventionDueKey, member)
				pipe.ZRem(ctx, interventionObserveKey, member)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < interventionStoreMaxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			logrus.Debugf("intervention set for user %s changed concurrently, retrying", userID)
			continue
		}
		return err
	}
	return fmt.Errorf("intervention set for user %s: too much contention after %d attempts",
		userID, interventionStoreMaxTxRetries)
}

func syncIndexes(ctx context.Context, pipe redis.Pipeliner, userID string, iv *intervention.Scheduled) {
	member := refMember(userID, iv.ID)
	switch iv.Status {
	case intervention.StatusPending:
		pipe.ZAdd(ctx, interventionDueKey, &redis.Z{Score: float64(iv.DeliverAt.UnixMilli()), Member: member})
		pipe.ZRem(ctx, interventionObserveKey, member)
	case intervention.StatusDelivered:
		pipe.ZRem(ctx, interventionDueKey, member)
		pipe.ZAdd(ctx, interventionObserveKey, &redis.Z{Score: float64(iv.DeliveredAt.UnixMilli()), Member: member})
	default:
		pipe.ZRem(ctx, interventionDueKey, member)
		pipe.ZRem(ctx, interventionObserveKey, member)
	}
}

// Due returns pending interventions with delivery time at or before before.
func (r *RedisInterventionStore) Due(ctx context.Context, before time.Time, limit int) ([]intervention.Ref, error) {
	return r.rangeIndex(ctx, interventionDueKey, before, limit)
}

// Delivered returns delivered interventions with delivery time at or before
// before, oldest first.
func (r *RedisInterventionStore) Delivered(ctx context.Context, before time.Time, limit int) ([]intervention.Ref, error) {
	return r.rangeIndex(ctx, interventionObserveKey, before, limit)
}

// Dequeue removes a reference from the due index.
func (r *RedisInterventionStore) Dequeue(ctx context.Context, ref intervention.Ref) error {
	if err := r.client.ZRem(ctx, interventionDueKey, refMember(ref.UserID, ref.ID)).Err(); err != nil {
		return fmt.Errorf("failed to dequeue intervention: %w", err)
	}
	return nil
}

// Claim takes a dispatch lease on ref with SETNX. Only the holder may
// generate and deliver the intervention until the lease expires.
func (r *RedisInterventionStore) Claim(ctx context.Context, ref intervention.Ref, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, makeClaimKey(ref), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim intervention: %w", err)
	}
	return ok, nil
}

// Release drops a dispatch lease.
func (r *RedisInterventionStore) Release(ctx context.Context, ref intervention.Ref) error {
	if err := r.client.Del(ctx, makeClaimKey(ref)).Err(); err != nil {
		return fmt.Errorf("failed to release intervention: %w", err)
	}
	return nil
}

func makeClaimKey(ref intervention.Ref) string {
	return interventionClaimKeyPrefix + refMember(ref.UserID, ref.ID)
}

// Unobserve removes a reference from the observe index.
func (r *RedisInterventionStore) Unobserve(ctx context.Context, ref intervention.Ref) error {
	if err := r.client.ZRem(ctx, interventionObserveKey, refMember(ref.UserID, ref.ID)).Err(); err != nil {
		return fmt.Errorf("failed to unobserve intervention: %w", err)
	}
	return nil
}

func (r *RedisInterventionStore) rangeIndex(ctx context.Context, key string, before time.Time, limit int) ([]intervention.Ref, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	members, err := r.client.ZRangeByScore(ctx, key, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range %s: %w", key, err)
	}

	refs := make([]intervention.Ref, 0, len(members))
	for _, m := range members {
		ref, ok := parseRefMember(m)
		if !ok {
			logrus.Warnf("dropping malformed index member %q from %s", m, key)
			r.client.ZRem(ctx, key, m)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
