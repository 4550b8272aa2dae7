// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/service"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Stores groups every Redis-backed store the engine uses.
type Stores struct {
	Interventions *service.RedisInterventionStore
	History       *service.RedisProfileHistoryStore
	Weights       *service.RedisWeightStore
	Patterns      *service.RedisResponsePatternStore
	Outcomes      *service.RedisOutcomeStore
	Preferences   *service.RedisPreferenceStore
}

// InitStores creates the per-user state stores on one Redis client.
//
// ============================================================
// DEVELOPER: Per-user state stores
// ============================================================
// All stores share the client created in app.initRedis and keep
// their own key prefixes. Tune TTLs through the Config structs.
// ============================================================
func InitStores(client *redis.Client) *Stores {
	stores := &Stores{
		Interventions: service.NewRedisInterventionStore(client, service.RedisInterventionStoreConfig{}),
		History:       service.NewRedisProfileHistoryStore(client, service.RedisProfileHistoryStoreConfig{}),
		Weights:       service.NewRedisWeightStore(client, service.RedisWeightStoreConfig{}),
		Patterns:      service.NewRedisResponsePatternStore(client, service.RedisResponsePatternStoreConfig{}),
		Outcomes:      service.NewRedisOutcomeStore(client, service.RedisOutcomeStoreConfig{}),
		Preferences:   service.NewRedisPreferenceStore(client, service.RedisPreferenceStoreConfig{}),
	}
	logrus.Info("initialized Redis state stores")
	return stores
}

// InitActivityStore opens the activity database. driver is "postgres"
// (lib/pq) or "sqlite" (modernc.org/sqlite). SQLite databases get the
// schema created on startup for local development.
func InitActivityStore(ctx context.Context, driver, dsn string) (*activity.SQLStore, *sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s activity database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to reach %s activity database: %w", driver, err)
	}

	store := activity.NewSQLStore(db, driver)
	if driver == activity.DriverSQLite {
		// SQLite allows one writer; keep a single connection.
		db.SetMaxOpenConns(1)
		if err := store.CreateTable(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to create activity schema: %w", err)
		}
	}

	logrus.Infof("initialized %s activity store", driver)
	return store, db, nil
}
