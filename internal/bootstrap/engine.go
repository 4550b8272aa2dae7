// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/AccelByte/extend-proactive-intervention/pkg/effectiveness"
	"github.com/AccelByte/extend-proactive-intervention/pkg/pipeline"
	"github.com/AccelByte/extend-proactive-intervention/pkg/risk"
	"github.com/AccelByte/extend-proactive-intervention/pkg/scheduler"
	"github.com/AccelByte/extend-proactive-intervention/pkg/timing"
	"github.com/AccelByte/extend-proactive-intervention/pkg/trigger"
	"github.com/sirupsen/logrus"
)

// EngineConfig carries the settings the evaluation cycle needs.
type EngineConfig struct {
	CatalogPath         string
	Constraints         scheduler.Constraints
	WorkerCount         int
	Lookback            time.Duration
	MaxScheduleAttempts int
	ObservationWindow   time.Duration
}

// Engine is the assembled evaluation pipeline.
type Engine struct {
	Manager   *pipeline.Manager
	Scheduler *scheduler.Scheduler
	Tracker   *effectiveness.Tracker
}

// InitEngine wires Analyzer → {Evaluator, Predictor} → Optimizer → Scheduler
// behind a cycle manager, plus the effectiveness tracker that feeds weights
// and response patterns back into the next cycle.
//
// ============================================================
// DEVELOPER: Trigger definitions
// ============================================================
// Triggers are data, not code. Add or tune them in the catalog
// YAML (CATALOG_PATH); it is re-read at the start of every cycle.
// To swap the risk model, pass a different risk.Scorer to
// risk.NewPredictor below.
// ============================================================
func InitEngine(cfg EngineConfig, stores *Stores, events pipeline.ActivitySource) (*Engine, error) {
	// Fail fast on an unreadable catalog. Later cycles abort instead.
	catalog, err := trigger.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	if err := pipeline.ValidateCatalog(catalog); err != nil {
		logrus.Warnf("trigger catalog has skipped entries: %v", err)
	}
	registry := trigger.NewRegistry()
	registry.Replace(catalog.Definitions)
	logrus.Infof("loaded %d trigger definitions from %s", len(catalog.Definitions), cfg.CatalogPath)

	if err := cfg.Constraints.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduling constraints: %w", err)
	}
	sched := scheduler.New(stores.Interventions, cfg.Constraints)

	manager := pipeline.NewManager(pipeline.Components{
		Catalog:       pipeline.FileCatalog(cfg.CatalogPath),
		Registry:      registry,
		Activity:      events,
		Analyzer:      behavior.NewAnalyzer(stores.History, stores.Weights),
		Evaluator:     trigger.NewEvaluator(registry, cfg.Constraints.Location),
		Predictor:     risk.NewPredictor(risk.HeuristicScorer{}, stores.Outcomes, risk.DefaultCooldown),
		Optimizer:     timing.NewOptimizer(stores.Patterns),
		Scheduler:     sched,
		Interventions: stores.Interventions,
		Preferences:   stores.Preferences,
		Retry:         scheduler.NewRetryQueue(cfg.MaxScheduleAttempts),
	}, pipeline.Config{
		WorkerCount: cfg.WorkerCount,
		Lookback:    cfg.Lookback,
	})
	logrus.Infof("initialized cycle manager with %d workers", cfg.WorkerCount)

	tracker := effectiveness.NewTracker(
		stores.Interventions,
		stores.Outcomes,
		events,
		stores.Weights,
		stores.Patterns,
		stores.Preferences,
		effectiveness.Config{
			ObservationWindow: cfg.ObservationWindow,
			Location:          cfg.Constraints.Location,
		},
	)
	logrus.Infof("initialized effectiveness tracker (observation window %s)", cfg.ObservationWindow)

	return &Engine{Manager: manager, Scheduler: sched, Tracker: tracker}, nil
}

// DeliveryConfig carries the dispatcher settings.
type DeliveryConfig struct {
	RewardItemID string
	StatCode     string
}

// InitDispatcher builds the dispatcher. rewards and stats are optional; nil
// disables the matching hook.
//
// ============================================================
// DEVELOPER: Delivery hooks
// ============================================================
// Celebration interventions can grant REWARD_ITEM_ID and every
// delivery can increment STAT_CODE when AccelByte is configured.
// ============================================================
func InitDispatcher(
	stores *Stores,
	generator dispatch.Generator,
	channel dispatch.Channel,
	rewards dispatch.RewardGranter,
	stats dispatch.StatUpdater,
	cfg DeliveryConfig,
) *dispatch.Dispatcher {
	dcfg := dispatch.DefaultConfig()
	dcfg.RewardItemID = cfg.RewardItemID
	dcfg.StatCode = cfg.StatCode

	d := dispatch.New(stores.Interventions, generator, channel, dcfg)
	if rewards != nil {
		d.WithRewards(rewards)
	}
	if stats != nil {
		d.WithStats(stats)
	}
	logrus.Info("initialized dispatcher")
	return d
}
