// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

//go:build integration
// +build integration

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/common"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/AccelByte/extend-proactive-intervention/pkg/scheduler"
	"github.com/AccelByte/extend-proactive-intervention/pkg/service"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// This is a manual integration test for the Redis-backed scheduling state
// Run this with: go run -tags integration test_redis_integration.go
// Requires: Redis running on REDIS_HOST:REDIS_PORT (default localhost:6379)

func main() {
	logrus.SetLevel(logrus.DebugLevel)
	logrus.Infof("Starting Redis integration test...")

	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:     common.GetEnv("REDIS_HOST", "localhost") + ":" + common.GetEnv("REDIS_PORT", "6379"),
		Password: common.GetEnv("REDIS_PASSWORD", ""),
	})
	defer client.Close()
	if err := service.NewHealthChecker(client).Check(ctx); err != nil {
		logrus.Fatalf("Failed to reach Redis: %v", err)
	}

	store := service.NewRedisInterventionStore(client, service.RedisInterventionStoreConfig{})
	outcomes := service.NewRedisOutcomeStore(client, service.RedisOutcomeStoreConfig{})
	sched := scheduler.New(store, scheduler.DefaultConstraints())

	testUserID := fmt.Sprintf("test-user-%d", time.Now().Unix())
	logrus.Infof("Testing with user ID: %s", testUserID)

	now := time.Now()
	candidate := &intervention.Candidate{
		UserID:      testUserID,
		TriggerType: "INACTIVITY",
		Priority:    intervention.PriorityMedium,
		Urgency:     intervention.UrgencyMedium,
		Confidence:  0.8,
		Category:    intervention.CategoryReEngagement,
		Cooldown:    24 * time.Hour,
		DetectedAt:  now,
	}

	// Test 1: Schedule a candidate
	logrus.Infof("\n=== Test 1: Schedule a candidate ===")
	result, err := sched.Schedule(ctx, testUserID, []intervention.Proposal{
		{Candidate: candidate, ProposedAt: now.Add(time.Hour)},
	}, nil)
	if err != nil {
		logrus.Fatalf("Schedule failed: %v", err)
	}
	if len(result.Scheduled) != 1 {
		logrus.Fatalf("❌ Expected 1 scheduled intervention, got %d", len(result.Scheduled))
	}
	scheduled := result.Scheduled[0]
	logrus.Infof("✓ Scheduled %s at %s", scheduled.ID, scheduled.DeliverAt.Format(time.RFC3339))

	// Test 2: Same trigger is blocked while pending
	logrus.Infof("\n=== Test 2: Re-schedule the same trigger ===")
	result, err = sched.Schedule(ctx, testUserID, []intervention.Proposal{
		{Candidate: candidate, ProposedAt: now.Add(2 * time.Hour)},
	}, nil)
	if err != nil {
		logrus.Fatalf("Schedule failed: %v", err)
	}
	if len(result.Scheduled) != 0 {
		logrus.Fatalf("❌ Duplicate pending trigger should not be scheduled")
	}
	logrus.Infof("✓ Duplicate rejected")

	// Test 3: Cancel the pending intervention
	logrus.Infof("\n=== Test 3: Cancel ===")
	if _, err := sched.Cancel(ctx, testUserID, scheduled.ID, intervention.ReasonManual); err != nil {
		logrus.Fatalf("Cancel failed: %v", err)
	}
	set, err := store.Load(ctx, testUserID)
	if err != nil {
		logrus.Fatalf("Load failed: %v", err)
	}
	if got := set.Get(scheduled.ID); got == nil || got.Status != intervention.StatusCancelled {
		logrus.Fatalf("❌ Intervention should be cancelled")
	}
	logrus.Infof("✓ Intervention cancelled")

	// Test 4: Outcomes are write-once
	logrus.Infof("\n=== Test 4: Write-once outcome ===")
	outcome := &intervention.Outcome{
		InterventionID: scheduled.ID,
		UserID:         testUserID,
		TriggerType:    scheduled.TriggerType,
		Effectiveness:  0.5,
		RecordedAt:     now,
	}
	created, err := outcomes.Save(ctx, outcome)
	if err != nil || !created {
		logrus.Fatalf("❌ First save should create the outcome: %v", err)
	}
	created, err = outcomes.Save(ctx, outcome)
	if err != nil || created {
		logrus.Fatalf("❌ Second save should be a no-op: %v", err)
	}
	logrus.Infof("✓ Outcome stored once")

	// Test 5: Clean up
	logrus.Infof("\n=== Test 5: Clean up ===")
	keys, err := client.Keys(ctx, "*"+testUserID+"*").Result()
	if err != nil {
		logrus.Fatalf("Keys failed: %v", err)
	}
	if len(keys) > 0 {
		if err := client.Del(ctx, keys...).Err(); err != nil {
			logrus.Fatalf("Del failed: %v", err)
		}
	}
	logrus.Infof("✓ Deleted %d test keys", len(keys))

	logrus.Infof("\n==================================================")
	logrus.Infof("✅ All Redis integration tests passed!")
	logrus.Infof("==================================================")
}
