package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

func TestProfileHistoryStore_AppendAndRecent(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := NewRedisProfileHistoryStore(client, RedisProfileHistoryStoreConfig{Depth: 3})
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := store.Append(ctx, &behavior.Profile{
			UserID:    "user-1",
			Overall:   float64(i) / 10,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	profiles, err := store.Recent(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(profiles))
	}
	if profiles[0].Overall != 0.4 {
		t.Errorf("newest Overall = %v, expected 0.4", profiles[0].Overall)
	}

	latest, err := store.Latest(ctx, "user-1")
	if err != nil || latest == nil {
		t.Fatalf("Latest() = %v, %v", latest, err)
	}
	if !latest.Timestamp.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("Latest().Timestamp = %v", latest.Timestamp)
	}

	none, err := store.Latest(ctx, "nobody")
	if err != nil || none != nil {
		t.Errorf("Latest() for unknown user = %v, %v, expected nil, nil", none, err)
	}
}

func TestOutcomeStore_WriteOnce(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := NewRedisOutcomeStore(client, RedisOutcomeStoreConfig{})
	recorded := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)

	first := &intervention.Outcome{InterventionID: "iv-1", UserID: "user-1", Effectiveness: 0.8, RecordedAt: recorded}
	created, err := store.Save(ctx, first)
	if err != nil || !created {
		t.Fatalf("Save() = %v, %v, expected true, nil", created, err)
	}

	second := &intervention.Outcome{InterventionID: "iv-1", UserID: "user-1", Effectiveness: 0.1, RecordedAt: recorded}
	created, err = store.Save(ctx, second)
	if err != nil || created {
		t.Fatalf("second Save() = %v, %v, expected false, nil", created, err)
	}

	got, err := store.Get(ctx, "iv-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Effectiveness != 0.8 {
		t.Errorf("Effectiveness = %v, expected the first write 0.8", got.Effectiveness)
	}

	_, err = store.Get(ctx, "missing")
	if !errors.Is(err, intervention.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, expected ErrNotFound", err)
	}
}

func TestOutcomeStore_ListAndResponseRate(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := NewRedisOutcomeStore(client, RedisOutcomeStoreConfig{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	outcomes := []*intervention.Outcome{
		{InterventionID: "a", UserID: "user-1", ResponseReceived: true, RecordedAt: base},
		{InterventionID: "b", UserID: "user-1", ResponseReceived: false, RecordedAt: base.Add(24 * time.Hour)},
		{InterventionID: "c", UserID: "user-1", ResponseReceived: true, RecordedAt: base.Add(48 * time.Hour)},
		{InterventionID: "d", UserID: "user-2", ResponseReceived: true, RecordedAt: base.Add(72 * time.Hour)},
	}
	for _, o := range outcomes {
		if _, err := store.Save(ctx, o); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	all, err := store.List(ctx, intervention.OutcomeQuery{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 || all[0].InterventionID != "d" {
		t.Errorf("List() returned %d outcomes, first %v; expected 4 newest first", len(all), all[0].InterventionID)
	}

	recent, _ := store.List(ctx, intervention.OutcomeQuery{UserID: "user-1", Since: base.Add(time.Hour)})
	if len(recent) != 2 {
		t.Errorf("List(user-1, since) returned %d outcomes, expected 2", len(recent))
	}

	limited, _ := store.List(ctx, intervention.OutcomeQuery{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("List(limit 1) returned %d outcomes", len(limited))
	}

	rate, ok, err := store.ResponseRate(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("ResponseRate() = %v, %v, %v", rate, ok, err)
	}
	if math.Abs(rate-2.0/3.0) > 1e-9 {
		t.Errorf("ResponseRate() = %v, expected 2/3", rate)
	}

	_, ok, _ = store.ResponseRate(ctx, "nobody")
	if ok {
		t.Error("expected no response rate for a user without outcomes")
	}
}

func TestWeightStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := NewRedisWeightStore(client, RedisWeightStoreConfig{})

	w, err := store.Weights(ctx)
	if err != nil {
		t.Fatalf("Weights() error = %v", err)
	}
	if w[behavior.SubFrequency] != 0.25 {
		t.Errorf("default frequency weight = %v, expected 0.25", w[behavior.SubFrequency])
	}

	err = store.Update(ctx, func(w behavior.Weights) behavior.Weights {
		w[behavior.SubHabit] += 0.1
		return w.Normalized()
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	w, _ = store.Weights(ctx)
	total := 0.0
	for _, v := range w {
		total += v
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("weights sum to %v after update, expected 1", total)
	}
	if w[behavior.SubHabit] <= 0.20 {
		t.Errorf("habit weight = %v, expected it to grow", w[behavior.SubHabit])
	}

	if err := store.Save(ctx, behavior.Weights{behavior.SubFrequency: -1}); err == nil {
		t.Error("expected Save() to reject invalid weights")
	}
}

func TestResponsePatternStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := NewRedisResponsePatternStore(client, RedisResponsePatternStoreConfig{})

	_ = store.RecordResponse(ctx, "user-1", 9, true)
	_ = store.RecordResponse(ctx, "user-1", 9, false)
	_ = store.RecordResponse(ctx, "user-1", 20, true)

	if err := store.RecordResponse(ctx, "user-1", 24, true); err == nil {
		t.Error("expected error for hour 24")
	}

	p, err := store.Pattern(ctx, "user-1")
	if err != nil {
		t.Fatalf("Pattern() error = %v", err)
	}
	if p.Sent[9] != 2 || p.Responded[9] != 1 {
		t.Errorf("hour 9 = %d/%d, expected 1/2", p.Responded[9], p.Sent[9])
	}
	if p.Sent[20] != 1 || p.Responded[20] != 1 {
		t.Errorf("hour 20 = %d/%d, expected 1/1", p.Responded[20], p.Sent[20])
	}
	if p.TotalSent() != 3 {
		t.Errorf("TotalSent() = %d, expected 3", p.TotalSent())
	}

	empty, err := store.Pattern(ctx, "nobody")
	if err != nil || empty.TotalSent() != 0 {
		t.Errorf("Pattern(nobody) = %+v, %v", empty, err)
	}
}

func TestPreferenceStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := NewRedisPreferenceStore(client, RedisPreferenceStoreConfig{})

	none, err := store.Get(ctx, "user-1")
	if err != nil || none != nil {
		t.Fatalf("Get() for unset prefs = %v, %v, expected nil, nil", none, err)
	}

	prefs := &intervention.Preferences{UserID: "user-1", QuietStart: "21:00", QuietEnd: "08:00", ChannelHint: "whatsapp"}
	if err := store.Set(ctx, prefs); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ChannelHint != "whatsapp" || got.QuietStart != "21:00" {
		t.Errorf("Get() = %+v", got)
	}

	bad := &intervention.Preferences{UserID: "user-1", QuietStart: "21:00"}
	if err := store.Set(ctx, bad); !errors.Is(err, intervention.ErrConfiguration) {
		t.Errorf("Set() with half a quiet window error = %v, expected ErrConfiguration", err)
	}
}

func TestHealthChecker(t *testing.T) {
	client, mr := setupTestRedis(t)

	checker := NewHealthChecker(client)
	if !checker.IsHealthy(context.Background()) {
		t.Error("expected healthy Redis")
	}

	mr.Close()
	if checker.IsHealthy(context.Background()) {
		t.Error("expected unhealthy after Redis stopped")
	}
}
