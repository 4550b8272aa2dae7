// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/activity"
	"github.com/AccelByte/extend-proactive-intervention/pkg/scheduler"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables.
// It attempts to load from .env file first (for local development),
// then parses environment variables into the Config struct.
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	// In production (Docker/K8s), environment variables are injected directly
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("no .env file found or error loading it: %v (this is normal in production)", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration.
//
// ============================================================
// DEVELOPER: Add custom validation logic here.
// ============================================================
// This function is called after environment variables are parsed.
// Scheduling constraints are validated through Constraints() so the
// same rules apply at startup and in the scheduler.
// ============================================================
func (c *Config) Validate() error {
	// Validate server ports
	for name, port := range map[string]int{
		"GRPC_PORT":    c.GRPCPort,
		"METRICS_PORT": c.MetricsPort,
		"HTTP_PORT":    c.HTTPPort,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s: %d (must be 1-65535)", name, port)
		}
	}
	if c.HTTPPort == c.MetricsPort || c.HTTPPort == c.GRPCPort || c.MetricsPort == c.GRPCPort {
		return fmt.Errorf("GRPC_PORT, METRICS_PORT and HTTP_PORT must differ")
	}

	switch c.ActivityDBDriver {
	case activity.DriverPostgres, activity.DriverSQLite:
	default:
		return fmt.Errorf("invalid ACTIVITY_DB_DRIVER: %q (must be %s or %s)",
			c.ActivityDBDriver, activity.DriverPostgres, activity.DriverSQLite)
	}
	if c.ActivityDBDSN == "" {
		return fmt.Errorf("ACTIVITY_DB_DSN is required")
	}

	if c.CycleInterval <= 0 || c.DispatchInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL and DISPATCH_INTERVAL must be positive")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("invalid WORKER_COUNT: %d (must be at least 1)", c.WorkerCount)
	}
	if c.LookbackWindow <= 0 || c.ObservationWindow <= 0 {
		return fmt.Errorf("LOOKBACK_WINDOW and OBSERVATION_WINDOW must be positive")
	}
	if c.MaxScheduleAttempts < 1 {
		return fmt.Errorf("invalid MAX_SCHEDULE_ATTEMPTS: %d (must be at least 1)", c.MaxScheduleAttempts)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OpenAIRPS < 0 {
		return fmt.Errorf("invalid OPENAI_RPS: %v (must be non-negative)", c.OpenAIRPS)
	}

	if _, err := c.Constraints(); err != nil {
		return err
	}

	if c.RewardItemID != "" && !c.AccelByteEnabled() {
		logrus.Warn("REWARD_ITEM_ID is set but AccelByte credentials are missing; rewards are disabled")
	}

	return nil
}

// Location resolves TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Constraints builds the global scheduling bounds from the environment.
func (c *Config) Constraints() (scheduler.Constraints, error) {
	cons := scheduler.DefaultConstraints()

	quiet, err := scheduler.ParseQuietHours(c.QuietHoursStart, c.QuietHoursEnd)
	if err != nil {
		return cons, fmt.Errorf("invalid QUIET_HOURS_START/END: %w", err)
	}
	loc, err := c.Location()
	if err != nil {
		return cons, err
	}
	if c.MaxPerDay < 0 {
		return cons, fmt.Errorf("invalid MAX_PER_DAY: %d (must be non-negative)", c.MaxPerDay)
	}

	cons.QuietHours = quiet
	cons.Location = loc
	cons.MinGap = c.MinGap
	cons.MaxPerDay = c.MaxPerDay
	if err := cons.Validate(); err != nil {
		return cons, fmt.Errorf("invalid scheduling constraints: %w", err)
	}
	return cons, nil
}
