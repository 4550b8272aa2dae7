// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import "time"

// Config holds all application configuration loaded from environment variables.
// This struct uses github.com/caarlos0/env for automatic environment variable parsing.
//
// ============================================================
// DEVELOPER: Add new configuration fields here.
// ============================================================
// Use struct tags to define:
// - `env:"VAR_NAME"` - the environment variable name
// - `env:",required"` - make it required
// - `envDefault:"value"` - set a default value
//
// After adding fields here, update loader.go Validate() if custom
// validation is needed.
// ============================================================
type Config struct {
	// ============================================================
	// Server configuration
	// ============================================================
	GRPCPort           int      `env:"GRPC_PORT" envDefault:"6565"`
	MetricsPort        int      `env:"METRICS_PORT" envDefault:"8080"`
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8000"`
	Environment        string   `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName        string   `env:"SERVICE_NAME" envDefault:"ProactiveInterventionEngine"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// ============================================================
	// AccelByte configuration (optional, enables rewards and stats)
	// ============================================================
	ABNamespace    string `env:"AB_NAMESPACE" envDefault:"accelbyte"`
	ABBaseURL      string `env:"AB_BASE_URL"`
	ABClientID     string `env:"AB_CLIENT_ID"`
	ABClientSecret string `env:"AB_CLIENT_SECRET"`
	RewardItemID   string `env:"REWARD_ITEM_ID"`
	StatCode       string `env:"STAT_CODE"`

	// ============================================================
	// Redis configuration
	// ============================================================
	RedisHost       string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisMaxRetries int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`

	// ============================================================
	// Activity store configuration
	// ============================================================
	ActivityDBDriver string `env:"ACTIVITY_DB_DRIVER" envDefault:"sqlite"`
	ActivityDBDSN    string `env:"ACTIVITY_DB_DSN" envDefault:"file:activity.db?_pragma=busy_timeout(5000)"`

	// ============================================================
	// Engine configuration
	// ============================================================
	CatalogPath         string        `env:"CATALOG_PATH" envDefault:"config/catalog.yaml"`
	CycleInterval       time.Duration `env:"CYCLE_INTERVAL" envDefault:"15m"`
	DispatchInterval    time.Duration `env:"DISPATCH_INTERVAL" envDefault:"1m"`
	WorkerCount         int           `env:"WORKER_COUNT" envDefault:"8"`
	LookbackWindow      time.Duration `env:"LOOKBACK_WINDOW" envDefault:"168h"`
	ObservationWindow   time.Duration `env:"OBSERVATION_WINDOW" envDefault:"48h"`
	MaxScheduleAttempts int           `env:"MAX_SCHEDULE_ATTEMPTS" envDefault:"3"`

	// ============================================================
	// Scheduling constraints
	// ============================================================
	MinGap          time.Duration `env:"MIN_GAP" envDefault:"4h"`
	QuietHoursStart string        `env:"QUIET_HOURS_START" envDefault:"22:00"`
	QuietHoursEnd   string        `env:"QUIET_HOURS_END" envDefault:"07:00"`
	Timezone        string        `env:"TIMEZONE" envDefault:"UTC"`
	MaxPerDay       int           `env:"MAX_PER_DAY" envDefault:"3"`

	// ============================================================
	// Delivery configuration
	// ============================================================
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"intervention"`

	// ============================================================
	// Language generation configuration
	// ============================================================
	OpenAIAPIKey  string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `env:"OPENAI_BASE_URL"`
	OpenAIModel   string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIRPS     float64 `env:"OPENAI_RPS" envDefault:"0"`

	// ============================================================
	// DEVELOPER: Add your custom configuration fields below
	// ============================================================
}

// AccelByteEnabled reports whether client credentials are present.
func (c *Config) AccelByteEnabled() bool {
	return c.ABBaseURL != "" && c.ABClientID != "" && c.ABClientSecret != ""
}
