// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/internal/bootstrap"
	"github.com/AccelByte/extend-proactive-intervention/internal/config"
	"github.com/AccelByte/extend-proactive-intervention/internal/server"
	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/AccelByte/extend-proactive-intervention/pkg/handler"
	"github.com/AccelByte/extend-proactive-intervention/pkg/pipeline"
	"github.com/AccelByte/extend-proactive-intervention/pkg/service"
	"github.com/cenkalti/backoff/v4"

	"github.com/AccelByte/accelbyte-go-sdk/services-api/pkg/factory"
	"github.com/AccelByte/accelbyte-go-sdk/services-api/pkg/service/iam"
	"github.com/AccelByte/accelbyte-go-sdk/services-api/pkg/service/platform"
	"github.com/AccelByte/accelbyte-go-sdk/services-api/pkg/service/social"
	sdkAuth "github.com/AccelByte/accelbyte-go-sdk/services-api/pkg/utils/auth"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	grpcServer        *server.GRPCServer
	metricsServer     *server.MetricsServer
	httpServer        *server.HTTPServer
	redisClient       *redis.Client
	activityDB        *sql.DB
	channel           *service.KafkaChannel
	runner            *pipeline.Runner
	shutdownTelemetry func(context.Context) error

	// AccelByte SDK repositories (shared across all services)
	configRepo *sdkAuth.ConfigRepositoryImpl
	tokenRepo  *sdkAuth.TokenRepositoryImpl
}

// New creates and initializes a new application instance.
//
// ============================================================
// DEVELOPER: Application initialization order
// ============================================================
// Components are initialized in dependency order:
// 1. AccelByte SDK (optional, enables rewards and stats)
// 2. Redis (per-user intervention state)
// 3. Activity store (Postgres or SQLite)
// 4. External services (language generation, delivery)
// 5. Engine components (analyzer → triggers/risk → timing → scheduler)
// 6. Servers (gRPC health, HTTP API, metrics)
// 7. Telemetry (OpenTelemetry tracing)
//
// If you add new external dependencies, initialize them in
// step 4 before bootstrapping engine components.
// ============================================================
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	// ============================================================
	// Step 1: Initialize Client Auth using AccelByte SDK
	// ============================================================
	if cfg.AccelByteEnabled() {
		if err := app.initAccelByteSDKAuth(); err != nil {
			return nil, fmt.Errorf("failed to init AccelByte SDK: %w", err)
		}
	} else {
		logrus.Info("AccelByte credentials not set, reward and stat hooks disabled")
	}

	// ============================================================
	// Step 2: Initialize Redis
	// ============================================================
	if err := app.initRedis(ctx); err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	stores := bootstrap.InitStores(app.redisClient)

	// ============================================================
	// Step 3: Initialize activity store
	// ============================================================
	activityStore, db, err := bootstrap.InitActivityStore(ctx, cfg.ActivityDBDriver, cfg.ActivityDBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init activity store: %w", err)
	}
	app.activityDB = db

	// ============================================================
	// Step 4: Initialize external services
	// ============================================================
	// DEVELOPER: Add custom external service initialization here.
	// ============================================================
	generator := app.initGenerator()
	app.channel = service.NewKafkaChannel(
		service.NewKafkaWriter(cfg.KafkaBrokers),
		service.KafkaChannelConfig{TopicPrefix: cfg.KafkaTopicPrefix},
	)
	logrus.Infof("initialized Kafka delivery channel (brokers: %v)", cfg.KafkaBrokers)

	var rewards dispatch.RewardGranter
	var stats dispatch.StatUpdater
	if cfg.AccelByteEnabled() {
		if cfg.RewardItemID != "" {
			rewards = app.initItemGranter()
		}
		if cfg.StatCode != "" {
			stats = app.initStatisticService()
		}
	}

	// ============================================================
	// Step 5: Bootstrap engine components
	// ============================================================
	constraints, err := cfg.Constraints()
	if err != nil {
		return nil, err
	}
	engine, err := bootstrap.InitEngine(bootstrap.EngineConfig{
		CatalogPath:         cfg.CatalogPath,
		Constraints:         constraints,
		WorkerCount:         cfg.WorkerCount,
		Lookback:            cfg.LookbackWindow,
		MaxScheduleAttempts: cfg.MaxScheduleAttempts,
		ObservationWindow:   cfg.ObservationWindow,
	}, stores, activityStore)
	if err != nil {
		return nil, fmt.Errorf("failed to init engine: %w", err)
	}

	dispatcher := bootstrap.InitDispatcher(stores, generator, app.channel, rewards, stats, bootstrap.DeliveryConfig{
		RewardItemID: cfg.RewardItemID,
		StatCode:     cfg.StatCode,
	})

	app.runner = pipeline.NewRunner(engine.Manager, dispatcher, engine.Tracker, cfg.CycleInterval, cfg.DispatchInterval)

	// ============================================================
	// Step 6: Setup servers
	// ============================================================
	app.grpcServer = server.NewGRPCServer(cfg.GRPCPort, service.NewHealthChecker(app.redisClient))
	if err := app.grpcServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, cfg.CORSAllowedOrigins,
		handler.NewInterventionHandler(stores.Interventions, engine.Scheduler),
		handler.NewPreferenceHandler(stores.Preferences, engine.Scheduler),
		handler.NewOutcomeHandler(stores.Outcomes),
	)
	if err := app.httpServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	// ============================================================
	// Step 7: Setup telemetry
	// ============================================================
	shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	app.shutdownTelemetry = shutdownTelemetry

	logrus.Info("application initialized successfully")

	return app, nil
}

// initAccelByteSDKAuth initializes the AccelByte SDK auth by performing client login.
//
// ============================================================
// DEVELOPER: AccelByte Client Auth configuration
// ============================================================
// The Client Auth is configured via environment variables:
// - AB_BASE_URL: AccelByte platform base URL
// - AB_CLIENT_ID: OAuth2 client ID
// - AB_CLIENT_SECRET: OAuth2 client secret
// - AB_NAMESPACE: Game namespace
//
// The SDK uses automatic token refresh (RefreshRate: 0.8 = 80% of TTL).
//
// IMPORTANT: The configRepo and tokenRepo are stored in the App struct
// and must be reused by all AccelByte services to share authentication.
// ============================================================
func (a *App) initAccelByteSDKAuth() error {
	a.configRepo = sdkAuth.DefaultConfigRepositoryImpl()
	a.tokenRepo = sdkAuth.DefaultTokenRepositoryImpl()
	refreshRepo := &sdkAuth.RefreshTokenImpl{AutoRefresh: true, RefreshRate: 0.8}

	oauthService := iam.OAuth20Service{
		Client:                 factory.NewIamClient(a.configRepo),
		ConfigRepository:       a.configRepo,
		TokenRepository:        a.tokenRepo,
		RefreshTokenRepository: refreshRepo,
	}

	clientID := a.configRepo.GetClientId()
	clientSecret := a.configRepo.GetClientSecret()

	if err := oauthService.LoginClient(&clientID, &clientSecret); err != nil {
		return fmt.Errorf("unable to login using clientId and clientSecret: %w", err)
	}

	logrus.Info("AccelByte SDK initialized and authenticated")
	return nil
}

// initRedis initializes the Redis client.
func (a *App) initRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         a.cfg.RedisHost + ":" + a.cfg.RedisPort,
		Password:     a.cfg.RedisPassword,
		DB:           0, // use default DB
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	maxRetries := backoff.WithMaxRetries(b, uint64(a.cfg.RedisMaxRetries))

	err := backoff.Retry(
		func() error {
			_, err := client.Ping(ctx).Result()
			if err != nil {
				logrus.Warnf("Redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithContext(maxRetries, ctx),
	)

	if err != nil {
		client.Close()
		return err
	}

	a.redisClient = client
	logrus.Info("Redis client initialized")
	return nil
}

// initGenerator creates the OpenAI-compatible message generator.
func (a *App) initGenerator() *service.OpenAIGenerator {
	if a.cfg.OpenAIAPIKey == "" {
		logrus.Warn("OPENAI_API_KEY is not set, message generation will fail until it is configured")
	}
	client := service.NewOpenAIClient(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL)
	return service.NewOpenAIGenerator(client, service.OpenAIGeneratorConfig{
		Model:             a.cfg.OpenAIModel,
		RequestsPerSecond: a.cfg.OpenAIRPS,
	})
}

// ============================================================
// DEVELOPER: Add custom service initializers here
// ============================================================
// IMPORTANT: Always reuse a.configRepo and a.tokenRepo to share the
// authenticated session. Do NOT call DefaultConfigRepositoryImpl() or
// DefaultTokenRepositoryImpl() again - this creates new empty instances!
// ============================================================

// initItemGranter creates an entitlement service for celebration rewards.
//
// IMPORTANT: Reuses a.configRepo and a.tokenRepo to share the authenticated
// session from initAccelByteSDKAuth(). Do NOT create new repository instances.
func (a *App) initItemGranter() *service.EntitlementService {
	fulfillmentService := &platform.FulfillmentService{
		Client:           factory.NewPlatformClient(a.configRepo),
		ConfigRepository: a.configRepo,
		TokenRepository:  a.tokenRepo,
	}

	return service.NewEntitlementService(fulfillmentService, service.EntitlementServiceConfig{
		Namespace: a.cfg.ABNamespace,
	})
}

// initStatisticService initializes the statistic service client that counts
// delivered interventions.
//
// IMPORTANT: Reuses a.configRepo and a.tokenRepo to share the authenticated
// session from initAccelByteSDKAuth(). Do NOT create new repository instances.
func (a *App) initStatisticService() *service.StatisticService {
	statisticService := &social.UserStatisticService{
		Client:           factory.NewSocialClient(a.configRepo),
		ConfigRepository: a.configRepo,
		TokenRepository:  a.tokenRepo,
	}

	return service.NewStatisticService(statisticService,
		service.StatisticServiceConfig{
			Namespace: a.cfg.ABNamespace,
		})
}
