// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

// Run starts the application and blocks until a shutdown signal is received.
func (a *App) Run(ctx context.Context) error {
	// Start servers
	if err := a.grpcServer.Start(ctx); err != nil {
		return err
	}
	if err := a.httpServer.Start(ctx); err != nil {
		return err
	}
	if err := a.metricsServer.Start(ctx); err != nil {
		return err
	}

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the evaluation, dispatch and observation loops
	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- a.runner.Run(ctx)
	}()

	logrus.Info("application started successfully")

	select {
	case <-ctx.Done():
		logrus.Info("shutdown signal received")
		select {
		case <-runnerDone:
		case <-time.After(shutdownTimeout):
			logrus.Warn("engine runner did not stop in time")
		}
	case err := <-runnerDone:
		if err != nil {
			logrus.Errorf("engine runner stopped: %v", err)
		}
	}
	stop()

	// The signal context is already done; give shutdown its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down all application components.
//
// ============================================================
// DEVELOPER: Shutdown order is critical
// ============================================================
// Components are shut down in reverse dependency order:
// 1. Stop accepting new requests (gRPC, HTTP and metrics servers)
// 2. Close external connections (Kafka, activity database, Redis)
// 3. Flush telemetry data (OpenTelemetry)
//
// The runner loops stop when the Run context is cancelled, before
// Shutdown is called, so no cycle is writing to Redis here.
//
// IMPORTANT: Shutdown errors are logged but don't stop the
// shutdown sequence. Each component gets a chance to clean up.
// ============================================================
func (a *App) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down application...")

	// ============================================================
	// Step 1: Shutdown servers (stop accepting new requests)
	// ============================================================
	if err := a.grpcServer.Shutdown(ctx); err != nil {
		logrus.Errorf("gRPC server shutdown error: %v", err)
	}
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		logrus.Errorf("metrics server shutdown error: %v", err)
	}

	// ============================================================
	// Step 2: Close external connections
	// ============================================================
	// DEVELOPER: Add custom service cleanup here
	// ============================================================
	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			logrus.Errorf("Kafka channel close error: %v", err)
		}
	}
	if a.activityDB != nil {
		if err := a.activityDB.Close(); err != nil {
			logrus.Errorf("activity database close error: %v", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logrus.Errorf("Redis close error: %v", err)
		}
	}

	// ============================================================
	// Step 3: Flush telemetry data
	// ============================================================
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			logrus.Errorf("telemetry shutdown error: %v", err)
		}
	}

	logrus.Info("application shutdown complete")
	return nil
}
