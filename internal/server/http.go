// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const httpRequestTimeout = 30 * time.Second

// HTTPServer serves the intervention read/cancel API.
type HTTPServer struct {
	server         *http.Server
	port           int
	allowedOrigins []string
	interventions  *handler.InterventionHandler
	preferences    *handler.PreferenceHandler
	outcomes       *handler.OutcomeHandler
}

// NewHTTPServer creates a new HTTP API server instance.
func NewHTTPServer(
	port int,
	allowedOrigins []string,
	interventions *handler.InterventionHandler,
	preferences *handler.PreferenceHandler,
	outcomes *handler.OutcomeHandler,
) *HTTPServer {
	return &HTTPServer{
		port:           port,
		allowedOrigins: allowedOrigins,
		interventions:  interventions,
		preferences:    preferences,
		outcomes:       outcomes,
	}
}

// Setup builds the router and its middleware chain.
//
// ============================================================
// DEVELOPER: HTTP API configuration
// ============================================================
// Routes live in pkg/handler. Add cross-cutting middleware
// (auth, rate limiting) to the chain below.
// ============================================================
func (s *HTTPServer) Setup() error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(httpRequestTimeout))
	r.Use(s.corsHandler().Handler)

	handler.RegisterRoutes(r, s.interventions, s.preferences, s.outcomes)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Handler exposes the configured router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) corsHandler() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	})
}

// requestLogger logs one line per request through logrus.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logrus.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start).String(),
			"requestID": middleware.GetReqID(r.Context()),
		}).Info("http request")
	})
}

// Start begins serving the API.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("HTTP API listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("HTTP server stopped")
	return nil
}
