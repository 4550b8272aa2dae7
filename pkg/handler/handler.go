// Package handler exposes the engine's read and cancel API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/go-chi/chi/v5"
)

const (
	// Outcome feed paging
	DefaultOutcomeLimit = 100
	MaxOutcomeLimit     = 500

	// Reason recorded when a request does not give one
	DefaultCancelReason    = intervention.ReasonManual
	DefaultCancelAllReason = intervention.ReasonCoachTakeover
)

// InterventionReader loads a user's intervention set.
type InterventionReader interface {
	Load(ctx context.Context, userID string) (*intervention.UserSet, error)
}

// Canceller cancels pending interventions.
type Canceller interface {
	Cancel(ctx context.Context, userID, id, reason string) (*intervention.Scheduled, error)
	CancelAll(ctx context.Context, userID, reason string) ([]*intervention.Scheduled, error)
}

// PreferenceStore reads and writes per-user delivery preferences.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*intervention.Preferences, error)
	Set(ctx context.Context, prefs *intervention.Preferences) error
}

// OutcomeLister serves the outcome feed.
type OutcomeLister interface {
	List(ctx context.Context, q intervention.OutcomeQuery) ([]*intervention.Outcome, error)
}

// RegisterRoutes mounts every endpoint under /v1.
func RegisterRoutes(r chi.Router, interventions *InterventionHandler, preferences *PreferenceHandler, outcomes *OutcomeHandler) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/interventions", interventions.HandleList)
			r.Post("/interventions/cancel", interventions.HandleCancelAll)
			r.Post("/interventions/{interventionID}/cancel", interventions.HandleCancel)

			r.Get("/preferences", preferences.HandleGet)
			r.Put("/preferences", preferences.HandlePut)
		})
		r.Get("/outcomes", outcomes.HandleList)
	})
}

// NewRouter builds a router with all routes registered.
func NewRouter(interventions *InterventionHandler, preferences *PreferenceHandler, outcomes *OutcomeHandler) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, interventions, preferences, outcomes)
	return r
}
