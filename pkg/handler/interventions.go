package handler

import (
	"fmt"
	"net/http"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// InterventionHandler serves a user's interventions.
type InterventionHandler struct {
	store     InterventionReader
	canceller Canceller
}

func NewInterventionHandler(store InterventionReader, canceller Canceller) *InterventionHandler {
	return &InterventionHandler{store: store, canceller: canceller}
}

type interventionListResponse struct {
	UserID        string                    `json:"userId"`
	Interventions []*intervention.Scheduled `json:"interventions"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type cancelAllResponse struct {
	Cancelled []*intervention.Scheduled `json:"cancelled"`
}

// HandleList returns the user's intervention set, optionally filtered by
// status.
// GET /v1/users/{userID}/interventions?status=pending
func (h *InterventionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	set, err := h.store.Load(r.Context(), userID)
	if err != nil {
		engineErrorToHTTP(w, fmt.Errorf("%w: %v", intervention.ErrExternalDependency, err))
		return
	}

	status := intervention.Status(r.URL.Query().Get("status"))
	out := make([]*intervention.Scheduled, 0, len(set.Interventions))
	for _, iv := range set.Interventions {
		if status == "" || iv.Status == status {
			out = append(out, iv)
		}
	}
	writeJSON(w, http.StatusOK, interventionListResponse{UserID: userID, Interventions: out})
}

// HandleCancel cancels one pending intervention.
// POST /v1/users/{userID}/interventions/{interventionID}/cancel
func (h *InterventionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "interventionID")

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = DefaultCancelReason
	}

	cancelled, err := h.canceller.Cancel(r.Context(), userID, id, req.Reason)
	if err != nil {
		engineErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// HandleCancelAll cancels every pending intervention of the user, for
// example when a human coach takes over.
// POST /v1/users/{userID}/interventions/cancel
func (h *InterventionHandler) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = DefaultCancelAllReason
	}

	cancelled, err := h.canceller.CancelAll(r.Context(), userID, req.Reason)
	if err != nil {
		engineErrorToHTTP(w, err)
		return
	}
	if cancelled == nil {
		cancelled = []*intervention.Scheduled{}
	}
	logrus.Infof("cancel-all for user %s (%s): %d cancelled", userID, req.Reason, len(cancelled))
	writeJSON(w, http.StatusOK, cancelAllResponse{Cancelled: cancelled})
}
