package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// PreferenceHandler serves per-user delivery preferences.
type PreferenceHandler struct {
	store     PreferenceStore
	canceller Canceller
	now       func() time.Time
}

func NewPreferenceHandler(store PreferenceStore, canceller Canceller) *PreferenceHandler {
	return &PreferenceHandler{store: store, canceller: canceller, now: time.Now}
}

type preferenceResponse struct {
	Preferences *intervention.Preferences `json:"preferences"`
	Cancelled   int                       `json:"cancelled"`
}

// HandleGet returns the user's preferences. Users without stored
// preferences get an empty set, meaning engine defaults.
// GET /v1/users/{userID}/preferences
func (h *PreferenceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	prefs, err := h.store.Get(r.Context(), userID)
	if err != nil {
		engineErrorToHTTP(w, fmt.Errorf("%w: %v", intervention.ErrExternalDependency, err))
		return
	}
	if prefs == nil {
		prefs = &intervention.Preferences{UserID: userID}
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandlePut replaces the user's preferences. Unsubscribing cancels every
// pending intervention immediately.
// PUT /v1/users/{userID}/preferences
func (h *PreferenceHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var prefs intervention.Preferences
	if err := decodeJSON(r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return
	}
	prefs.UserID = userID
	prefs.UpdatedAt = h.now()

	if err := h.store.Set(r.Context(), &prefs); err != nil {
		engineErrorToHTTP(w, err)
		return
	}

	resp := preferenceResponse{Preferences: &prefs}
	if prefs.Unsubscribed {
		cancelled, err := h.canceller.CancelAll(r.Context(), userID, intervention.ReasonUserUnsubscribed)
		if err != nil {
			engineErrorToHTTP(w, err)
			return
		}
		resp.Cancelled = len(cancelled)
	}
	writeJSON(w, http.StatusOK, resp)
}
