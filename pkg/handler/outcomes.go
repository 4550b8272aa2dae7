package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
)

// OutcomeHandler serves the outcome feed consumed by external retraining.
type OutcomeHandler struct {
	outcomes OutcomeLister
}

func NewOutcomeHandler(outcomes OutcomeLister) *OutcomeHandler {
	return &OutcomeHandler{outcomes: outcomes}
}

type outcomeListResponse struct {
	Outcomes []*intervention.Outcome `json:"outcomes"`
}

// HandleList returns outcomes newest first.
// GET /v1/outcomes?user_id=&since=&limit=
func (h *OutcomeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := intervention.OutcomeQuery{
		UserID: r.URL.Query().Get("user_id"),
		Limit:  DefaultOutcomeLimit,
	}
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC3339: "+s)
			return
		}
		q.Since = t
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		if n > MaxOutcomeLimit {
			n = MaxOutcomeLimit
		}
		q.Limit = n
	}

	outcomes, err := h.outcomes.List(r.Context(), q)
	if err != nil {
		engineErrorToHTTP(w, fmt.Errorf("%w: %v", intervention.ErrExternalDependency, err))
		return
	}
	if outcomes == nil {
		outcomes = []*intervention.Outcome{}
	}
	writeJSON(w, http.StatusOK, outcomeListResponse{Outcomes: outcomes})
}
