package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AccelByte/extend-proactive-intervention/pkg/intervention"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("writeJSON encode error: %v", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// userIDParam extracts the userID path parameter.
func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "userID is required")
		return "", false
	}
	return userID, true
}

// engineErrorToHTTP maps engine errors to HTTP responses.
func engineErrorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intervention.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, intervention.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, intervention.ErrConfiguration):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, intervention.ErrExternalDependency):
		logrus.Errorf("dependency error: %v", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "storage temporarily unavailable")
	default:
		logrus.Errorf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
