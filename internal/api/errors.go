package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"duet/internal/models"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, details ...string) {
	writeJSON(w, status, ErrorResponse{
		Message: message,
		Status:  status,
		Details: details,
	})
}

// writeErr maps a domain error to its status code.
func writeErr(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrProtocol), errors.Is(err, models.ErrAmbiguousParticipant):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		slog.Error(message, "error", err)
		writeError(w, status, message)
		return
	}
	writeError(w, status, message, err.Error())
}
