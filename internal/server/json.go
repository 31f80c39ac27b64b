package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/globetrotter/internal/globetrotter"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// classify maps a domain error to an HTTP status and a short code used on
// the WebSocket channel.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, globetrotter.ErrUpstream):
		return http.StatusBadGateway, "upstream"
	case errors.Is(err, globetrotter.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, globetrotter.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, globetrotter.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeDomainError reports err to the client. Server-side failures are logged
// and their details hidden.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}
