package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeServerError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, envelope{"success": false, "message": "Server error"})
}

// writeDomainError maps core errors to the API's status codes and messages.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "message": notFoundMsg})
	case errors.Is(err, domain.ErrCodeConflict):
		writeJSON(w, http.StatusBadRequest, envelope{"success": false, "message": "Short code already in use"})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, envelope{"success": false, "message": err.Error()})
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeServerError(w)
	}
}
