package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"squadup-backend/internal/models"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// respondServiceError maps the service error taxonomy onto HTTP status
// codes. Anything outside the taxonomy is an internal error and the detail
// stays out of the response.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		respondError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, models.ErrSquadFull),
		errors.Is(err, models.ErrCapacityExceeded),
		errors.Is(err, models.ErrConflict):
		respondError(w, err.Error(), http.StatusConflict)
	default:
		respondError(w, "internal error", http.StatusInternalServerError)
	}
}
