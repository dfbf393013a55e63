package handlers

import (
	"encoding/json"
	"net/http"

	"squadup-backend/internal/middleware"
	"squadup-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// EventHandler handles event-import HTTP requests
type EventHandler struct {
	importer *services.ImporterService
}

// NewEventHandler creates a new event handler
func NewEventHandler(importer *services.ImporterService) *EventHandler {
	return &EventHandler{importer: importer}
}

// ImportEventRequest represents the request body for importing an event
type ImportEventRequest struct {
	URL string `json:"url"`
}

// ImportEvent handles POST /api/v1/events/import
func (h *EventHandler) ImportEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req ImportEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		respondError(w, "url is required", http.StatusBadRequest)
		return
	}

	event, err := h.importer.ImportEvent(ctx, req.URL)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("url", req.URL).Msg("Failed to import event")
		respondError(w, "Failed to import event", http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, event)
}

// GetEvent handles GET /api/v1/events/{event_id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := chi.URLParam(r, "event_id")

	event, err := h.importer.GetEvent(ctx, eventID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, event)
}
