package handlers

import (
	"encoding/json"
	"net/http"

	"squadup-backend/internal/middleware"
	"squadup-backend/internal/models"
	"squadup-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CheckHandler handles interest-check HTTP requests
type CheckHandler struct {
	checkService *services.CheckService
}

// NewCheckHandler creates a new check handler
func NewCheckHandler(checkService *services.CheckService) *CheckHandler {
	return &CheckHandler{checkService: checkService}
}

// CreateCheckRequest represents the request body for creating a check
type CreateCheckRequest struct {
	Text           string  `json:"text"`
	ExpiresInHours *int    `json:"expires_in_hours"`
	MaxSquadSize   int     `json:"max_squad_size"`
	EventDate      *string `json:"event_date"`
	EventTime      *string `json:"event_time"`
}

// CreateCheck handles POST /api/v1/checks
func (h *CheckHandler) CreateCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		respondError(w, "text is required", http.StatusBadRequest)
		return
	}

	check, err := h.checkService.CreateCheck(ctx, userID, services.CreateCheckInput{
		Text:           req.Text,
		ExpiresInHours: req.ExpiresInHours,
		MaxSquadSize:   req.MaxSquadSize,
		EventDate:      req.EventDate,
		EventTime:      req.EventTime,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create check")
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Info().Str("check_id", check.ID).Str("user_id", userID).Msg("Check created")
	respondJSON(w, http.StatusOK, check)
}

// ListActive handles GET /api/v1/checks
func (h *CheckHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	views, err := h.checkService.ListActive(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list checks")
		respondServiceError(w, err)
		return
	}
	if views == nil {
		views = []*services.CheckView{}
	}
	respondJSON(w, http.StatusOK, views)
}

// RespondRequest represents the request body for responding to a check
type RespondRequest struct {
	Response string `json:"response"`
}

// Respond handles POST /api/v1/checks/{check_id}/respond
func (h *CheckHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	checkID := chi.URLParam(r, "check_id")

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	kind := models.ResponseKind(req.Response)
	if kind != models.ResponseDown && kind != models.ResponseMaybe {
		respondError(w, "response must be \"down\" or \"maybe\"", http.StatusBadRequest)
		return
	}

	if err := h.checkService.Respond(ctx, checkID, userID, kind); err != nil {
		log.Error().Err(err).Str("check_id", checkID).Str("user_id", userID).Msg("Failed to respond")
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Withdraw handles DELETE /api/v1/checks/{check_id}/respond
func (h *CheckHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	checkID := chi.URLParam(r, "check_id")

	if err := h.checkService.WithdrawResponse(ctx, checkID, userID); err != nil {
		log.Error().Err(err).Str("check_id", checkID).Str("user_id", userID).Msg("Failed to withdraw response")
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditCheckRequest represents the request body for editing a check
type EditCheckRequest struct {
	Text         *string `json:"text"`
	MaxSquadSize *int    `json:"max_squad_size"`
	EventDate    *string `json:"event_date"`
	EventTime    *string `json:"event_time"`
}

// EditCheck handles PATCH /api/v1/checks/{check_id}
func (h *CheckHandler) EditCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	checkID := chi.URLParam(r, "check_id")

	var req EditCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	check, err := h.checkService.EditCheck(ctx, checkID, userID, services.CheckPatch{
		Text:         req.Text,
		MaxSquadSize: req.MaxSquadSize,
		EventDate:    req.EventDate,
		EventTime:    req.EventTime,
	})
	if err != nil {
		log.Error().Err(err).Str("check_id", checkID).Str("user_id", userID).Msg("Failed to edit check")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, check)
}

// DeleteCheck handles DELETE /api/v1/checks/{check_id}
func (h *CheckHandler) DeleteCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	checkID := chi.URLParam(r, "check_id")

	if err := h.checkService.DeleteCheck(ctx, checkID, userID); err != nil {
		log.Error().Err(err).Str("check_id", checkID).Str("user_id", userID).Msg("Failed to delete check")
		respondServiceError(w, err)
		return
	}

	log.Info().Str("check_id", checkID).Str("user_id", userID).Msg("Check deleted")
	w.WriteHeader(http.StatusNoContent)
}
