package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"squadup-backend/internal/middleware"
	"squadup-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SquadHandler handles squad formation, membership, chat and date-lock
// HTTP requests
type SquadHandler struct {
	formation  *services.FormationService
	membership *services.MembershipService
	lifecycle  *services.LifecycleService
}

// NewSquadHandler creates a new squad handler
func NewSquadHandler(formation *services.FormationService, membership *services.MembershipService, lifecycle *services.LifecycleService) *SquadHandler {
	return &SquadHandler{
		formation:  formation,
		membership: membership,
		lifecycle:  lifecycle,
	}
}

// FormSquadRequest represents the request body for forming a squad
type FormSquadRequest struct {
	CheckID   *string  `json:"check_id"`
	EventID   *string  `json:"event_id"`
	MemberIDs []string `json:"member_ids"`
}

// FormSquad handles POST /api/v1/squads
func (h *SquadHandler) FormSquad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req FormSquadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CheckID == nil && req.EventID == nil {
		respondError(w, "check_id or event_id is required", http.StatusBadRequest)
		return
	}

	squad, err := h.formation.FormSquad(ctx, userID, services.FormSquadInput{
		CheckID:   req.CheckID,
		EventID:   req.EventID,
		MemberIDs: req.MemberIDs,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to form squad")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, squad)
}

// GetSquad handles GET /api/v1/squads/{squad_id}
func (h *SquadHandler) GetSquad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	squadID := chi.URLParam(r, "squad_id")

	state, squad, err := h.lifecycle.StateOf(ctx, squadID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	members, err := h.membership.Members(ctx, squadID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"squad":   squad,
		"state":   state,
		"members": members,
	})
}

// Join handles POST /api/v1/squads/{squad_id}/join
func (h *SquadHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	squadID := chi.URLParam(r, "squad_id")

	if err := h.membership.Join(ctx, squadID, userID); err != nil {
		log.Error().Err(err).Str("squad_id", squadID).Str("user_id", userID).Msg("Failed to join squad")
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave handles POST /api/v1/squads/{squad_id}/leave
func (h *SquadHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	squadID := chi.URLParam(r, "squad_id")

	if err := h.membership.Leave(ctx, squadID, userID); err != nil {
		log.Error().Err(err).Str("squad_id", squadID).Str("user_id", userID).Msg("Failed to leave squad")
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDateRequest represents the request body for locking a date
type SetDateRequest struct {
	Date string  `json:"date"`
	Time *string `json:"time"`
}

// SetDate handles POST /api/v1/squads/{squad_id}/date
func (h *SquadHandler) SetDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	squadID := chi.URLParam(r, "squad_id")

	var req SetDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		respondError(w, "date is required", http.StatusBadRequest)
		return
	}

	expiresAt, err := h.lifecycle.SetDate(ctx, squadID, userID, req.Date, req.Time)
	if err != nil {
		log.Error().Err(err).Str("squad_id", squadID).Str("user_id", userID).Msg("Failed to set date")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]time.Time{"expires_at": expiresAt})
}

// ClearDate handles DELETE /api/v1/squads/{squad_id}/date
func (h *SquadHandler) ClearDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	squadID := chi.URLParam(r, "squad_id")

	if err := h.lifecycle.ClearDate(ctx, squadID, userID); err != nil {
		log.Error().Err(err).Str("squad_id", squadID).Str("user_id", userID).Msg("Failed to clear date")
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExtendRequest represents the request body for extending a squad
type ExtendRequest struct {
	Days int `json:"days"`
}

// Extend handles POST /api/v1/squads/{squad_id}/extend
func (h *SquadHandler) Extend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	squadID := chi.URLParam(r, "squad_id")

	var req ExtendRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	expiresAt, err := h.lifecycle.Extend(ctx, squadID, userID, req.Days)
	if err != nil {
		log.Error().Err(err).Str("squad_id", squadID).Str("user_id", userID).Msg("Failed to extend squad")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]time.Time{"expires_at": expiresAt})
}

// PostMessageRequest represents the request body for posting a chat message
type PostMessageRequest struct {
	Text string `json:"text"`
}

// PostMessage handles POST /api/v1/squads/{squad_id}/messages
func (h *SquadHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	squadID := chi.URLParam(r, "squad_id")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, "text is required", http.StatusBadRequest)
		return
	}

	msg, err := h.membership.PostMessage(ctx, squadID, userID, req.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

// ListMessages handles GET /api/v1/squads/{squad_id}/messages
func (h *SquadHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	squadID := chi.URLParam(r, "squad_id")

	msgs, err := h.membership.ListMessages(ctx, squadID, userID, 0)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}
