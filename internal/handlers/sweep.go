package handlers

import (
	"net/http"
	"time"

	"squadup-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// SweepHandler exposes the lifecycle sweep to a trusted internal caller, for
// external schedulers and operational re-runs. The regular cadence comes
// from the in-process cron.
type SweepHandler struct {
	lifecycle *services.LifecycleService
}

// NewSweepHandler creates a new sweep handler
func NewSweepHandler(lifecycle *services.LifecycleService) *SweepHandler {
	return &SweepHandler{lifecycle: lifecycle}
}

// RunSweep handles POST /internal/sweep
func (h *SweepHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if err := h.lifecycle.RunSweep(r.Context(), now); err != nil {
		log.Error().Err(err).Msg("Sweep failed")
		respondError(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]time.Time{"ran_at": now})
}
