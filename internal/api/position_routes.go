package api

import (
	"net/http"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
)

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.OpenPositions(r.Context())
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("fetch positions")
		writeError(w, http.StatusInternalServerError, "failed to fetch positions")
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// handleUnflag clears a position's exit failures so the monitor retries it.
func (s *Server) handleUnflag(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.store.ResetExit(r.Context(), id)
	if err != nil {
		log.Error().Str("component", "api").Err(err).Str("position", id).Msg("unflag position")
		writeError(w, http.StatusInternalServerError, "failed to unflag position")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "open position not found")
		return
	}

	p, err := s.store.GetPosition(r.Context(), id)
	if err != nil || p == nil {
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "flagged": false})
		return
	}
	log.Info().Str("component", "api").Str("position", id).Str("symbol", p.Symbol).Msg("position unflagged")
	writeJSON(w, http.StatusOK, p)
}
