package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/bsc-meme-trader/internal/external"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if !validAddress(addr) {
		writeError(w, http.StatusBadRequest, "invalid contract address")
		return
	}

	info, err := s.market.TokenInfo(r.Context(), addr)
	if errors.Is(err, external.ErrUnavailable) {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		log.Error().Str("component", "api").Err(err).Str("token", addr).Msg("fetch token info")
		writeError(w, http.StatusBadGateway, "market data unavailable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.market.Trending(r.Context())
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("fetch trending")
		writeError(w, http.StatusBadGateway, "market data unavailable")
		return
	}
	if tokens == nil {
		tokens = []models.TokenMetrics{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	status := models.TokenStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	tokens, err := s.store.ListTokens(r.Context(), status, parseLimit(r, 100))
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("list tokens")
		writeError(w, http.StatusInternalServerError, "failed to fetch tokens")
		return
	}
	if tokens == nil {
		tokens = []models.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}
