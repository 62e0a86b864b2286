package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
)

type swapRequest struct {
	ContractAddress string   `json:"contractAddress"`
	CA              string   `json:"ca"` // legacy field name
	Amount          float64  `json:"amount"`
	Percent         float64  `json:"percent"`
	Slippage        *float64 `json:"slippage"`
}

func (r swapRequest) address() string {
	if r.ContractAddress != "" {
		return r.ContractAddress
	}
	return r.CA
}

type swapResponse struct {
	Success bool   `json:"success"`
	Hash    string `json:"hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) decodeSwap(w http.ResponseWriter, r *http.Request) (swapRequest, float64, bool) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, 0, false
	}
	if !validAddress(req.address()) {
		writeError(w, http.StatusBadRequest, "invalid contract address")
		return req, 0, false
	}
	slippage := s.opts.DefaultSlippage
	if req.Slippage != nil {
		if *req.Slippage < 0 || *req.Slippage >= 100 {
			writeError(w, http.StatusBadRequest, "slippage must be in [0, 100)")
			return req, 0, false
		}
		slippage = *req.Slippage
	}
	return req, slippage, true
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	req, slippage, ok := s.decodeSwap(w, r)
	if !ok {
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	hash, err := s.trading.ManualBuy(r.Context(), req.address(), req.Amount, slippage)
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("manual buy failed")
		writeJSON(w, http.StatusOK, swapResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, swapResponse{Success: true, Hash: hash})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	req, slippage, ok := s.decodeSwap(w, r)
	if !ok {
		return
	}
	percent := req.Percent
	if percent == 0 {
		percent = 100
	}
	if percent < 0 || percent > 100 {
		writeError(w, http.StatusBadRequest, "percent must be in (0, 100]")
		return
	}

	hash, err := s.trading.ManualSell(r.Context(), req.address(), percent, slippage)
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("manual sell failed")
		writeJSON(w, http.StatusOK, swapResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, swapResponse{Success: true, Hash: hash})
}

// parseTradeMode extracts the ?mode= query parameter.
// Returns a *bool: nil = all, true = paper, false = live.
func parseTradeMode(r *http.Request) (*bool, error) {
	v := r.URL.Query().Get("mode")
	switch v {
	case "", "all":
		return nil, nil
	case "paper":
		b := true
		return &b, nil
	case "live":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("invalid mode %q, expected paper|live|all", v)
	}
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)

	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.store.RecentTrades(r.Context(), limit)
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("fetch trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}

	out := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if mode == nil || t.IsPaperTrade == *mode {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type tradeStatsResponse struct {
	models.PnLSummary
	WinRate float64 `json:"winRate"`
}

func (s *Server) handleTradeStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.PnLSummary(r.Context())
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("fetch trade stats")
		writeError(w, http.StatusInternalServerError, "failed to fetch trade stats")
		return
	}
	writeJSON(w, http.StatusOK, tradeStatsResponse{PnLSummary: sum, WinRate: sum.WinRate()})
}
