package api

import (
	"net/http"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/bot"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Chain     string         `json:"chain"`
	Wallet    string         `json:"wallet"`
	Balance   float64        `json:"balance"`
	BNBPrice  float64        `json:"bnbPrice"`
	Uptime    float64        `json:"uptime"` // seconds
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			dbStatus = "disconnected"
		}
	}

	resp := healthResponse{
		Status:    "ok",
		Chain:     s.opts.Chain,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus},
	}
	if s.wallet != nil {
		resp.Wallet = s.wallet.WalletAddress()
		if bal, err := s.wallet.Balance(r.Context()); err == nil {
			resp.Balance = bal
		}
	}
	if s.market != nil {
		resp.BNBPrice = s.market.NativePrice(r.Context())
	}
	if s.opts.Uptime != nil {
		resp.Uptime = s.opts.Uptime().Seconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

// paperStats is implemented by the simulated wallet.
type paperStats interface {
	Stats() bot.PaperStats
}

type statusResponse struct {
	*models.SystemStatus
	Paper *bot.PaperStats `json:"paper,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetSystemStatus(r.Context())
	if err != nil {
		log.Error().Str("component", "api").Err(err).Msg("fetch system status")
		writeError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}
	if st == nil {
		st = &models.SystemStatus{State: models.StateOffline}
	}
	resp := statusResponse{SystemStatus: st}
	if ps, ok := s.wallet.(paperStats); ok {
		stats := ps.Stats()
		resp.Paper = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.opts.Jobs == nil {
		writeError(w, http.StatusNotFound, "jobs are not available")
		return
	}
	ran, err := s.opts.Jobs.RunNow(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !ran {
		writeJSON(w, http.StatusConflict, map[string]any{"job": name, "ran": false})
		return
	}
	log.Info().Str("component", "api").Str("job", name).Msg("job run on demand")
	writeJSON(w, http.StatusOK, map[string]any{"job": name, "ran": true})
}
