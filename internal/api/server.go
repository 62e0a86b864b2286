package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
)

const maxQueryLimit = 1000

var addressRegexp = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Trading is the manual swap surface of the decision loop.
type Trading interface {
	ManualBuy(ctx context.Context, token string, amountBNB, slippagePct float64) (string, error)
	ManualSell(ctx context.Context, token string, percent, slippagePct float64) (string, error)
}

type Store interface {
	OpenPositions(ctx context.Context) ([]models.Position, error)
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	ResetExit(ctx context.Context, id string) (bool, error)
	GetToken(ctx context.Context, address string) (*models.Token, error)
	ListTokens(ctx context.Context, status models.TokenStatus, limit int) ([]models.Token, error)
	RecentTrades(ctx context.Context, limit int) ([]models.Trade, error)
	PnLSummary(ctx context.Context) (models.PnLSummary, error)
	GetSystemStatus(ctx context.Context) (*models.SystemStatus, error)
}

type Market interface {
	TokenInfo(ctx context.Context, address string) (*models.TokenMetrics, error)
	Trending(ctx context.Context) ([]models.TokenMetrics, error)
	NativePrice(ctx context.Context) float64
}

type Wallet interface {
	Balance(ctx context.Context) (float64, error)
	WalletAddress() string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Jobs runs a scheduled loop on demand. ran is false when the job was
// already in flight.
type Jobs interface {
	RunNow(ctx context.Context, job string) (ran bool, err error)
}

type Options struct {
	Port            int
	APIKey          string
	CORSOrigin      string
	Chain           string
	DefaultSlippage float64
	Uptime          func() time.Duration
	Jobs            Jobs
}

type Server struct {
	trading    Trading
	store      Store
	market     Market
	wallet     Wallet
	db         Pinger
	opts       Options
	handler    http.Handler
	httpServer *http.Server
	apiKey     string
}

func NewServer(opts Options, trading Trading, store Store, market Market, wallet Wallet, db Pinger) *Server {
	s := &Server{
		trading: trading,
		store:   store,
		market:  market,
		wallet:  wallet,
		db:      db,
		opts:    opts,
		apiKey:  opts.APIKey,
	}

	mux := http.NewServeMux()

	// Manual trading
	mux.HandleFunc("POST /buy", s.handleBuy)
	mux.HandleFunc("POST /sell", s.handleSell)

	// Positions
	mux.HandleFunc("GET /positions", s.handlePositions)
	mux.HandleFunc("POST /positions/{id}/unflag", s.handleUnflag)

	// Tokens
	mux.HandleFunc("GET /token/{address}", s.handleTokenInfo)
	mux.HandleFunc("GET /trending", s.handleTrending)
	mux.HandleFunc("GET /v1/tokens", s.handleTokens)

	// Trades and status
	mux.HandleFunc("GET /v1/trades", s.handleTrades)
	mux.HandleFunc("GET /v1/trades/stats", s.handleTradeStats)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/jobs/{name}/run", s.handleRunJob)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.handler = corsMiddleware(s.authMiddleware(mux), opts.CORSOrigin)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // manual swaps wait for the receipt
	}

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	lg := log.With().Str("component", "api").Logger()
	lg.Info().Msgf("REST API server started on http://localhost%s", s.httpServer.Addr)
	lg.Info().Msgf("Health check: http://localhost%s/health", s.httpServer.Addr)
	if s.apiKey != "" {
		lg.Info().Msg("Authentication: enabled (Bearer token)")
	} else {
		lg.Info().Msg("Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validAddress(addr string) bool {
	return addressRegexp.MatchString(addr)
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
