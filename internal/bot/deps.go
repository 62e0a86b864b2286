package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/notifications"
	"github.com/kjannette/bsc-meme-trader/internal/risk"
	"github.com/kjannette/bsc-meme-trader/internal/scoring"
)

var errEmptyHash = errors.New("venue returned no transaction hash")

// MarketData is the listing API as seen by the trading loops.
type MarketData interface {
	TokenInfo(ctx context.Context, address string) (*models.TokenMetrics, error)
	LatestPairs(ctx context.Context) ([]models.TokenMetrics, error)
}

// Venue executes swaps. Any error or an empty hash counts as a failed swap.
type Venue interface {
	Buy(ctx context.Context, token string, amountBNB, slippagePct float64) (string, error)
	Sell(ctx context.Context, token string, percent, slippagePct float64) (string, error)
	CanSell(ctx context.Context, token string) bool
	Balance(ctx context.Context) (float64, error)
	WalletAddress() string
}

// ImpactEstimator is implemented by venues that can read pool reserves.
// The result is the share of the BNB side a buy would move, in percent.
type ImpactEstimator interface {
	PriceImpact(ctx context.Context, token string, amountBNB float64) float64
}

type TokenStore interface {
	SaveToken(ctx context.Context, t *models.Token) error
	SetStatus(ctx context.Context, address string, status models.TokenStatus) error
	RecordBuyFailure(ctx context.Context, address string, maxAttempts int) (int, models.TokenStatus, error)
	GetToken(ctx context.Context, address string) (*models.Token, error)
}

type TradeStore interface {
	RecordTrade(ctx context.Context, t *models.Trade) error
	CountTradesSince(ctx context.Context, since time.Time) (int, error)
	PnLSummary(ctx context.Context) (models.PnLSummary, error)
}

type PositionStore interface {
	CreatePosition(ctx context.Context, p *models.Position) error
	OpenPositions(ctx context.Context) ([]models.Position, error)
	HasOpenPosition(ctx context.Context, address string) (bool, error)
	UpdateMark(ctx context.Context, id string, price, pnlPercent, pnlBNB float64) error
	RecordExitFailure(ctx context.Context, id string, attempts int, nextExitAt *time.Time, flagged bool) error
	ClosePosition(ctx context.Context, id string, at time.Time, price, pnlPercent, pnlBNB float64) error
}

type StatusStore interface {
	SaveSystemStatus(ctx context.Context, s models.SystemStatus) error
	SetState(ctx context.Context, state models.OperationalState) error
	SaveWalletBalance(ctx context.Context, wallet string, balanceBNB float64) error
}

// Store is everything the loops persist. Both repository backends satisfy it.
type Store interface {
	TokenStore
	TradeStore
	PositionStore
	StatusStore
}

// Deps are the collaborators shared by Trader, Monitor and Reporter.
// Locks must be the same instance for all of them.
type Deps struct {
	Market   MarketData
	Scorer   scoring.Scorer
	Venue    Venue
	Store    Store
	Guardian *risk.Guardian
	Notify   notifications.Notifier
	Locks    *KeyedMutex
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func shortAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10] + "..."
	}
	return addr
}
