// Package storetest holds the behaviour every storage backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the full persistence surface used by the trading loops.
type Store interface {
	SaveToken(ctx context.Context, t *models.Token) error
	SetStatus(ctx context.Context, address string, status models.TokenStatus) error
	RecordBuyFailure(ctx context.Context, address string, maxAttempts int) (int, models.TokenStatus, error)
	GetToken(ctx context.Context, address string) (*models.Token, error)
	ListTokens(ctx context.Context, status models.TokenStatus, limit int) ([]models.Token, error)
	StatusHistory(ctx context.Context, address string) ([]models.StatusChange, error)

	RecordTrade(ctx context.Context, t *models.Trade) error
	CountTradesSince(ctx context.Context, since time.Time) (int, error)
	PnLSummary(ctx context.Context) (models.PnLSummary, error)
	RecentTrades(ctx context.Context, limit int) ([]models.Trade, error)

	CreatePosition(ctx context.Context, p *models.Position) error
	OpenPositions(ctx context.Context) ([]models.Position, error)
	HasOpenPosition(ctx context.Context, address string) (bool, error)
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	UpdateMark(ctx context.Context, id string, price, pnlPercent, pnlBNB float64) error
	RecordExitFailure(ctx context.Context, id string, attempts int, nextExitAt *time.Time, flagged bool) error
	ResetExit(ctx context.Context, id string) (bool, error)
	ClosePosition(ctx context.Context, id string, at time.Time, price, pnlPercent, pnlBNB float64) error

	SaveSystemStatus(ctx context.Context, s models.SystemStatus) error
	SetState(ctx context.Context, state models.OperationalState) error
	GetSystemStatus(ctx context.Context) (*models.SystemStatus, error)
	SaveWalletBalance(ctx context.Context, wallet string, balanceBNB float64) error
}

// Run exercises s. newStore must return an empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("TokenLifecycle", func(t *testing.T) { testTokenLifecycle(t, newStore(t)) })
	t.Run("BuyFailures", func(t *testing.T) { testBuyFailures(t, newStore(t)) })
	t.Run("Trades", func(t *testing.T) { testTrades(t, newStore(t)) })
	t.Run("Positions", func(t *testing.T) { testPositions(t, newStore(t)) })
	t.Run("SingleOpenPosition", func(t *testing.T) { testSingleOpenPosition(t, newStore(t)) })
	t.Run("SystemStatus", func(t *testing.T) { testSystemStatus(t, newStore(t)) })
}

const addr = "0xAbCdEf0000000000000000000000000000000001"

func intp(v int) *int { return &v }

func testTokenLifecycle(t *testing.T, s Store) {
	ctx := context.Background()

	missing, err := s.GetToken(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, missing)

	tok := models.TokenFromMetrics(models.TokenMetrics{
		Address: addr, Name: "Pepe King", Symbol: "PEPE",
		MarketCap: 10000, LiquidityUSD: 6000, Volume24h: 15000, Buys24h: 120, Sells24h: 40,
	}, models.StatusAnalyzing)
	require.NoError(t, s.SaveToken(ctx, tok))

	buy := models.DecisionBuy
	tok.Status = models.StatusApproved
	tok.Score = intp(100)
	tok.Decision = &buy
	tok.NarrativeScore = intp(80)
	tok.TickerScore = intp(90)
	tok.Reasons = []string{"healthy liquidity", "fits meme narrative"}
	require.NoError(t, s.SaveToken(ctx, tok))

	// a later metrics-only save keeps the analysis
	tok.Score, tok.Decision, tok.Reasons = nil, nil, nil
	tok.PriceUSD = 0.002
	require.NoError(t, s.SaveToken(ctx, tok))

	require.NoError(t, s.SetStatus(ctx, addr, models.StatusHolding))

	got, err := s.GetToken(ctx, "0xabcdef0000000000000000000000000000000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, repository.NormalizeAddress(addr), got.Address)
	assert.Equal(t, models.StatusHolding, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 100, *got.Score)
	require.NotNil(t, got.Decision)
	assert.Equal(t, models.DecisionBuy, *got.Decision)
	assert.Equal(t, []string{"healthy liquidity", "fits meme narrative"}, got.Reasons)
	assert.Equal(t, []string{}, got.RedFlags)
	assert.InDelta(t, 0.002, got.PriceUSD, 1e-12)

	history, err := s.StatusHistory(ctx, addr)
	require.NoError(t, err)
	var statuses []models.TokenStatus
	for _, h := range history {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []models.TokenStatus{
		models.StatusAnalyzing, models.StatusApproved, models.StatusApproved, models.StatusHolding,
	}, statuses)

	holding, err := s.ListTokens(ctx, models.StatusHolding, 10)
	require.NoError(t, err)
	assert.Len(t, holding, 1)
	rejected, err := s.ListTokens(ctx, models.StatusRejected, 10)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	all, err := s.ListTokens(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Error(t, s.SetStatus(ctx, "0x0000000000000000000000000000000000000404", models.StatusHolding))
}

func testBuyFailures(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveToken(ctx, &models.Token{Address: addr, Symbol: "PEPE", Status: models.StatusApproved}))

	n, status, err := s.RecordBuyFailure(ctx, addr, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.StatusApproved, status)

	n, status, err = s.RecordBuyFailure(ctx, addr, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, models.StatusApproved, status)

	n, status, err = s.RecordBuyFailure(ctx, addr, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, models.StatusBuyFailed, status)

	got, err := s.GetToken(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBuyFailed, got.Status)
	assert.Equal(t, 3, got.BuyAttempts)
}

func testTrades(t *testing.T, s Store) {
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	win, loss := 0.0275, -0.0125
	trades := []*models.Trade{
		{TokenAddress: addr, Symbol: "PEPE", Side: models.SideBuy, AmountBNB: 0.05, PriceUSD: 1.0, TxHash: "0x01", NarrativeScore: intp(80), TickerScore: intp(90), Reason: "healthy liquidity", IsPaperTrade: true},
		{TokenAddress: addr, Symbol: "PEPE", Side: models.SideSell, AmountBNB: 0.0775, PriceUSD: 1.55, PnLBNB: &win, TxHash: "0x02", IsPaperTrade: true},
		{TokenAddress: addr, Symbol: "PEPE", Side: models.SideBuy, AmountBNB: 0.05, PriceUSD: 1.0, TxHash: "0x03", IsPaperTrade: true},
		{TokenAddress: addr, Symbol: "PEPE", Side: models.SideSell, AmountBNB: 0.0375, PriceUSD: 0.75, PnLBNB: &loss, TxHash: "0x04", IsPaperTrade: true},
	}
	for i, tr := range trades {
		tr.Timestamp = start.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.RecordTrade(ctx, tr))
		assert.NotEmpty(t, tr.ID)
	}

	n, err := s.CountTradesSince(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only buys count")
	n, err = s.CountTradesSince(ctx, start.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sum, err := s.PnLSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalTrades)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.InDelta(t, 0.015, sum.TotalPnLBNB, 1e-9)
	assert.InDelta(t, 50, sum.WinRate(), 1e-9)

	recent, err := s.RecentTrades(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "0x04", recent[0].TxHash)
	assert.Equal(t, models.SideSell, recent[0].Side)
	require.NotNil(t, recent[0].PnLBNB)
	assert.InDelta(t, loss, *recent[0].PnLBNB, 1e-12)
	assert.Nil(t, recent[1].PnLBNB)
	assert.Equal(t, repository.NormalizeAddress(addr), recent[0].TokenAddress)
}

func testPositions(t *testing.T, s Store) {
	ctx := context.Background()

	p := &models.Position{TokenAddress: addr, Symbol: "PEPE", EntryBNB: 0.05, EntryPrice: 1.0, CurrentPrice: 1.0}
	require.NoError(t, s.CreatePosition(ctx, p))
	require.NotEmpty(t, p.ID)

	has, err := s.HasOpenPosition(ctx, addr)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.UpdateMark(ctx, p.ID, 1.2, 20, 0.01))
	next := time.Now().Add(30 * time.Second)
	require.NoError(t, s.RecordExitFailure(ctx, p.ID, 5, &next, true))

	got, err := s.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 1.2, got.CurrentPrice, 1e-12)
	assert.InDelta(t, 20, got.PnLPercent, 1e-12)
	assert.Equal(t, 5, got.ExitAttempts)
	assert.True(t, got.Flagged)
	require.NotNil(t, got.NextExitAt)
	assert.WithinDuration(t, next, *got.NextExitAt, time.Second)

	ok, err := s.ResetExit(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = s.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ExitAttempts)
	assert.False(t, got.Flagged)
	assert.Nil(t, got.NextExitAt)

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, s.ClosePosition(ctx, p.ID, time.Now(), 0.7, -30, -0.015))
	assert.Error(t, s.ClosePosition(ctx, p.ID, time.Now(), 0.9, -10, -0.005), "closing twice fails")

	open, err = s.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	got, err = s.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionClosed, got.Status)
	assert.NotNil(t, got.ClosedAt)
	assert.InDelta(t, 0.7, got.CurrentPrice, 1e-12, "exit price replaces the last mark")
	assert.InDelta(t, -30, got.PnLPercent, 1e-12)
	assert.InDelta(t, -0.015, got.PnLBNB, 1e-12)

	ok, err = s.ResetExit(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok, "closed positions cannot be unflagged")

	missing, err := s.GetPosition(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// a new position can open once the previous one is closed
	require.NoError(t, s.CreatePosition(ctx, &models.Position{TokenAddress: addr, EntryBNB: 0.05, EntryPrice: 2}))
}

func testSingleOpenPosition(t *testing.T, s Store) {
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.CreatePosition(ctx, &models.Position{TokenAddress: addr, EntryBNB: 0.05, EntryPrice: 1})
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, errors.Is(err, repository.ErrOpenPositionExists), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, created)

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func testSystemStatus(t *testing.T, s Store) {
	ctx := context.Background()

	st, err := s.GetSystemStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, s.SetState(ctx, models.StateStarting))
	require.NoError(t, s.SaveSystemStatus(ctx, models.SystemStatus{
		State: models.StateOnline, Wallet: "0xwallet", BalanceBNB: 1.5,
		TotalPnLBNB: 0.015, TotalTrades: 2, Wins: 1, Losses: 1, WinRate: 50,
	}))
	require.NoError(t, s.SetState(ctx, models.StateOffline))

	st, err = s.GetSystemStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, models.StateOffline, st.State)
	assert.Equal(t, "0xwallet", st.Wallet)
	assert.Equal(t, 2, st.TotalTrades)
	assert.InDelta(t, 50, st.WinRate, 1e-9)

	require.NoError(t, s.SaveWalletBalance(ctx, "0xwallet", 1.5))
	require.NoError(t, s.SaveWalletBalance(ctx, "0xwallet", 1.4))
}
