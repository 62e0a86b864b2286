package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessToken_LowLiquidityTouchesNothing(t *testing.T) {
	h := newHarness(t)
	tr := NewTrader(traderConfig(), h.deps)
	m := candidate()
	m.LiquidityUSD = 999

	assert.Equal(t, OutcomeSkipped, tr.ProcessToken(context.Background(), m))

	assert.Zero(t, h.scorer.calls.Load())
	buys, _, checks := h.venue.counts()
	assert.Zero(t, buys)
	assert.Zero(t, checks)
	tok, err := h.store.GetToken(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestProcessToken_MarketCapBounds(t *testing.T) {
	h := newHarness(t)
	tr := NewTrader(traderConfig(), h.deps)

	for _, mc := range []float64{4999, 500001} {
		m := candidate()
		m.MarketCap = mc
		assert.Equal(t, OutcomeSkipped, tr.ProcessToken(context.Background(), m), "mc %.0f", mc)
	}
	assert.Zero(t, h.scorer.calls.Load())
}

func TestProcessToken_BuysStrongCandidate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := NewTrader(traderConfig(), h.deps)

	require.Equal(t, OutcomeBought, tr.ProcessToken(ctx, candidate()))

	tok, err := h.store.GetToken(ctx, tokenAddr)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, models.StatusHolding, tok.Status)
	require.NotNil(t, tok.Score)
	assert.Equal(t, 80, *tok.Score)

	positions, err := h.store.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.05, positions[0].EntryBNB, 1e-9, "10%% of 1 BNB clamps to the max size")
	assert.InDelta(t, 1.0, positions[0].EntryPrice, 1e-9)

	trades, err := h.store.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.SideBuy, trades[0].Side)
	assert.Equal(t, "0xbuy", trades[0].TxHash)
	assert.Nil(t, trades[0].PnLBNB)
	assert.Equal(t, "meme", trades[0].Reason)

	assert.Equal(t, 1, h.limiter.InWindow())
	require.Len(t, h.notify.all(), 1)
	assert.Contains(t, h.notify.all()[0], "BUY PEPE")

	history, err := h.store.StatusHistory(ctx, tokenAddr)
	require.NoError(t, err)
	var statuses []models.TokenStatus
	for _, c := range history {
		statuses = append(statuses, c.Status)
	}
	assert.Equal(t, []models.TokenStatus{models.StatusAnalyzing, models.StatusApproved, models.StatusHolding}, statuses)
}

func TestProcessToken_BuyFailureLeavesApproved(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.venue.buyErr = errors.New("execution reverted")
	h.venue.buyHash = ""
	tr := NewTrader(traderConfig(), h.deps)
	tr.Processed().Add(tokenAddr)

	require.Equal(t, OutcomeBuyFailed, tr.ProcessToken(ctx, candidate()))

	tok, err := h.store.GetToken(ctx, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tok.Status)
	assert.Equal(t, 1, tok.BuyAttempts)

	open, err := h.store.HasOpenPosition(ctx, tokenAddr)
	require.NoError(t, err)
	assert.False(t, open)
	n, err := h.store.CountTradesSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.limiter.InWindow())
	assert.False(t, tr.Processed().Has(tokenAddr), "retryable failure releases the dedup entry")
}

func TestProcessToken_EmptyHashIsFailure(t *testing.T) {
	h := newHarness(t)
	h.venue.buyHash = ""
	tr := NewTrader(traderConfig(), h.deps)

	assert.Equal(t, OutcomeBuyFailed, tr.ProcessToken(context.Background(), candidate()))
	assert.Zero(t, h.limiter.InWindow())
}

func TestProcessToken_BuyFailuresExhaust(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.venue.buyErr = errors.New("insufficient output amount")
	cfg := traderConfig()
	cfg.MaxBuyAttempts = 2
	tr := NewTrader(cfg, h.deps)

	assert.Equal(t, OutcomeBuyFailed, tr.ProcessToken(ctx, candidate()))
	assert.Equal(t, OutcomeBuyFailed, tr.ProcessToken(ctx, candidate()))

	tok, err := h.store.GetToken(ctx, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBuyFailed, tok.Status)
	assert.Equal(t, 2, tok.BuyAttempts)

	assert.Equal(t, OutcomeAlreadyHeld, tr.ProcessToken(ctx, candidate()))
	buys, _, _ := h.venue.counts()
	assert.Equal(t, 2, buys)

	msgs := h.notify.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "giving up")
}

func TestProcessToken_Gates(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(h *harness, m *models.TokenMetrics, cfg *TraderConfig)
		outcome Outcome
		status  models.TokenStatus
		checked bool
		scored  bool
	}{
		{
			name:    "blocklisted name",
			mutate:  func(_ *harness, m *models.TokenMetrics, _ *TraderConfig) { m.Name = "Elon Pepe" },
			outcome: OutcomeBlacklisted,
			status:  models.StatusBlacklisted,
		},
		{
			name:    "blocklisted symbol",
			mutate:  func(_ *harness, m *models.TokenMetrics, _ *TraderConfig) { m.Symbol = "AIRDROP" },
			outcome: OutcomeBlacklisted,
			status:  models.StatusBlacklisted,
		},
		{
			name:    "sell quote fails",
			mutate:  func(h *harness, _ *models.TokenMetrics, _ *TraderConfig) { h.venue.canSell = false },
			outcome: OutcomeHoneypot,
			status:  models.StatusHoneypot,
			checked: true,
		},
		{
			name: "scorer says avoid",
			mutate: func(h *harness, _ *models.TokenMetrics, _ *TraderConfig) {
				h.scorer.a.Decision = models.DecisionAvoid
				h.scorer.a.RedFlags = []string{"copycat"}
			},
			outcome: OutcomeRejected,
			status:  models.StatusRejected,
			checked: true,
			scored:  true,
		},
		{
			name:    "below minimum score",
			mutate:  func(h *harness, _ *models.TokenMetrics, cfg *TraderConfig) { cfg.MinScoreToBuy = 90 },
			outcome: OutcomeApproved,
			status:  models.StatusApproved,
			checked: true,
			scored:  true,
		},
		{
			name: "rate limited",
			mutate: func(h *harness, _ *models.TokenMetrics, _ *TraderConfig) {
				h.limiter.RecordTrade()
				h.limiter.RecordTrade()
			},
			outcome: OutcomeRateLimited,
			status:  models.StatusApproved,
			checked: true,
			scored:  true,
		},
		{
			name: "pool too shallow for trade size",
			mutate: func(h *harness, _ *models.TokenMetrics, cfg *TraderConfig) {
				cfg.MaxImpactPct = 10
				h.deps.Venue = &shallowVenue{fakeVenue: h.venue, impact: 40}
			},
			outcome: OutcomePriceImpact,
			status:  models.StatusApproved,
			checked: true,
			scored:  true,
		},
		{
			name:    "balance below size plus reserve",
			mutate:  func(h *harness, _ *models.TokenMetrics, _ *TraderConfig) { h.venue.balance = 0.015 },
			outcome: OutcomeInsufficientBalance,
			status:  models.StatusApproved,
			checked: true,
			scored:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			m := candidate()
			cfg := traderConfig()
			tc.mutate(h, &m, &cfg)
			tr := NewTrader(cfg, h.deps)

			assert.Equal(t, tc.outcome, tr.ProcessToken(ctx, m))

			tok, err := h.store.GetToken(ctx, tokenAddr)
			require.NoError(t, err)
			require.NotNil(t, tok)
			assert.Equal(t, tc.status, tok.Status)

			buys, _, checks := h.venue.counts()
			assert.Zero(t, buys)
			assert.Equal(t, tc.checked, checks > 0)
			assert.Equal(t, tc.scored, h.scorer.calls.Load() > 0)
		})
	}
}

func TestProcessToken_ImpactWithinLimitBuys(t *testing.T) {
	h := newHarness(t)
	v := &shallowVenue{fakeVenue: h.venue, impact: 2}
	h.deps.Venue = v
	cfg := traderConfig()
	cfg.MaxImpactPct = 10
	tr := NewTrader(cfg, h.deps)

	assert.Equal(t, OutcomeBought, tr.ProcessToken(context.Background(), candidate()))
	assert.InDelta(t, 0.05, v.asked, 1e-9, "impact estimated for the actual trade size")
}

func TestProcessToken_CancelDuringBuyStillRecords(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.venue.onBuy = cancel
	tr := NewTrader(traderConfig(), h.deps)

	if got := tr.ProcessToken(ctx, candidate()); got != OutcomeBought {
		t.Fatalf("expected %s, got %s", OutcomeBought, got)
	}
	require.Error(t, ctx.Err())

	bg := context.Background()
	trades, err := h.store.RecentTrades(bg, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "0xbuy", trades[0].TxHash)

	open, err := h.store.HasOpenPosition(bg, tokenAddr)
	require.NoError(t, err)
	assert.True(t, open)

	tok, err := h.store.GetToken(bg, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, models.StatusHolding, tok.Status)
}

func TestProcessToken_AlreadyHoldingSkips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := NewTrader(traderConfig(), h.deps)
	require.Equal(t, OutcomeBought, tr.ProcessToken(ctx, candidate()))

	assert.Equal(t, OutcomeAlreadyHeld, tr.ProcessToken(ctx, candidate()))
	assert.Equal(t, int32(1), h.scorer.calls.Load())
}

func TestProcessToken_ConcurrentAttemptsOpenOnePosition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.venue.buyDelay = 20 * time.Millisecond
	tr := NewTrader(traderConfig(), h.deps)

	const workers = 8
	outcomes := make([]Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = tr.ProcessToken(ctx, candidate())
		}(i)
	}
	wg.Wait()

	bought := 0
	for _, o := range outcomes {
		if o == OutcomeBought {
			bought++
		}
	}
	assert.Equal(t, 1, bought, "outcomes: %v", outcomes)

	positions, err := h.store.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
	buys, _, _ := h.venue.counts()
	assert.Equal(t, 1, buys)
}

func TestScan_FiltersDedupsAndProcesses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	good := candidate()
	thin := candidate()
	thin.Address = "0x00000000000000000000000000000000000000bb"
	thin.LiquidityUSD = 10
	h.market.set(good)
	h.market.latest = []models.TokenMetrics{good, thin, good}

	tr := NewTrader(traderConfig(), h.deps)
	tr.Scan(ctx)

	assert.True(t, tr.Processed().Has(tokenAddr))
	assert.True(t, tr.Processed().Has(thin.Address))
	assert.Equal(t, 1, h.market.infoHits, "thin pair is dropped before the detail fetch")
	buys, _, _ := h.venue.counts()
	assert.Equal(t, 1, buys)

	tr.Scan(ctx)
	assert.Equal(t, 1, h.market.infoHits, "second scan sees only processed addresses")
}

func TestScan_CapsCandidates(t *testing.T) {
	h := newHarness(t)
	cfg := traderConfig()
	cfg.MaxCandidates = 2
	for _, a := range []string{"0x01", "0x02", "0x03"} {
		m := candidate()
		m.Address = a
		h.market.latest = append(h.market.latest, m)
	}
	tr := NewTrader(cfg, h.deps)
	tr.Scan(context.Background())

	assert.Equal(t, 2, tr.Processed().Len())
	assert.False(t, tr.Processed().Has("0x03"))
}

func TestTradeSize(t *testing.T) {
	tr := NewTrader(traderConfig(), Deps{})
	assert.InDelta(t, 0.01, tr.tradeSize(0.05), 1e-12)
	assert.InDelta(t, 0.03, tr.tradeSize(0.3), 1e-12)
	assert.InDelta(t, 0.05, tr.tradeSize(2), 1e-12)
}

func TestManualBuyAndSell(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tr := NewTrader(traderConfig(), h.deps)

	hash, err := tr.ManualBuy(ctx, strings.ToUpper(tokenAddr), 0.02, 10)
	require.NoError(t, err)
	assert.Equal(t, "0xbuy", hash)

	h.venue.sellErr = errors.New("no balance")
	_, err = tr.ManualSell(ctx, tokenAddr, 50, 10)
	require.Error(t, err)

	n, err := h.store.CountTradesSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n, "manual swaps do not write trade rows")
}
