package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/config"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/repository"
	"github.com/kjannette/bsc-meme-trader/internal/scoring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Outcome describes how a candidate left the decision loop.
type Outcome string

const (
	OutcomeSkipped             Outcome = "skipped"
	OutcomeAlreadyHeld         Outcome = "already_held"
	OutcomeBlacklisted         Outcome = "blacklisted"
	OutcomeHoneypot            Outcome = "honeypot"
	OutcomeRejected            Outcome = "rejected"
	OutcomeApproved            Outcome = "approved"
	OutcomeRateLimited         Outcome = "rate_limited"
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	OutcomePriceImpact         Outcome = "price_impact"
	OutcomeBuyFailed           Outcome = "buy_failed"
	OutcomeBought              Outcome = "bought"
	OutcomeError               Outcome = "error"
)

type TraderConfig struct {
	MinLiquidityUSD float64
	MinMarketCapUSD float64
	MaxMarketCapUSD float64
	MinScoreToBuy   int

	MinTradeBNB     float64
	MaxTradeBNB     float64
	BalanceFraction float64
	GasReserveBNB   float64
	SlippagePercent float64
	MaxImpactPct    float64
	MaxBuyAttempts  int

	MaxCandidates int
	TokenPacing   time.Duration
	PaperTrading  bool
}

func TraderConfigFrom(cfg *config.Config) TraderConfig {
	return TraderConfig{
		MinLiquidityUSD: cfg.MinLiquidityUSD,
		MinMarketCapUSD: cfg.MinMarketCapUSD,
		MaxMarketCapUSD: cfg.MaxMarketCapUSD,
		MinScoreToBuy:   cfg.MinScoreToBuy,
		MinTradeBNB:     cfg.MinTradeBNB,
		MaxTradeBNB:     cfg.MaxTradeBNB,
		BalanceFraction: cfg.TradeBalanceFraction,
		GasReserveBNB:   cfg.GasReserveBNB,
		SlippagePercent: cfg.SlippagePercent,
		MaxImpactPct:    cfg.MaxPriceImpactPct,
		MaxBuyAttempts:  cfg.MaxBuyAttempts,
		MaxCandidates:   cfg.MaxCandidatesPerScan,
		TokenPacing:     cfg.TokenPacing(),
		PaperTrading:    cfg.PaperTradingEnabled,
	}
}

// Trader runs the discovery scan and the per-token buy decision.
type Trader struct {
	cfg TraderConfig
	Deps

	processed *ProcessedSet
	pacer     *rate.Limiter
}

func NewTrader(cfg TraderConfig, deps Deps) *Trader {
	limit := rate.Inf
	if cfg.TokenPacing > 0 {
		limit = rate.Every(cfg.TokenPacing)
	}
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	return &Trader{
		cfg:       cfg,
		Deps:      deps,
		processed: NewProcessedSet(),
		pacer:     rate.NewLimiter(limit, 1),
	}
}

// Processed exposes the dedup set, mainly for status reporting.
func (t *Trader) Processed() *ProcessedSet { return t.processed }

// Scan pulls the latest pairs and runs every unseen candidate through
// ProcessToken, spaced by the pacing interval.
func (t *Trader) Scan(ctx context.Context) {
	lg := log.With().Str("component", "trader").Logger()
	lg.Info().Msg("scanning for new tokens")

	pairs, err := t.Market.LatestPairs(ctx)
	if err != nil {
		lg.Error().Err(err).Msg("scan failed")
		return
	}
	if t.cfg.MaxCandidates > 0 && len(pairs) > t.cfg.MaxCandidates {
		pairs = pairs[:t.cfg.MaxCandidates]
	}

	for _, p := range pairs {
		addr := normalizeAddress(p.Address)
		if addr == "" || !t.processed.Add(addr) {
			continue
		}
		if t.filterReason(p) != "" {
			continue
		}
		if err := t.pacer.Wait(ctx); err != nil {
			return
		}

		info, err := t.Market.TokenInfo(ctx, addr)
		if err != nil {
			lg.Debug().Err(err).Str("token", addr).Msg("token info unavailable")
			continue
		}
		if info.Address == "" {
			info.Address = addr
		}
		t.ProcessToken(ctx, *info)
	}
}

// ProcessToken takes one candidate through the filters, scoring and, when
// warranted, a buy.
func (t *Trader) ProcessToken(ctx context.Context, m models.TokenMetrics) Outcome {
	m.Address = normalizeAddress(m.Address)
	lg := log.With().Str("component", "trader").Str("symbol", m.Symbol).Str("token", m.Address).Logger()

	held, err := t.alreadyHeld(ctx, m.Address)
	if err != nil {
		lg.Error().Err(err).Msg("load token state")
		return OutcomeError
	}
	if held {
		lg.Debug().Msg("already held or retired, skipping")
		return OutcomeAlreadyHeld
	}

	if reason := t.filterReason(m); reason != "" {
		lg.Info().Str("reason", reason).
			Float64("liquidity", m.LiquidityUSD).Float64("mc", m.MarketCap).
			Msg("skip")
		return OutcomeSkipped
	}

	if word, ok := scoring.Blocked(m.Name, m.Symbol); ok {
		lg.Info().Str("word", word).Msg("skip: blocklisted word")
		t.saveStatus(ctx, lg, m, models.StatusBlacklisted)
		return OutcomeBlacklisted
	}

	if !t.Venue.CanSell(ctx, m.Address) {
		lg.Warn().Msg("skip: sell quote failed, possible honeypot")
		t.saveStatus(ctx, lg, m, models.StatusHoneypot)
		return OutcomeHoneypot
	}

	if err := t.Store.SaveToken(ctx, models.TokenFromMetrics(m, models.StatusAnalyzing)); err != nil {
		lg.Error().Err(err).Msg("save token")
		return OutcomeError
	}

	a := t.Scorer.Score(ctx, m)
	lg.Info().Int("score", a.Score).Str("decision", string(a.Decision)).
		Str("source", a.Source).Strs("red_flags", a.RedFlags).
		Float64("mc", m.MarketCap).Float64("change_24h", m.PriceChange24h).
		Msg("analysis")

	status := models.StatusRejected
	if a.Decision == models.DecisionBuy {
		status = models.StatusApproved
	}
	tok := models.TokenFromMetrics(m, status)
	applyAnalysis(tok, a)
	if err := t.Store.SaveToken(ctx, tok); err != nil {
		lg.Error().Err(err).Msg("save analysis")
		return OutcomeError
	}

	if status == models.StatusRejected {
		return OutcomeRejected
	}
	if !a.Buy(t.cfg.MinScoreToBuy) {
		return OutcomeApproved
	}
	return t.buy(ctx, lg, m, a)
}

func (t *Trader) buy(ctx context.Context, lg zerolog.Logger, m models.TokenMetrics, a scoring.Analysis) Outcome {
	unlock := t.Locks.Lock(m.Address)
	defer unlock()

	open, err := t.Store.HasOpenPosition(ctx, m.Address)
	if err != nil {
		lg.Error().Err(err).Msg("check open position")
		return OutcomeError
	}
	if open {
		return OutcomeAlreadyHeld
	}

	if err := t.Guardian.Allow(ctx); err != nil {
		lg.Warn().Err(err).Msg("buy skipped")
		return OutcomeRateLimited
	}

	balance, err := t.Venue.Balance(ctx)
	if err != nil {
		lg.Error().Err(err).Msg("read balance")
		return OutcomeError
	}
	size := t.tradeSize(balance)
	if balance < size+t.cfg.GasReserveBNB {
		lg.Warn().Float64("balance", balance).Float64("size", size).
			Float64("reserve", t.cfg.GasReserveBNB).Msg("insufficient balance")
		return OutcomeInsufficientBalance
	}

	if est, ok := t.Venue.(ImpactEstimator); ok && t.cfg.MaxImpactPct > 0 {
		if impact := est.PriceImpact(ctx, m.Address, size); impact > t.cfg.MaxImpactPct {
			lg.Warn().Float64("impact_pct", impact).Float64("max_pct", t.cfg.MaxImpactPct).
				Float64("size", size).Msg("skip: price impact too high")
			return OutcomePriceImpact
		}
	}

	// From here on the swap may be on chain, so its rows are written even
	// if ctx is cancelled.
	ctx = context.WithoutCancel(ctx)
	hash, err := t.Venue.Buy(ctx, m.Address, size, t.cfg.SlippagePercent)
	if err == nil && hash == "" {
		err = errEmptyHash
	}
	if err != nil {
		return t.buyFailed(ctx, lg, m, err)
	}

	t.Guardian.Record()
	lg.Info().Float64("bnb", size).Float64("mc", m.MarketCap).Str("tx", hash).Msg("bought")

	narrative, ticker := a.NarrativeScore, a.TickerScore
	trade := &models.Trade{
		TokenAddress:   m.Address,
		Symbol:         m.Symbol,
		Side:           models.SideBuy,
		AmountBNB:      size,
		PriceUSD:       m.PriceUSD,
		TxHash:         hash,
		NarrativeScore: &narrative,
		TickerScore:    &ticker,
		Reason:         strings.Join(a.Reasons, "; "),
		IsPaperTrade:   t.cfg.PaperTrading,
	}
	if err := t.Store.RecordTrade(ctx, trade); err != nil {
		lg.Error().Err(err).Str("tx", hash).Msg("record buy trade")
	}

	pos := &models.Position{
		TokenAddress: m.Address,
		Symbol:       m.Symbol,
		Status:       models.PositionOpen,
		EntryBNB:     size,
		EntryPrice:   m.PriceUSD,
		CurrentPrice: m.PriceUSD,
	}
	if err := t.Store.CreatePosition(ctx, pos); err != nil {
		if errors.Is(err, repository.ErrOpenPositionExists) {
			lg.Warn().Err(err).Msg("position already open")
		} else {
			lg.Error().Err(err).Str("tx", hash).Msg("create position")
		}
	}
	if err := t.Store.SetStatus(ctx, m.Address, models.StatusHolding); err != nil {
		lg.Error().Err(err).Msg("set holding")
	}

	t.Notify.Send(fmt.Sprintf("%sBUY %s: %.4f BNB @ $%s (score %d, MC $%.0f) tx %s",
		t.paperPrefix(), m.Symbol, size, formatPrice(m.PriceUSD), a.Score, m.MarketCap, shortAddr(hash)))
	return OutcomeBought
}

func (t *Trader) buyFailed(ctx context.Context, lg zerolog.Logger, m models.TokenMetrics, buyErr error) Outcome {
	attempts, status, err := t.Store.RecordBuyFailure(ctx, m.Address, t.cfg.MaxBuyAttempts)
	if err != nil {
		lg.Error().Err(err).Msg("record buy failure")
		t.processed.Remove(m.Address)
		return OutcomeBuyFailed
	}

	lg.Error().Err(buyErr).Int("attempts", attempts).Str("status", string(status)).Msg("buy failed")
	if status == models.StatusApproved {
		t.processed.Remove(m.Address)
		return OutcomeBuyFailed
	}
	t.Notify.Send(fmt.Sprintf("BUY FAILED %s after %d attempts, giving up: %v", m.Symbol, attempts, buyErr))
	return OutcomeBuyFailed
}

// ManualBuy sends a buy straight to the venue. No trade or position rows
// are written.
func (t *Trader) ManualBuy(ctx context.Context, token string, amountBNB, slippagePct float64) (string, error) {
	addr := normalizeAddress(token)
	unlock := t.Locks.Lock(addr)
	defer unlock()

	hash, err := t.Venue.Buy(context.WithoutCancel(ctx), addr, amountBNB, slippagePct)
	if err == nil && hash == "" {
		err = errEmptyHash
	}
	if err != nil {
		return "", fmt.Errorf("manual buy %s: %w", addr, err)
	}
	log.Info().Str("component", "trader").Str("token", addr).Float64("bnb", amountBNB).Str("tx", hash).Msg("manual buy")
	return hash, nil
}

// ManualSell sells percent of the wallet's holding of token.
func (t *Trader) ManualSell(ctx context.Context, token string, percent, slippagePct float64) (string, error) {
	addr := normalizeAddress(token)
	unlock := t.Locks.Lock(addr)
	defer unlock()

	hash, err := t.Venue.Sell(context.WithoutCancel(ctx), addr, percent, slippagePct)
	if err == nil && hash == "" {
		err = errEmptyHash
	}
	if err != nil {
		return "", fmt.Errorf("manual sell %s: %w", addr, err)
	}
	log.Info().Str("component", "trader").Str("token", addr).Float64("percent", percent).Str("tx", hash).Msg("manual sell")
	return hash, nil
}

func (t *Trader) alreadyHeld(ctx context.Context, addr string) (bool, error) {
	tok, err := t.Store.GetToken(ctx, addr)
	if err != nil {
		return false, err
	}
	if tok != nil && (tok.Status == models.StatusHolding || tok.Status == models.StatusBuyFailed) {
		return true, nil
	}
	return t.Store.HasOpenPosition(ctx, addr)
}

// filterReason returns why m fails the liquidity and market cap bounds, or "".
func (t *Trader) filterReason(m models.TokenMetrics) string {
	if m.LiquidityUSD < t.cfg.MinLiquidityUSD {
		return "liquidity too low"
	}
	if m.MarketCap < t.cfg.MinMarketCapUSD || m.MarketCap > t.cfg.MaxMarketCapUSD {
		return "market cap out of range"
	}
	return ""
}

func (t *Trader) tradeSize(balance float64) float64 {
	return math.Min(t.cfg.MaxTradeBNB, math.Max(t.cfg.MinTradeBNB, balance*t.cfg.BalanceFraction))
}

func (t *Trader) saveStatus(ctx context.Context, lg zerolog.Logger, m models.TokenMetrics, status models.TokenStatus) {
	if err := t.Store.SaveToken(ctx, models.TokenFromMetrics(m, status)); err != nil {
		lg.Error().Err(err).Str("status", string(status)).Msg("save token status")
	}
}

func (t *Trader) paperPrefix() string {
	if t.cfg.PaperTrading {
		return "[PAPER] "
	}
	return ""
}

func applyAnalysis(tok *models.Token, a scoring.Analysis) {
	score, narrative, ticker, decision := a.Score, a.NarrativeScore, a.TickerScore, a.Decision
	tok.Score = &score
	tok.NarrativeScore = &narrative
	tok.TickerScore = &ticker
	tok.Decision = &decision
	tok.Reasons = a.Reasons
	tok.RedFlags = a.RedFlags
}

// formatPrice keeps meme-token prices readable without scientific notation.
func formatPrice(p float64) string {
	switch {
	case p == 0:
		return "0"
	case p >= 1:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.10f", p)
	}
}
