package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/config"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/risk"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type MonitorConfig struct {
	SlippagePercent float64
	Backoff         risk.ExitBackoff
	PaperTrading    bool
}

func MonitorConfigFrom(cfg *config.Config) MonitorConfig {
	return MonitorConfig{
		SlippagePercent: cfg.SlippagePercent,
		Backoff: risk.ExitBackoff{
			Base:        time.Duration(cfg.ExitRetryBaseSecs) * time.Second,
			Max:         time.Duration(cfg.ExitRetryMaxSecs) * time.Second,
			MaxAttempts: cfg.ExitMaxAttempts,
		},
		PaperTrading: cfg.PaperTradingEnabled,
	}
}

// Monitor marks open positions to market and sells on take-profit or
// stop-loss.
type Monitor struct {
	cfg MonitorConfig
	Deps
	now func() time.Time
}

func NewMonitor(cfg MonitorConfig, deps Deps) *Monitor {
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	return &Monitor{cfg: cfg, Deps: deps, now: time.Now}
}

// Tick evaluates every open position once.
func (m *Monitor) Tick(ctx context.Context) {
	positions, err := m.Store.OpenPositions(ctx)
	if err != nil {
		log.Error().Str("component", "monitor").Err(err).Msg("load open positions")
		return
	}
	for i := range positions {
		if ctx.Err() != nil {
			return
		}
		m.check(ctx, &positions[i])
	}
}

func (m *Monitor) check(ctx context.Context, p *models.Position) {
	unlock := m.Locks.Lock(p.TokenAddress)
	defer unlock()

	lg := log.With().Str("component", "monitor").Str("symbol", p.Symbol).
		Str("token", p.TokenAddress).Str("position", p.ID).Logger()

	info, err := m.Market.TokenInfo(ctx, p.TokenAddress)
	if err != nil {
		lg.Warn().Err(err).Msg("market data unavailable, position kept")
		return
	}
	if info.PriceUSD <= 0 {
		lg.Warn().Float64("price", info.PriceUSD).Msg("non-positive price, position kept")
		return
	}
	if p.EntryPrice <= 0 {
		lg.Error().Float64("entry", p.EntryPrice).Msg("invalid entry price, skipping")
		return
	}

	pnl := (info.PriceUSD - p.EntryPrice) / p.EntryPrice * 100
	pnlBNB := p.EntryBNB * pnl / 100
	if err := m.Store.UpdateMark(ctx, p.ID, info.PriceUSD, pnl, pnlBNB); err != nil {
		lg.Error().Err(err).Msg("update mark")
	}
	lg.Info().Float64("entry", p.EntryPrice).Float64("price", info.PriceUSD).
		Float64("pnl_pct", pnl).Float64("entry_bnb", p.EntryBNB).Msg("position")

	now := m.now()
	if p.ExitBlocked(now) {
		return
	}
	reason := m.Guardian.ExitSignal(pnl)
	if reason == risk.ExitNone {
		return
	}

	// A sent sell is recorded even if ctx ends while it confirms.
	ctx = context.WithoutCancel(ctx)
	hash, err := m.Venue.Sell(ctx, p.TokenAddress, 100, m.cfg.SlippagePercent)
	if err == nil && hash == "" {
		err = errEmptyHash
	}
	if err != nil {
		m.exitFailed(ctx, lg, p, reason, now, err)
		return
	}

	realized := pnlBNB
	trade := &models.Trade{
		TokenAddress: p.TokenAddress,
		Symbol:       p.Symbol,
		Side:         models.SideSell,
		AmountBNB:    p.EntryBNB + realized,
		PriceUSD:     info.PriceUSD,
		PnLBNB:       &realized,
		TxHash:       hash,
		Reason:       string(reason),
		IsPaperTrade: m.cfg.PaperTrading,
	}
	if err := m.Store.RecordTrade(ctx, trade); err != nil {
		lg.Error().Err(err).Str("tx", hash).Msg("record sell trade")
	}
	if err := m.Store.ClosePosition(ctx, p.ID, now, info.PriceUSD, pnl, realized); err != nil {
		lg.Error().Err(err).Msg("close position")
	}
	status := models.StatusSoldSL
	if reason == risk.ExitTakeProfit {
		status = models.StatusSoldTP
	}
	if err := m.Store.SetStatus(ctx, p.TokenAddress, status); err != nil {
		lg.Error().Err(err).Msg("set sold status")
	}

	lg.Info().Str("reason", string(reason)).Float64("pnl_bnb", realized).Str("tx", hash).Msg("sold")
	m.Notify.Send(fmt.Sprintf("%sSELL %s (%s): %+.2f%% | %+.4f BNB | MC $%.0f | tx %s",
		m.paperPrefix(), p.Symbol, exitLabel(reason), pnl, realized, info.MarketCap, shortAddr(hash)))
}

func (m *Monitor) exitFailed(ctx context.Context, lg zerolog.Logger, p *models.Position, reason risk.ExitReason, now time.Time, sellErr error) {
	attempts := p.ExitAttempts + 1
	next := now.Add(m.cfg.Backoff.Next(attempts))
	flagged := m.cfg.Backoff.Exhausted(attempts)

	if err := m.Store.RecordExitFailure(ctx, p.ID, attempts, &next, flagged); err != nil {
		lg.Error().Err(err).Msg("record exit failure")
	}
	lg.Error().Err(sellErr).Str("reason", string(reason)).Int("attempts", attempts).
		Time("next_attempt", next).Bool("flagged", flagged).Msg("sell failed")

	if flagged {
		m.Notify.Send(fmt.Sprintf("ALERT: %s %s exit failed %d times, position %s flagged for manual review: %v",
			p.Symbol, exitLabel(reason), attempts, p.ID, sellErr))
	}
}

func (m *Monitor) paperPrefix() string {
	if m.cfg.PaperTrading {
		return "[PAPER] "
	}
	return ""
}

func exitLabel(r risk.ExitReason) string {
	if r == risk.ExitTakeProfit {
		return "take-profit"
	}
	return "stop-loss"
}
