package risk

import (
	"context"
	"fmt"
	"time"
)

// TradeCounter abstracts the trade-counting dependency so Guardian
// can be tested without a real database.
type TradeCounter interface {
	CountTradesSince(ctx context.Context, since time.Time) (int, error)
}

// Limits holds the risk thresholds from config.
// A zero MaxDailyTrades disables the daily cap.
type Limits struct {
	MaxDailyTrades    int
	StopLossPercent   float64 // negative, e.g. -25
	TakeProfitPercent float64 // positive, e.g. 50
}

type Guardian struct {
	limits  Limits
	limiter *RateLimiter
	counter TradeCounter
	now     func() time.Time
}

func NewGuardian(limits Limits, limiter *RateLimiter, counter TradeCounter) *Guardian {
	return &Guardian{limits: limits, limiter: limiter, counter: counter, now: time.Now}
}

// Allow validates entry constraints before a buy is attempted.
// Returns nil if the buy is allowed, a descriptive error if blocked.
// It does not consume a rate-limit slot; call Record after a successful buy.
func (g *Guardian) Allow(ctx context.Context) error {
	if g.limiter != nil && !g.limiter.CanTrade() {
		return fmt.Errorf("trade blocked: rate limit of %d trades per %s reached",
			g.limiter.max, g.limiter.window)
	}

	if g.limits.MaxDailyTrades > 0 && g.counter != nil {
		now := g.now().UTC()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		count, err := g.counter.CountTradesSince(ctx, midnight)
		if err != nil {
			return fmt.Errorf("trade blocked: unable to verify daily trade count: %w", err)
		}
		if count >= g.limits.MaxDailyTrades {
			return fmt.Errorf("trade blocked: daily limit of %d trades reached (%d executed today)",
				g.limits.MaxDailyTrades, count)
		}
	}

	return nil
}

// Record counts a completed buy against the rate limit.
func (g *Guardian) Record() {
	if g.limiter != nil {
		g.limiter.RecordTrade()
	}
}

type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
)

// ExitSignal evaluates a position's unrealized P&L against the exit
// thresholds. Take-profit wins when both would trigger.
func (g *Guardian) ExitSignal(pnlPercent float64) ExitReason {
	if pnlPercent >= g.limits.TakeProfitPercent {
		return ExitTakeProfit
	}
	if pnlPercent <= g.limits.StopLossPercent {
		return ExitStopLoss
	}
	return ExitNone
}
