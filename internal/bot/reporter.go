package bot

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

// Reporter keeps the status row and the wallet balance row current.
type Reporter struct {
	Deps

	mu          sync.Mutex
	lastBalance float64
	haveBalance bool
}

func NewReporter(deps Deps) *Reporter {
	return &Reporter{Deps: deps}
}

// UpdateStats recomputes realized P&L from sell trades and saves the
// status row as online.
func (r *Reporter) UpdateStats(ctx context.Context) {
	lg := log.With().Str("component", "stats").Logger()

	sum, err := r.Store.PnLSummary(ctx)
	if err != nil {
		lg.Error().Err(err).Msg("pnl summary")
		return
	}
	balance := r.balance(ctx)

	st := models.SystemStatus{
		State:       models.StateOnline,
		Wallet:      r.Venue.WalletAddress(),
		BalanceBNB:  balance,
		TotalPnLBNB: sum.TotalPnLBNB,
		TotalTrades: sum.TotalTrades,
		Wins:        sum.Wins,
		Losses:      sum.Losses,
		WinRate:     sum.WinRate(),
	}
	if err := r.Store.SaveSystemStatus(ctx, st); err != nil {
		lg.Error().Err(err).Msg("save system status")
		return
	}
	lg.Info().Msg("\n" + renderStats(st))
}

// RefreshBalance stores the wallet's current BNB balance.
func (r *Reporter) RefreshBalance(ctx context.Context) {
	wallet := r.Venue.WalletAddress()
	if wallet == "" {
		return
	}
	bal, err := r.Venue.Balance(ctx)
	if err != nil {
		log.Warn().Str("component", "stats").Err(err).Msg("balance unavailable")
		return
	}
	r.remember(bal)
	if err := r.Store.SaveWalletBalance(ctx, wallet, bal); err != nil {
		log.Error().Str("component", "stats").Err(err).Msg("save wallet balance")
	}
}

// balance reads the venue, falling back to the last good reading.
func (r *Reporter) balance(ctx context.Context) float64 {
	bal, err := r.Venue.Balance(ctx)
	if err == nil {
		r.remember(bal)
		return bal
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	log.Warn().Str("component", "stats").Err(err).Bool("cached", r.haveBalance).Msg("balance unavailable")
	return r.lastBalance
}

func (r *Reporter) remember(bal float64) {
	r.mu.Lock()
	r.lastBalance = bal
	r.haveBalance = true
	r.mu.Unlock()
}

func renderStats(st models.SystemStatus) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.Header("Balance BNB", "Realized P&L BNB", "Sells", "Wins", "Losses", "Win rate")
	table.Append(
		fmt.Sprintf("%.4f", st.BalanceBNB),
		fmt.Sprintf("%+.4f", st.TotalPnLBNB),
		fmt.Sprintf("%d", st.TotalTrades),
		fmt.Sprintf("%d", st.Wins),
		fmt.Sprintf("%d", st.Losses),
		fmt.Sprintf("%.1f%%", st.WinRate),
	)
	table.Render()
	return buf.String()
}
