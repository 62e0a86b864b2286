package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/bsc-meme-trader/internal/models"
)

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

const tradeColumns = `id, token_address, symbol, side, amount_bnb, price_usd, pnl_bnb,
	tx_hash, narrative_score, ticker_score, reason, is_paper_trade, timestamp`

// RecordTrade inserts t, assigning an id and timestamp when missing.
// Trades are never updated.
func (r *TradeRepo) RecordTrade(ctx context.Context, t *models.Trade) error {
	PrepareTrade(t)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trades (`+tradeColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.TokenAddress, t.Symbol, string(t.Side), t.AmountBNB, t.PriceUSD, t.PnLBNB,
		t.TxHash, t.NarrativeScore, t.TickerScore, t.Reason, t.IsPaperTrade, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// CountTradesSince counts buys executed at or after since.
func (r *TradeRepo) CountTradesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE side = 'buy' AND timestamp >= $1`,
		since.UTC(),
	).Scan(&count)
	return count, err
}

// PnLSummary aggregates realized P&L over sells that carry one.
func (r *TradeRepo) PnLSummary(ctx context.Context) (models.PnLSummary, error) {
	var s models.PnLSummary
	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(pnl_bnb), 0),
			COUNT(*),
			COUNT(CASE WHEN pnl_bnb > 0 THEN 1 END),
			COUNT(CASE WHEN pnl_bnb < 0 THEN 1 END)
		 FROM trades WHERE side = 'sell' AND pnl_bnb IS NOT NULL`,
	).Scan(&s.TotalPnLBNB, &s.TotalTrades, &s.Wins, &s.Losses)
	return s, err
}

// RecentTrades returns the newest trades first.
func (r *TradeRepo) RecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// PrepareTrade fills in the generated fields of a new trade.
func PrepareTrade(t *models.Trade) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	t.Timestamp = t.Timestamp.UTC()
	t.TokenAddress = NormalizeAddress(t.TokenAddress)
}

// --- scan helpers ---

func scanTrade(row scannable) (*models.Trade, error) {
	var t models.Trade
	var side string
	err := row.Scan(
		&t.ID, &t.TokenAddress, &t.Symbol, &side, &t.AmountBNB, &t.PriceUSD, &t.PnLBNB,
		&t.TxHash, &t.NarrativeScore, &t.TickerScore, &t.Reason, &t.IsPaperTrade, &t.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	t.Side = models.Side(side)
	return &t, nil
}

func collectTrades(rows rowsIter) ([]models.Trade, error) {
	var out []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
