package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/bsc-meme-trader/internal/models"
)

type TokenRepo struct {
	pool *pgxpool.Pool
}

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

const tokenColumns = `address, name, symbol, logo_url, market_cap, price_usd, liquidity_usd,
	volume_24h, price_change_1h, price_change_24h, buys_24h, sells_24h, status,
	score, decision, narrative_score, ticker_score, reasons, red_flags,
	buy_attempts, created_at, updated_at`

// SaveToken upserts a token by address and appends its status to the
// history. Analysis fields are only overwritten when t carries a score.
func (r *TokenRepo) SaveToken(ctx context.Context, t *models.Token) error {
	now := time.Now().UTC()
	addr := NormalizeAddress(t.Address)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO tokens
		 (address, name, symbol, logo_url, market_cap, price_usd, liquidity_usd,
		  volume_24h, price_change_1h, price_change_24h, buys_24h, sells_24h, status,
		  score, decision, narrative_score, ticker_score, reasons, red_flags,
		  created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18::jsonb,$19::jsonb,$20,$20)
		 ON CONFLICT (address) DO UPDATE SET
		  name = EXCLUDED.name,
		  symbol = EXCLUDED.symbol,
		  logo_url = EXCLUDED.logo_url,
		  market_cap = EXCLUDED.market_cap,
		  price_usd = EXCLUDED.price_usd,
		  liquidity_usd = EXCLUDED.liquidity_usd,
		  volume_24h = EXCLUDED.volume_24h,
		  price_change_1h = EXCLUDED.price_change_1h,
		  price_change_24h = EXCLUDED.price_change_24h,
		  buys_24h = EXCLUDED.buys_24h,
		  sells_24h = EXCLUDED.sells_24h,
		  status = EXCLUDED.status,
		  score = COALESCE(EXCLUDED.score, tokens.score),
		  decision = COALESCE(EXCLUDED.decision, tokens.decision),
		  narrative_score = COALESCE(EXCLUDED.narrative_score, tokens.narrative_score),
		  ticker_score = COALESCE(EXCLUDED.ticker_score, tokens.ticker_score),
		  reasons = CASE WHEN EXCLUDED.score IS NULL THEN tokens.reasons ELSE EXCLUDED.reasons END,
		  red_flags = CASE WHEN EXCLUDED.score IS NULL THEN tokens.red_flags ELSE EXCLUDED.red_flags END,
		  updated_at = EXCLUDED.updated_at`,
		addr, t.Name, t.Symbol, t.LogoURL, t.MarketCap, t.PriceUSD, t.LiquidityUSD,
		t.Volume24h, t.PriceChange1h, t.PriceChange24h, t.Buys24h, t.Sells24h, string(t.Status),
		t.Score, decisionArg(t.Decision), t.NarrativeScore, t.TickerScore,
		EncodeList(t.Reasons), EncodeList(t.RedFlags), now,
	)
	if err != nil {
		return fmt.Errorf("upsert token %s: %w", addr, err)
	}
	if err := appendHistory(ctx, tx, addr, t.Status, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetStatus moves an existing token to status.
func (r *TokenRepo) SetStatus(ctx context.Context, address string, status models.TokenStatus) error {
	now := time.Now().UTC()
	addr := NormalizeAddress(address)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE tokens SET status = $2, updated_at = $3 WHERE address = $1`,
		addr, string(status), now)
	if err != nil {
		return fmt.Errorf("set status %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set status %s: token not found", addr)
	}
	if err := appendHistory(ctx, tx, addr, status, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordBuyFailure increments the token's failed buy counter. Once the
// counter reaches maxAttempts the token moves to buy_failed.
func (r *TokenRepo) RecordBuyFailure(ctx context.Context, address string, maxAttempts int) (int, models.TokenStatus, error) {
	now := time.Now().UTC()
	addr := NormalizeAddress(address)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, "", err
	}
	defer tx.Rollback(ctx)

	var attempts int
	var status string
	err = tx.QueryRow(ctx,
		`UPDATE tokens SET
		  buy_attempts = buy_attempts + 1,
		  status = CASE WHEN buy_attempts + 1 >= $2 THEN 'buy_failed' ELSE status END,
		  updated_at = $3
		 WHERE address = $1
		 RETURNING buy_attempts, status`,
		addr, maxAttempts, now,
	).Scan(&attempts, &status)
	if err != nil {
		return 0, "", fmt.Errorf("record buy failure %s: %w", addr, err)
	}
	if models.TokenStatus(status) == models.StatusBuyFailed {
		if err := appendHistory(ctx, tx, addr, models.StatusBuyFailed, now); err != nil {
			return 0, "", err
		}
	}
	return attempts, models.TokenStatus(status), tx.Commit(ctx)
}

// GetToken returns nil, nil when the address is unknown.
func (r *TokenRepo) GetToken(ctx context.Context, address string) (*models.Token, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE address = $1`, NormalizeAddress(address))
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTokens returns the most recently updated tokens, optionally filtered
// by status. An empty status matches all.
func (r *TokenRepo) ListTokens(ctx context.Context, status models.TokenStatus, limit int) ([]models.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens`
	args := []any{}
	if status != "" {
		args = append(args, string(status))
		query += " WHERE status = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTokens(rows)
}

// StatusHistory returns the status changes of a token, oldest first.
func (r *TokenRepo) StatusHistory(ctx context.Context, address string) ([]models.StatusChange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT address, status, at FROM token_status_history
		 WHERE address = $1 ORDER BY at ASC, id ASC`,
		NormalizeAddress(address))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StatusChange
	for rows.Next() {
		var c models.StatusChange
		var status string
		if err := rows.Scan(&c.Address, &status, &c.At); err != nil {
			return nil, err
		}
		c.Status = models.TokenStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

func appendHistory(ctx context.Context, tx pgx.Tx, addr string, status models.TokenStatus, at time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO token_status_history (address, status, at) VALUES ($1, $2, $3)`,
		addr, string(status), at)
	if err != nil {
		return fmt.Errorf("append status history %s: %w", addr, err)
	}
	return nil
}

func decisionArg(d *models.Decision) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}

// --- scan helpers ---

func scanToken(row scannable) (*models.Token, error) {
	var t models.Token
	var status string
	var decision *string
	var reasons, flags []byte
	err := row.Scan(
		&t.Address, &t.Name, &t.Symbol, &t.LogoURL, &t.MarketCap, &t.PriceUSD, &t.LiquidityUSD,
		&t.Volume24h, &t.PriceChange1h, &t.PriceChange24h, &t.Buys24h, &t.Sells24h, &status,
		&t.Score, &decision, &t.NarrativeScore, &t.TickerScore, &reasons, &flags,
		&t.BuyAttempts, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = models.TokenStatus(status)
	if decision != nil {
		d := models.Decision(*decision)
		t.Decision = &d
	}
	t.Reasons = DecodeList(reasons)
	t.RedFlags = DecodeList(flags)
	return &t, nil
}

func collectTokens(rows rowsIter) ([]models.Token, error) {
	var out []models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
