// Package sqlite is the single-file storage backend. It mirrors the
// Postgres repositories for deployments without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/db"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/repository"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection: SQLite has a single writer and :memory: is per connection
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := db.MigrateSQLite(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- tokens ---

const tokenColumns = `address, name, symbol, logo_url, market_cap, price_usd, liquidity_usd,
	volume_24h, price_change_1h, price_change_24h, buys_24h, sells_24h, status,
	score, decision, narrative_score, ticker_score, reasons, red_flags,
	buy_attempts, created_at, updated_at`

func (s *Store) SaveToken(ctx context.Context, t *models.Token) error {
	now := time.Now().UTC()
	addr := repository.NormalizeAddress(t.Address)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tokens
			 (address, name, symbol, logo_url, market_cap, price_usd, liquidity_usd,
			  volume_24h, price_change_1h, price_change_24h, buys_24h, sells_24h, status,
			  score, decision, narrative_score, ticker_score, reasons, red_flags,
			  created_at, updated_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT (address) DO UPDATE SET
			  name = excluded.name,
			  symbol = excluded.symbol,
			  logo_url = excluded.logo_url,
			  market_cap = excluded.market_cap,
			  price_usd = excluded.price_usd,
			  liquidity_usd = excluded.liquidity_usd,
			  volume_24h = excluded.volume_24h,
			  price_change_1h = excluded.price_change_1h,
			  price_change_24h = excluded.price_change_24h,
			  buys_24h = excluded.buys_24h,
			  sells_24h = excluded.sells_24h,
			  status = excluded.status,
			  score = COALESCE(excluded.score, tokens.score),
			  decision = COALESCE(excluded.decision, tokens.decision),
			  narrative_score = COALESCE(excluded.narrative_score, tokens.narrative_score),
			  ticker_score = COALESCE(excluded.ticker_score, tokens.ticker_score),
			  reasons = CASE WHEN excluded.score IS NULL THEN tokens.reasons ELSE excluded.reasons END,
			  red_flags = CASE WHEN excluded.score IS NULL THEN tokens.red_flags ELSE excluded.red_flags END,
			  updated_at = excluded.updated_at`,
			addr, t.Name, t.Symbol, t.LogoURL, t.MarketCap, t.PriceUSD, t.LiquidityUSD,
			t.Volume24h, t.PriceChange1h, t.PriceChange24h, t.Buys24h, t.Sells24h, string(t.Status),
			nullInt(t.Score), nullDecision(t.Decision), nullInt(t.NarrativeScore), nullInt(t.TickerScore),
			repository.EncodeList(t.Reasons), repository.EncodeList(t.RedFlags), now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert token %s: %w", addr, err)
		}
		return appendHistory(ctx, tx, addr, t.Status, now)
	})
}

func (s *Store) SetStatus(ctx context.Context, address string, status models.TokenStatus) error {
	now := time.Now().UTC()
	addr := repository.NormalizeAddress(address)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tokens SET status = ?, updated_at = ? WHERE address = ?`,
			string(status), now, addr)
		if err != nil {
			return fmt.Errorf("set status %s: %w", addr, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("set status %s: token not found", addr)
		}
		return appendHistory(ctx, tx, addr, status, now)
	})
}

func (s *Store) RecordBuyFailure(ctx context.Context, address string, maxAttempts int) (int, models.TokenStatus, error) {
	now := time.Now().UTC()
	addr := repository.NormalizeAddress(address)

	var attempts int
	var status string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE tokens SET
			  buy_attempts = buy_attempts + 1,
			  status = CASE WHEN buy_attempts + 1 >= ? THEN 'buy_failed' ELSE status END,
			  updated_at = ?
			 WHERE address = ?
			 RETURNING buy_attempts, status`,
			maxAttempts, now, addr,
		).Scan(&attempts, &status)
		if err != nil {
			return fmt.Errorf("record buy failure %s: %w", addr, err)
		}
		if models.TokenStatus(status) == models.StatusBuyFailed {
			return appendHistory(ctx, tx, addr, models.StatusBuyFailed, now)
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return attempts, models.TokenStatus(status), nil
}

func (s *Store) GetToken(ctx context.Context, address string) (*models.Token, error) {
	t, err := scanToken(s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE address = ?`, repository.NormalizeAddress(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *Store) ListTokens(ctx context.Context, status models.TokenStatus, limit int) ([]models.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *Store) StatusHistory(ctx context.Context, address string) ([]models.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, status, at FROM token_status_history WHERE address = ? ORDER BY at ASC, id ASC`,
		repository.NormalizeAddress(address))
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

func appendHistory(ctx context.Context, tx *sql.Tx, addr string, status models.TokenStatus, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO token_status_history (address, status, at) VALUES (?, ?, ?)`,
		addr, string(status), at)
	if err != nil {
		return fmt.Errorf("append status history %s: %w", addr, err)
	}
	return nil
}

// --- trades ---

const tradeColumns = `id, token_address, symbol, side, amount_bnb, price_usd, pnl_bnb,
	tx_hash, narrative_score, ticker_score, reason, is_paper_trade, timestamp`

func (s *Store) RecordTrade(ctx context.Context, t *models.Trade) error {
	repository.PrepareTrade(t)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (`+tradeColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TokenAddress, t.Symbol, string(t.Side), t.AmountBNB, t.PriceUSD, nullFloat(t.PnLBNB),
		t.TxHash, nullInt(t.NarrativeScore), nullInt(t.TickerScore), t.Reason, t.IsPaperTrade, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *Store) CountTradesSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE side = 'buy' AND timestamp >= ?`, since.UTC(),
	).Scan(&n)
	return n, err
}

func (s *Store) PnLSummary(ctx context.Context) (models.PnLSummary, error) {
	var sum models.PnLSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(pnl_bnb), 0),
			COUNT(*),
			COUNT(CASE WHEN pnl_bnb > 0 THEN 1 END),
			COUNT(CASE WHEN pnl_bnb < 0 THEN 1 END)
		 FROM trades WHERE side = 'sell' AND pnl_bnb IS NOT NULL`,
	).Scan(&sum.TotalPnLBNB, &sum.TotalTrades, &sum.Wins, &sum.Losses)
	return sum, err
}

func (s *Store) RecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		var pnl sql.NullFloat64
		var narrative, ticker sql.NullInt64
		if err := rows.Scan(&t.ID, &t.TokenAddress, &t.Symbol, &side, &t.AmountBNB, &t.PriceUSD, &pnl,
			&t.TxHash, &narrative, &ticker, &t.Reason, &t.IsPaperTrade, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.PnLBNB = floatPtr(pnl)
		t.NarrativeScore = intPtr(narrative)
		t.TickerScore = intPtr(ticker)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- positions ---

const positionColumns = `id, token_address, symbol, status, entry_bnb, entry_price, current_price,
	pnl_percent, pnl_bnb, exit_attempts, next_exit_at, flagged, opened_at, closed_at`

func (s *Store) CreatePosition(ctx context.Context, p *models.Position) error {
	repository.PreparePosition(p)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (`+positionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TokenAddress, p.Symbol, string(p.Status), p.EntryBNB, p.EntryPrice, p.CurrentPrice,
		p.PnLPercent, p.PnLBNB, p.ExitAttempts, nullTime(p.NextExitAt), p.Flagged, p.OpenedAt, nullTime(p.ClosedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", p.TokenAddress, repository.ErrOpenPositionExists)
	}
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

func (s *Store) OpenPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status = 'open' ORDER BY opened_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) HasOpenPosition(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM positions WHERE token_address = ? AND status = 'open')`,
		repository.NormalizeAddress(address),
	).Scan(&exists)
	return exists, err
}

func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	p, err := scanPosition(s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *Store) UpdateMark(ctx context.Context, id string, price, pnlPercent, pnlBNB float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET current_price = ?, pnl_percent = ?, pnl_bnb = ? WHERE id = ? AND status = 'open'`,
		price, pnlPercent, pnlBNB, id)
	return err
}

func (s *Store) RecordExitFailure(ctx context.Context, id string, attempts int, nextExitAt *time.Time, flagged bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET exit_attempts = ?, next_exit_at = ?, flagged = ? WHERE id = ? AND status = 'open'`,
		attempts, nullTime(nextExitAt), flagged, id)
	return err
}

func (s *Store) ResetExit(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET exit_attempts = 0, next_exit_at = NULL, flagged = 0 WHERE id = ? AND status = 'open'`,
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ClosePosition(ctx context.Context, id string, at time.Time, price, pnlPercent, pnlBNB float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET status = 'closed', closed_at = ?, current_price = ?, pnl_percent = ?, pnl_bnb = ?
		 WHERE id = ? AND status = 'open'`,
		at.UTC(), price, pnlPercent, pnlBNB, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close position %s: not open", id)
	}
	return nil
}

// --- status ---

func (s *Store) SaveSystemStatus(ctx context.Context, st models.SystemStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_status
		 (id, state, wallet, balance_bnb, total_pnl_bnb, total_trades, wins, losses, win_rate, updated_at)
		 VALUES (1,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (id) DO UPDATE SET
		  state = excluded.state,
		  wallet = excluded.wallet,
		  balance_bnb = excluded.balance_bnb,
		  total_pnl_bnb = excluded.total_pnl_bnb,
		  total_trades = excluded.total_trades,
		  wins = excluded.wins,
		  losses = excluded.losses,
		  win_rate = excluded.win_rate,
		  updated_at = excluded.updated_at`,
		string(st.State), st.Wallet, st.BalanceBNB, st.TotalPnLBNB, st.TotalTrades,
		st.Wins, st.Losses, st.WinRate, time.Now().UTC(),
	)
	return err
}

func (s *Store) SetState(ctx context.Context, state models.OperationalState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_status (id, state, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		string(state), time.Now().UTC())
	return err
}

func (s *Store) GetSystemStatus(ctx context.Context) (*models.SystemStatus, error) {
	var st models.SystemStatus
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, wallet, balance_bnb, total_pnl_bnb, total_trades, wins, losses, win_rate, updated_at
		 FROM system_status WHERE id = 1`,
	).Scan(&state, &st.Wallet, &st.BalanceBNB, &st.TotalPnLBNB, &st.TotalTrades,
		&st.Wins, &st.Losses, &st.WinRate, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.State = models.OperationalState(state)
	return &st, nil
}

func (s *Store) SaveWalletBalance(ctx context.Context, wallet string, balanceBNB float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallet_balance (wallet, balance_bnb, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (wallet) DO UPDATE SET balance_bnb = excluded.balance_bnb, updated_at = excluded.updated_at`,
		wallet, balanceBNB, time.Now().UTC())
	return err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

type scannable interface {
	Scan(dest ...any) error
}

func scanToken(row scannable) (*models.Token, error) {
	var t models.Token
	var status string
	var decision sql.NullString
	var score, narrative, ticker sql.NullInt64
	var reasons, flags string
	err := row.Scan(
		&t.Address, &t.Name, &t.Symbol, &t.LogoURL, &t.MarketCap, &t.PriceUSD, &t.LiquidityUSD,
		&t.Volume24h, &t.PriceChange1h, &t.PriceChange24h, &t.Buys24h, &t.Sells24h, &status,
		&score, &decision, &narrative, &ticker, &reasons, &flags,
		&t.BuyAttempts, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = models.TokenStatus(status)
	t.Score = intPtr(score)
	t.NarrativeScore = intPtr(narrative)
	t.TickerScore = intPtr(ticker)
	if decision.Valid {
		d := models.Decision(decision.String)
		t.Decision = &d
	}
	t.Reasons = repository.DecodeList([]byte(reasons))
	t.RedFlags = repository.DecodeList([]byte(flags))
	return &t, nil
}

func scanPosition(row scannable) (*models.Position, error) {
	var p models.Position
	var status string
	var next, closed sql.NullTime
	err := row.Scan(
		&p.ID, &p.TokenAddress, &p.Symbol, &status, &p.EntryBNB, &p.EntryPrice, &p.CurrentPrice,
		&p.PnLPercent, &p.PnLBNB, &p.ExitAttempts, &next, &p.Flagged, &p.OpenedAt, &closed,
	)
	if err != nil {
		return nil, err
	}
	p.Status = models.PositionStatus(status)
	p.NextExitAt = timePtr(next)
	p.ClosedAt = timePtr(closed)
	return &p, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullDecision(d *models.Decision) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*d), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}
