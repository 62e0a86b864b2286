package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/bsc-meme-trader/internal/models"
)

const pgUniqueViolation = "23505"

type PositionRepo struct {
	pool *pgxpool.Pool
}

func NewPositionRepo(pool *pgxpool.Pool) *PositionRepo {
	return &PositionRepo{pool: pool}
}

const positionColumns = `id, token_address, symbol, status, entry_bnb, entry_price, current_price,
	pnl_percent, pnl_bnb, exit_attempts, next_exit_at, flagged, opened_at, closed_at`

// CreatePosition inserts an open position. A second open position for the
// same token fails with ErrOpenPositionExists.
func (r *PositionRepo) CreatePosition(ctx context.Context, p *models.Position) error {
	PreparePosition(p)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO positions (`+positionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.TokenAddress, p.Symbol, string(p.Status), p.EntryBNB, p.EntryPrice, p.CurrentPrice,
		p.PnLPercent, p.PnLBNB, p.ExitAttempts, p.NextExitAt, p.Flagged, p.OpenedAt, p.ClosedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", p.TokenAddress, ErrOpenPositionExists)
	}
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

func (r *PositionRepo) OpenPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status = 'open' ORDER BY opened_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (r *PositionRepo) HasOpenPosition(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM positions WHERE token_address = $1 AND status = 'open')`,
		NormalizeAddress(address),
	).Scan(&exists)
	return exists, err
}

// GetPosition returns nil, nil when id is unknown.
func (r *PositionRepo) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	p, err := scanPosition(r.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// UpdateMark stores the latest valuation of an open position.
func (r *PositionRepo) UpdateMark(ctx context.Context, id string, price, pnlPercent, pnlBNB float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE positions SET current_price = $2, pnl_percent = $3, pnl_bnb = $4
		 WHERE id = $1 AND status = 'open'`,
		id, price, pnlPercent, pnlBNB)
	return err
}

// RecordExitFailure stores the retry state after a failed sell.
func (r *PositionRepo) RecordExitFailure(ctx context.Context, id string, attempts int, nextExitAt *time.Time, flagged bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE positions SET exit_attempts = $2, next_exit_at = $3, flagged = $4
		 WHERE id = $1 AND status = 'open'`,
		id, attempts, utcPtr(nextExitAt), flagged)
	return err
}

// ResetExit clears the retry state so the monitor tries to exit again.
// It reports whether an open position was found.
func (r *PositionRepo) ResetExit(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE positions SET exit_attempts = 0, next_exit_at = NULL, flagged = FALSE
		 WHERE id = $1 AND status = 'open'`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClosePosition marks an open position closed with its realized exit price
// and P&L.
func (r *PositionRepo) ClosePosition(ctx context.Context, id string, at time.Time, price, pnlPercent, pnlBNB float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE positions SET status = 'closed', closed_at = $2,
		 current_price = $3, pnl_percent = $4, pnl_bnb = $5
		 WHERE id = $1 AND status = 'open'`,
		id, at.UTC(), price, pnlPercent, pnlBNB)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close position %s: not open", id)
	}
	return nil
}

// PreparePosition fills in the generated fields of a new position.
func PreparePosition(p *models.Position) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.PositionOpen
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	p.OpenedAt = p.OpenedAt.UTC()
	p.TokenAddress = NormalizeAddress(p.TokenAddress)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// --- scan helpers ---

func scanPosition(row scannable) (*models.Position, error) {
	var p models.Position
	var status string
	err := row.Scan(
		&p.ID, &p.TokenAddress, &p.Symbol, &status, &p.EntryBNB, &p.EntryPrice, &p.CurrentPrice,
		&p.PnLPercent, &p.PnLBNB, &p.ExitAttempts, &p.NextExitAt, &p.Flagged, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = models.PositionStatus(status)
	return &p, nil
}

func collectPositions(rows rowsIter) ([]models.Position, error) {
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
