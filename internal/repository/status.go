package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/bsc-meme-trader/internal/models"
)

type StatusRepo struct {
	pool *pgxpool.Pool
}

func NewStatusRepo(pool *pgxpool.Pool) *StatusRepo {
	return &StatusRepo{pool: pool}
}

// SaveSystemStatus upserts the singleton status row.
func (r *StatusRepo) SaveSystemStatus(ctx context.Context, s models.SystemStatus) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO system_status
		 (id, state, wallet, balance_bnb, total_pnl_bnb, total_trades, wins, losses, win_rate, updated_at)
		 VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET
		  state = EXCLUDED.state,
		  wallet = EXCLUDED.wallet,
		  balance_bnb = EXCLUDED.balance_bnb,
		  total_pnl_bnb = EXCLUDED.total_pnl_bnb,
		  total_trades = EXCLUDED.total_trades,
		  wins = EXCLUDED.wins,
		  losses = EXCLUDED.losses,
		  win_rate = EXCLUDED.win_rate,
		  updated_at = EXCLUDED.updated_at`,
		string(s.State), s.Wallet, s.BalanceBNB, s.TotalPnLBNB, s.TotalTrades,
		s.Wins, s.Losses, s.WinRate, time.Now().UTC(),
	)
	return err
}

// SetState changes only the operational state, creating the row if needed.
func (r *StatusRepo) SetState(ctx context.Context, state models.OperationalState) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO system_status (id, state, updated_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		string(state), time.Now().UTC())
	return err
}

// GetSystemStatus returns nil, nil before the first write.
func (r *StatusRepo) GetSystemStatus(ctx context.Context) (*models.SystemStatus, error) {
	var s models.SystemStatus
	var state string
	err := r.pool.QueryRow(ctx,
		`SELECT state, wallet, balance_bnb, total_pnl_bnb, total_trades, wins, losses, win_rate, updated_at
		 FROM system_status WHERE id = 1`,
	).Scan(&state, &s.Wallet, &s.BalanceBNB, &s.TotalPnLBNB, &s.TotalTrades,
		&s.Wins, &s.Losses, &s.WinRate, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.State = models.OperationalState(state)
	return &s, nil
}

func (r *StatusRepo) SaveWalletBalance(ctx context.Context, wallet string, balanceBNB float64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO wallet_balance (wallet, balance_bnb, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (wallet) DO UPDATE SET balance_bnb = EXCLUDED.balance_bnb, updated_at = EXCLUDED.updated_at`,
		wallet, balanceBNB, time.Now().UTC())
	return err
}
