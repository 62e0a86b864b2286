// Package repository persists tokens, trades, positions and system status
// in Postgres. The sqlite subpackage provides the same operations on SQLite.
package repository

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOpenPositionExists is returned when a second open position is created
// for the same token.
var ErrOpenPositionExists = errors.New("token already has an open position")

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// NormalizeAddress is the storage key form of a contract address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// EncodeList serializes a string list for a JSON column.
func EncodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeList is the inverse of EncodeList. Malformed input yields an empty list.
func DecodeList(raw []byte) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

// Store bundles the Postgres repositories behind one value.
type Store struct {
	*TokenRepo
	*TradeRepo
	*PositionRepo
	*StatusRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		TokenRepo:    NewTokenRepo(pool),
		TradeRepo:    NewTradeRepo(pool),
		PositionRepo: NewPositionRepo(pool),
		StatusRepo:   NewStatusRepo(pool),
	}
}
