package models

import "time"

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

type Position struct {
	ID           string         `json:"id"`
	TokenAddress string         `json:"tokenAddress"`
	Symbol       string         `json:"symbol"`
	Status       PositionStatus `json:"status"`
	EntryBNB     float64        `json:"entryBnb"`
	EntryPrice   float64        `json:"entryPrice"`
	CurrentPrice float64        `json:"currentPrice"`
	PnLPercent   float64        `json:"pnlPercent"`
	PnLBNB       float64        `json:"pnlBnb"`
	ExitAttempts int            `json:"exitAttempts"`
	NextExitAt   *time.Time     `json:"nextExitAt,omitempty"`
	Flagged      bool           `json:"flagged"`
	OpenedAt     time.Time      `json:"openedAt"`
	ClosedAt     *time.Time     `json:"closedAt,omitempty"`
}

// ExitBlocked reports whether an exit must not be attempted at now.
func (p *Position) ExitBlocked(now time.Time) bool {
	if p.Flagged {
		return true
	}
	return p.NextExitAt != nil && now.Before(*p.NextExitAt)
}
