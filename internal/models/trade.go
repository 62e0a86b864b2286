package models

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Trade struct {
	ID             string    `json:"id"`
	TokenAddress   string    `json:"tokenAddress"`
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	AmountBNB      float64   `json:"amountBnb"`
	PriceUSD       float64   `json:"priceUsd"`
	PnLBNB         *float64  `json:"pnlBnb,omitempty"` // sell only
	TxHash         string    `json:"txHash"`
	NarrativeScore *int      `json:"narrativeScore,omitempty"`
	TickerScore    *int      `json:"tickerScore,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	IsPaperTrade   bool      `json:"isPaperTrade"`
	Timestamp      time.Time `json:"timestamp"`
}

// PnLSummary aggregates realized results over sell trades that carry a P&L.
type PnLSummary struct {
	TotalPnLBNB float64 `json:"totalPnlBnb"`
	TotalTrades int     `json:"totalTrades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
}

func (s PnLSummary) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalTrades) * 100
}
