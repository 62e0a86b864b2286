package models

import "time"

type TokenStatus string

const (
	StatusDiscovered  TokenStatus = "discovered"
	StatusAnalyzing   TokenStatus = "analyzing"
	StatusApproved    TokenStatus = "approved"
	StatusRejected    TokenStatus = "rejected"
	StatusBlacklisted TokenStatus = "blacklisted"
	StatusHoneypot    TokenStatus = "honeypot"
	StatusHolding     TokenStatus = "holding"
	StatusBuyFailed   TokenStatus = "buy_failed"
	StatusSoldTP      TokenStatus = "sold_tp"
	StatusSoldSL      TokenStatus = "sold_sl"
)

// Valid reports whether s is one of the known lifecycle states.
func (s TokenStatus) Valid() bool {
	switch s {
	case StatusDiscovered, StatusAnalyzing, StatusApproved, StatusRejected,
		StatusBlacklisted, StatusHoneypot, StatusHolding, StatusBuyFailed,
		StatusSoldTP, StatusSoldSL:
		return true
	}
	return false
}

// Terminal states are never re-entered by the decision loop.
func (s TokenStatus) Terminal() bool {
	switch s {
	case StatusBlacklisted, StatusHoneypot, StatusBuyFailed, StatusSoldTP, StatusSoldSL:
		return true
	}
	return false
}

type Decision string

const (
	DecisionBuy   Decision = "BUY"
	DecisionAvoid Decision = "AVOID"
)

// Token is the persisted view of a candidate, keyed by lower-cased address.
type Token struct {
	Address        string      `json:"address"`
	Name           string      `json:"name"`
	Symbol         string      `json:"symbol"`
	LogoURL        string      `json:"logoUrl,omitempty"`
	MarketCap      float64     `json:"marketCap"`
	PriceUSD       float64     `json:"priceUsd"`
	LiquidityUSD   float64     `json:"liquidityUsd"`
	Volume24h      float64     `json:"volume24h"`
	PriceChange1h  float64     `json:"priceChange1h"`
	PriceChange24h float64     `json:"priceChange24h"`
	Buys24h        int         `json:"buys24h"`
	Sells24h       int         `json:"sells24h"`
	Status         TokenStatus `json:"status"`
	Score          *int        `json:"score,omitempty"`
	Decision       *Decision   `json:"decision,omitempty"`
	NarrativeScore *int        `json:"narrativeScore,omitempty"`
	TickerScore    *int        `json:"tickerScore,omitempty"`
	Reasons        []string    `json:"reasons"`
	RedFlags       []string    `json:"redFlags"`
	BuyAttempts    int         `json:"buyAttempts"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// TokenMetrics is the market-data view of a token from the listing API.
type TokenMetrics struct {
	Name           string  `json:"name"`
	Symbol         string  `json:"symbol"`
	Address        string  `json:"address"`
	PriceUSD       float64 `json:"price"`
	PriceNative    float64 `json:"priceNative"`
	MarketCap      float64 `json:"mc"`
	LiquidityUSD   float64 `json:"liquidity"`
	Volume24h      float64 `json:"volume24h"`
	Volume1h       float64 `json:"volume1h"`
	PriceChange24h float64 `json:"priceChange24h"`
	PriceChange1h  float64 `json:"priceChange1h"`
	Buys24h        int     `json:"buys24h"`
	Sells24h       int     `json:"sells24h"`
	PairAddress    string  `json:"pairAddress"`
	DexID          string  `json:"dexId"`
	URL            string  `json:"url,omitempty"`
	LogoURL        string  `json:"logo,omitempty"`
}

// TokenFromMetrics copies identity and market fields into a Token row.
func TokenFromMetrics(m TokenMetrics, status TokenStatus) *Token {
	return &Token{
		Address:        m.Address,
		Name:           m.Name,
		Symbol:         m.Symbol,
		LogoURL:        m.LogoURL,
		MarketCap:      m.MarketCap,
		PriceUSD:       m.PriceUSD,
		LiquidityUSD:   m.LiquidityUSD,
		Volume24h:      m.Volume24h,
		PriceChange1h:  m.PriceChange1h,
		PriceChange24h: m.PriceChange24h,
		Buys24h:        m.Buys24h,
		Sells24h:       m.Sells24h,
		Status:         status,
	}
}

type StatusChange struct {
	Address string      `json:"address"`
	Status  TokenStatus `json:"status"`
	At      time.Time   `json:"at"`
}
