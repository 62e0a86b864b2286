package models

import "time"

type OperationalState string

const (
	StateStarting OperationalState = "starting"
	StateOnline   OperationalState = "online"
	StateOffline  OperationalState = "offline"
	StateError    OperationalState = "error"
)

// SystemStatus is the singleton status row (id = 1).
type SystemStatus struct {
	State       OperationalState `json:"state"`
	Wallet      string           `json:"wallet"`
	BalanceBNB  float64          `json:"balanceBnb"`
	TotalPnLBNB float64          `json:"totalPnlBnb"`
	TotalTrades int              `json:"totalTrades"`
	Wins        int              `json:"wins"`
	Losses      int              `json:"losses"`
	WinRate     float64          `json:"winRate"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type WalletBalance struct {
	Wallet     string    `json:"wallet"`
	BalanceBNB float64   `json:"balanceBnb"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
