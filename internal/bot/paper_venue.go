package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultPaperGasCost = 0.005
	paperWallet         = "0xPAPER"
)

// TokenQuoter prices paper swaps.
type TokenQuoter interface {
	TokenInfo(ctx context.Context, address string) (*models.TokenMetrics, error)
}

// PaperVenue simulates swaps against market prices with an in-memory
// wallet. Nothing is persisted; a restart begins from the initial balance.
type PaperVenue struct {
	quotes      TokenQuoter
	maxSlipPct  float64
	simulateGas bool

	mu         sync.Mutex
	initialBNB float64
	bnb        float64
	holdings   map[string]float64
	fills      []PaperFill
	totalGas   float64
	startTime  time.Time
	rng        *rand.Rand
}

type PaperFill struct {
	ID          int       `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Side        string    `json:"side"`
	Token       string    `json:"token"`
	PriceNative float64   `json:"priceNative"`
	TokenAmount float64   `json:"tokenAmount"`
	BNBAmount   float64   `json:"bnbAmount"`
	SlippagePct float64   `json:"slippagePercent"`
	GasCost     float64   `json:"gasCost"`
	BNBAfter    float64   `json:"bnbAfter"`
}

func NewPaperVenue(quotes TokenQuoter, initialBNB, maxSlippagePct float64, simulateGas bool) *PaperVenue {
	log.Info().Str("component", "paper").Float64("bnb", initialBNB).Msg("starting fresh paper wallet")
	return &PaperVenue{
		quotes:      quotes,
		maxSlipPct:  maxSlippagePct,
		simulateGas: simulateGas,
		initialBNB:  initialBNB,
		bnb:         initialBNB,
		holdings:    make(map[string]float64),
		startTime:   time.Now(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (v *PaperVenue) WalletAddress() string { return paperWallet }

func (v *PaperVenue) Balance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bnb, nil
}

// Holding returns the simulated token balance for addr.
func (v *PaperVenue) Holding(addr string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.holdings[normalizeAddress(addr)]
}

func (v *PaperVenue) CanSell(ctx context.Context, token string) bool {
	_, err := v.quotes.TokenInfo(ctx, token)
	return err == nil
}

// ErrSlippageExceeded is returned when a simulated fill slips further than
// the caller's tolerance. No state changes in that case.
var ErrSlippageExceeded = errors.New("paper fill slippage above tolerance")

func (v *PaperVenue) Buy(ctx context.Context, token string, amountBNB, slippagePct float64) (string, error) {
	addr := normalizeAddress(token)
	price, err := v.priceNative(ctx, addr)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	gas := v.gasCost()
	if v.bnb < amountBNB+gas {
		return "", fmt.Errorf("insufficient BNB: have %.6f, need %.6f", v.bnb, amountBNB+gas)
	}
	slip := v.randomSlippage()
	if err := checkSlippage(slip, slippagePct); err != nil {
		return "", err
	}
	tokens := amountBNB * (1 - slip) / price

	v.bnb -= amountBNB + gas
	v.totalGas += gas
	v.holdings[addr] += tokens
	v.record(PaperFill{
		Side: "buy", Token: addr, PriceNative: price,
		TokenAmount: tokens, BNBAmount: amountBNB,
		SlippagePct: slip * 100, GasCost: gas,
	})

	log.Info().Str("component", "paper").Str("token", addr).Float64("bnb", amountBNB).
		Float64("tokens", tokens).Float64("slippage_pct", slip*100).Msg("paper buy executed")
	return paperHash("buy"), nil
}

func (v *PaperVenue) Sell(ctx context.Context, token string, percent, slippagePct float64) (string, error) {
	addr := normalizeAddress(token)
	price, err := v.priceNative(ctx, addr)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	held := v.holdings[addr]
	if held <= 0 {
		return "", fmt.Errorf("no paper balance for %s", addr)
	}
	if percent <= 0 || percent > 100 {
		percent = 100
	}
	gas := v.gasCost()
	if v.bnb < gas {
		return "", fmt.Errorf("insufficient BNB for gas: have %.6f, need %.6f", v.bnb, gas)
	}

	slip := v.randomSlippage()
	if err := checkSlippage(slip, slippagePct); err != nil {
		return "", err
	}
	amount := held * percent / 100
	proceeds := amount * price * (1 - slip)

	v.holdings[addr] = held - amount
	if percent == 100 {
		delete(v.holdings, addr)
	}
	v.bnb += proceeds - gas
	v.totalGas += gas
	v.record(PaperFill{
		Side: "sell", Token: addr, PriceNative: price,
		TokenAmount: amount, BNBAmount: proceeds,
		SlippagePct: slip * 100, GasCost: gas,
	})

	log.Info().Str("component", "paper").Str("token", addr).Float64("tokens", amount).
		Float64("bnb", proceeds).Float64("slippage_pct", slip*100).Msg("paper sell executed")
	return paperHash("sell"), nil
}

type PaperStats struct {
	InitialBNB       float64 `json:"initialBnb"`
	CurrentBNB       float64 `json:"currentBnb"`
	OpenHoldings     int     `json:"openHoldings"`
	TotalFills       int     `json:"totalFills"`
	BuyFills         int     `json:"buyFills"`
	SellFills        int     `json:"sellFills"`
	TotalGasSpent    float64 `json:"totalGasSpent"`
	RunningTimeHours float64 `json:"runningTimeHours"`
}

func (v *PaperVenue) Stats() PaperStats {
	v.mu.Lock()
	defer v.mu.Unlock()

	buys, sells := 0, 0
	for _, f := range v.fills {
		if f.Side == "buy" {
			buys++
		} else {
			sells++
		}
	}
	return PaperStats{
		InitialBNB:       v.initialBNB,
		CurrentBNB:       v.bnb,
		OpenHoldings:     len(v.holdings),
		TotalFills:       len(v.fills),
		BuyFills:         buys,
		SellFills:        sells,
		TotalGasSpent:    v.totalGas,
		RunningTimeHours: time.Since(v.startTime).Hours(),
	}
}

func (v *PaperVenue) priceNative(ctx context.Context, addr string) (float64, error) {
	info, err := v.quotes.TokenInfo(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("paper quote %s: %w", addr, err)
	}
	if info.PriceNative <= 0 {
		return 0, fmt.Errorf("paper quote %s: no native price", addr)
	}
	return info.PriceNative, nil
}

// record must be called with mu held.
func (v *PaperVenue) record(f PaperFill) {
	f.ID = len(v.fills) + 1
	f.Timestamp = time.Now().UTC()
	f.BNBAfter = v.bnb
	v.fills = append(v.fills, f)
}

func (v *PaperVenue) gasCost() float64 {
	if v.simulateGas {
		return defaultPaperGasCost
	}
	return 0
}

func (v *PaperVenue) randomSlippage() float64 {
	return v.rng.Float64() * v.maxSlipPct / 100
}

func checkSlippage(slip, tolerancePct float64) error {
	if slip*100 > tolerancePct {
		return fmt.Errorf("%w: %.2f%% > %.2f%%", ErrSlippageExceeded, slip*100, tolerancePct)
	}
	return nil
}

func paperHash(side string) string {
	return fmt.Sprintf("0xPAPER_%s_%x", side, time.Now().UnixNano())
}
