package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/httputil"
	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrUnavailable means the listing API had no usable data for the request.
var ErrUnavailable = errors.New("market data unavailable")

const (
	nativePriceTTL      = 60 * time.Second
	nativePriceFallback = 600.0
	trendingLimit       = 20
	defaultRatePerSec   = 4
)

type DexScreenerOptions struct {
	BaseURL       string
	Chain         string
	WrappedNative string // used to price the chain's native coin
	RatePerSec    float64
	Retry         *httputil.RetryConfig
}

type DexScreenerClient struct {
	baseURL       string
	chain         string
	wrappedNative string
	httpClient    *http.Client
	retry         httputil.RetryConfig
	limiter       *rate.Limiter

	mu            sync.Mutex
	nativePrice   float64
	nativePriceAt time.Time
	now           func() time.Time
}

func NewDexScreenerClient(opts DexScreenerOptions) *DexScreenerClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.dexscreener.com/latest/dex"
	}
	if opts.Chain == "" {
		opts.Chain = "bsc"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultRatePerSec
	}
	retry := httputil.DefaultRetry
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &DexScreenerClient{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		chain:         opts.Chain,
		wrappedNative: opts.WrappedNative,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		retry:         retry,
		limiter:       rate.NewLimiter(rate.Limit(opts.RatePerSec), 2),
		now:           time.Now,
	}
}

// --- wire schema ---

type dsResponse struct {
	Pairs []dsPair `json:"pairs"`
}

type dsPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	URL         string   `json:"url"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   dsToken  `json:"baseToken"`
	PriceNative string   `json:"priceNative"`
	PriceUSD    string   `json:"priceUsd"`
	Txns        dsTxns   `json:"txns"`
	Volume      dsWindow `json:"volume"`
	PriceChange dsWindow `json:"priceChange"`
	Liquidity   *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV       *float64 `json:"fdv"`
	MarketCap *float64 `json:"marketCap"`
	Info      *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
}

type dsToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dsTxns struct {
	H24 struct {
		Buys  int `json:"buys"`
		Sells int `json:"sells"`
	} `json:"h24"`
}

type dsWindow struct {
	H1  float64 `json:"h1"`
	H24 float64 `json:"h24"`
}

func (p dsPair) liquidityUSD() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// metrics validates a pair and maps it to TokenMetrics. A pair without a
// base token address or without a positive price is rejected.
func (p dsPair) metrics() (models.TokenMetrics, error) {
	addr := strings.TrimSpace(p.BaseToken.Address)
	if addr == "" {
		return models.TokenMetrics{}, fmt.Errorf("%w: pair %s has no base token", ErrUnavailable, p.PairAddress)
	}
	price, err := parseDecimal(p.PriceUSD)
	if err != nil {
		return models.TokenMetrics{}, fmt.Errorf("%w: priceUsd %q: %v", ErrUnavailable, p.PriceUSD, err)
	}
	if price <= 0 {
		return models.TokenMetrics{}, fmt.Errorf("%w: pair %s has non-positive price %q", ErrUnavailable, p.PairAddress, p.PriceUSD)
	}
	native, _ := parseDecimal(p.PriceNative)

	mc := 0.0
	if p.MarketCap != nil && *p.MarketCap > 0 {
		mc = *p.MarketCap
	} else if p.FDV != nil {
		mc = *p.FDV
	}

	m := models.TokenMetrics{
		Name:           p.BaseToken.Name,
		Symbol:         p.BaseToken.Symbol,
		Address:        strings.ToLower(addr),
		PriceUSD:       price,
		PriceNative:    native,
		MarketCap:      mc,
		LiquidityUSD:   p.liquidityUSD(),
		Volume24h:      p.Volume.H24,
		Volume1h:       p.Volume.H1,
		PriceChange24h: p.PriceChange.H24,
		PriceChange1h:  p.PriceChange.H1,
		Buys24h:        p.Txns.H24.Buys,
		Sells24h:       p.Txns.H24.Sells,
		PairAddress:    p.PairAddress,
		DexID:          p.DexID,
		URL:            p.URL,
	}
	if m.Name == "" {
		m.Name = "Unknown"
	}
	if m.Symbol == "" {
		m.Symbol = "???"
	}
	if p.Info != nil {
		m.LogoURL = p.Info.ImageURL
	}
	return m, nil
}

// TokenInfo returns metrics for the token's deepest-liquidity pair.
// Errors wrapping ErrUnavailable mean the token is unlisted or malformed.
func (c *DexScreenerClient) TokenInfo(ctx context.Context, address string) (*models.TokenMetrics, error) {
	resp, err := c.get(ctx, "/tokens/"+address)
	if err != nil {
		return nil, err
	}
	if len(resp.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no pairs for %s", ErrUnavailable, address)
	}

	pairs := resp.Pairs
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].liquidityUSD() > pairs[j].liquidityUSD()
	})
	m, err := pairs[0].metrics()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestPairs lists the chain's most recent pairs. Malformed entries are dropped.
func (c *DexScreenerClient) LatestPairs(ctx context.Context) ([]models.TokenMetrics, error) {
	resp, err := c.get(ctx, "/pairs/"+c.chain)
	if err != nil {
		return nil, err
	}
	out := make([]models.TokenMetrics, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		m, err := p.metrics()
		if err != nil {
			log.Debug().Err(err).Str("component", "dexscreener").Msg("dropping pair")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Trending ranks the latest pairs by 24h volume after a liquidity / market cap floor.
func (c *DexScreenerClient) Trending(ctx context.Context) ([]models.TokenMetrics, error) {
	pairs, err := c.LatestPairs(ctx)
	if err != nil {
		return nil, err
	}
	return RankTrending(pairs, trendingLimit), nil
}

func RankTrending(pairs []models.TokenMetrics, limit int) []models.TokenMetrics {
	var out []models.TokenMetrics
	for _, p := range pairs {
		if p.LiquidityUSD > 1000 && p.MarketCap > 5000 {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Volume24h > out[j].Volume24h })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// NativePrice returns the USD price of the chain's native coin. Values are
// cached for a minute; on failure the last good value or a fixed fallback is used.
func (c *DexScreenerClient) NativePrice(ctx context.Context) float64 {
	c.mu.Lock()
	if c.nativePrice > 0 && c.now().Sub(c.nativePriceAt) < nativePriceTTL {
		p := c.nativePrice
		c.mu.Unlock()
		return p
	}
	c.mu.Unlock()

	m, err := c.TokenInfo(ctx, c.wrappedNative)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || m.PriceUSD <= 0 {
		log.Warn().Err(err).Str("component", "dexscreener").Msg("native price fetch failed")
		if c.nativePrice > 0 {
			return c.nativePrice
		}
		return nativePriceFallback
	}
	c.nativePrice = m.PriceUSD
	c.nativePriceAt = c.now()
	return c.nativePrice
}

func (c *DexScreenerClient) get(ctx context.Context, path string) (*dsResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := c.baseURL + path
	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("dexscreener fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener %s returned status %d", path, resp.StatusCode)
	}

	var data dsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return &data, nil
}

func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("negative value %v", f)
	}
	return f, nil
}
