package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/kjannette/bsc-meme-trader/internal/repository/sqlite"
	"github.com/kjannette/bsc-meme-trader/internal/risk"
	"github.com/kjannette/bsc-meme-trader/internal/scoring"
	"github.com/stretchr/testify/require"
)

const tokenAddr = "0x00000000000000000000000000000000000000aa"

var errNoData = errors.New("no market data")

type fakeMarket struct {
	mu       sync.Mutex
	info     map[string]models.TokenMetrics
	latest   []models.TokenMetrics
	infoHits int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{info: make(map[string]models.TokenMetrics)}
}

func (f *fakeMarket) set(m models.TokenMetrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info[strings.ToLower(m.Address)] = m
}

func (f *fakeMarket) setPrice(addr string, usd float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.info[addr]
	m.Address = addr
	m.PriceUSD = usd
	m.PriceNative = usd
	f.info[addr] = m
}

func (f *fakeMarket) drop(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.info, addr)
}

func (f *fakeMarket) TokenInfo(_ context.Context, address string) (*models.TokenMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoHits++
	m, ok := f.info[strings.ToLower(address)]
	if !ok {
		return nil, errNoData
	}
	return &m, nil
}

func (f *fakeMarket) LatestPairs(context.Context) ([]models.TokenMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TokenMetrics(nil), f.latest...), nil
}

type fakeVenue struct {
	mu       sync.Mutex
	balance  float64
	canSell  bool
	buyHash  string
	buyErr   error
	sellHash string
	sellErr  error
	buyDelay time.Duration
	onBuy    func()
	onSell   func()

	buys, sells, checks int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{balance: 1, canSell: true, buyHash: "0xbuy", sellHash: "0xsell"}
}

// Buy and Sell fail with ctx's error if it is done by the time they return,
// the way a chain client would.
func (v *fakeVenue) Buy(ctx context.Context, _ string, _, _ float64) (string, error) {
	if v.onBuy != nil {
		v.onBuy()
	}
	time.Sleep(v.buyDelay)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buys++
	return v.buyHash, v.buyErr
}

func (v *fakeVenue) Sell(ctx context.Context, _ string, _, _ float64) (string, error) {
	if v.onSell != nil {
		v.onSell()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sells++
	return v.sellHash, v.sellErr
}

func (v *fakeVenue) CanSell(context.Context, string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checks++
	return v.canSell
}

func (v *fakeVenue) Balance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

func (v *fakeVenue) WalletAddress() string { return "0xwallet" }

func (v *fakeVenue) counts() (buys, sells, checks int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buys, v.sells, v.checks
}

// shallowVenue reports a fixed price impact for every buy.
type shallowVenue struct {
	*fakeVenue
	impact float64
	asked  float64
}

func (v *shallowVenue) PriceImpact(_ context.Context, _ string, amountBNB float64) float64 {
	v.asked = amountBNB
	return v.impact
}

type fakeScorer struct {
	a     scoring.Analysis
	calls atomic.Int32
}

func (s *fakeScorer) Score(context.Context, models.TokenMetrics) scoring.Analysis {
	s.calls.Add(1)
	return s.a
}

func buyVerdict(score int) scoring.Analysis {
	return scoring.Analysis{
		Score: score, Decision: models.DecisionBuy,
		NarrativeScore: score * 8 / 10, TickerScore: score * 9 / 10,
		Reasons: []string{"meme"}, RedFlags: []string{}, Source: scoring.SourceRules,
	}
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type harness struct {
	store   *sqlite.Store
	market  *fakeMarket
	venue   *fakeVenue
	scorer  *fakeScorer
	notify  *recorder
	limiter *risk.RateLimiter
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:   store,
		market:  newFakeMarket(),
		venue:   newFakeVenue(),
		scorer:  &fakeScorer{a: buyVerdict(80)},
		notify:  &recorder{},
		limiter: risk.NewRateLimiter(2, time.Minute),
	}
	h.deps = Deps{
		Market: h.market,
		Scorer: h.scorer,
		Venue:  h.venue,
		Store:  store,
		Guardian: risk.NewGuardian(risk.Limits{
			StopLossPercent:   -25,
			TakeProfitPercent: 50,
		}, h.limiter, store),
		Notify: h.notify,
		Locks:  NewKeyedMutex(),
	}
	return h
}

func traderConfig() TraderConfig {
	return TraderConfig{
		MinLiquidityUSD: 1000,
		MinMarketCapUSD: 5000,
		MaxMarketCapUSD: 500000,
		MinScoreToBuy:   60,
		MinTradeBNB:     0.01,
		MaxTradeBNB:     0.05,
		BalanceFraction: 0.10,
		GasReserveBNB:   0.01,
		SlippagePercent: 15,
		MaxBuyAttempts:  3,
		MaxCandidates:   20,
	}
}

func candidate() models.TokenMetrics {
	return models.TokenMetrics{
		Name:         "Pepe King",
		Symbol:       "PEPE",
		Address:      tokenAddr,
		PriceUSD:     1.0,
		PriceNative:  0.002,
		MarketCap:    20000,
		LiquidityUSD: 6000,
		Volume24h:    15000,
	}
}
