package scoring

import (
	"context"
	"math/rand"
	"testing"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pepe() models.TokenMetrics {
	return models.TokenMetrics{
		Name:         "Pepe King",
		Symbol:       "PEPE",
		MarketCap:    10000,
		LiquidityUSD: 6000,
		Volume24h:    15000,
		Buys24h:      120,
		Sells24h:     40,
	}
}

func TestEvaluate_StrongMemeIsBuy(t *testing.T) {
	a := Evaluate(pepe())

	assert.GreaterOrEqual(t, a.Score, 75)
	assert.Equal(t, 100, a.Score, "130 raw points clamp to 100")
	assert.Equal(t, models.DecisionBuy, a.Decision)
	assert.Empty(t, a.RedFlags)
	assert.Equal(t, 80, a.NarrativeScore)
	assert.Equal(t, 90, a.TickerScore)
	assert.Equal(t, SourceRules, a.Source)
}

func TestEvaluate_PenaltyWordForcesAvoid(t *testing.T) {
	m := pepe()
	m.Name = "Rug Pepe"
	a := Evaluate(m)

	assert.Equal(t, models.DecisionAvoid, a.Decision)
	require.Len(t, a.RedFlags, 1)
	assert.Contains(t, a.RedFlags[0], "rug")
	// 130 - 40 = 90, still above threshold but the red flag blocks the buy
	assert.Equal(t, 90, a.Score)
}

func TestEvaluate_Brackets(t *testing.T) {
	cases := []struct {
		name  string
		m     models.TokenMetrics
		score int
		flags int
	}{
		{
			name:  "everything thin",
			m:     models.TokenMetrics{Symbol: "LONGSYMBOL", MarketCap: 1000, LiquidityUSD: 500, Volume24h: 100},
			score: 0, // 50 -20 -20 -10
			flags: 3,
		},
		{
			name:  "mid market cap with modest liquidity",
			m:     models.TokenMetrics{Symbol: "ABCDEFG", MarketCap: 100000, LiquidityUSD: 3000, Volume24h: 6000},
			score: 75, // 50 +10 +5 +10
		},
		{
			name:  "gap between 200k and 500k scores nothing for market cap",
			m:     models.TokenMetrics{Symbol: "ABCDEFG", MarketCap: 300000, LiquidityUSD: 1500, Volume24h: 2000},
			score: 50,
		},
		{
			name:  "oversized market cap",
			m:     models.TokenMetrics{Symbol: "ABCDEFG", MarketCap: 600000, LiquidityUSD: 1500, Volume24h: 2000},
			score: 35,
			flags: 1,
		},
		{
			name:  "sell pressure",
			m:     models.TokenMetrics{Symbol: "ABCDEFG", MarketCap: 300000, LiquidityUSD: 1500, Volume24h: 2000, Buys24h: 10, Sells24h: 30},
			score: 40,
			flags: 1,
		},
		{
			name:  "ratio ignored without sells",
			m:     models.TokenMetrics{Symbol: "ABCDEFG", MarketCap: 300000, LiquidityUSD: 1500, Volume24h: 2000, Buys24h: 50},
			score: 50,
		},
		{
			name:  "pumped too hard",
			m:     models.TokenMetrics{Symbol: "ABCDEFG", MarketCap: 300000, LiquidityUSD: 1500, Volume24h: 2000, PriceChange24h: 350},
			score: 40,
			flags: 1,
		},
		{
			name:  "collapsing",
			m:     models.TokenMetrics{Symbol: "ABCDEFG", MarketCap: 300000, LiquidityUSD: 1500, Volume24h: 2000, PriceChange24h: -45},
			score: 35,
			flags: 1,
		},
		{
			name:  "healthy climb plus cjk meme word",
			m:     models.TokenMetrics{Name: "猴王", Symbol: "猴王", MarketCap: 300000, LiquidityUSD: 1500, Volume24h: 2000, PriceChange24h: 40},
			score: 80, // 50 +10 +15 +5
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Evaluate(tc.m)
			assert.Equal(t, tc.score, a.Score)
			assert.Len(t, a.RedFlags, tc.flags)
		})
	}
}

func TestEvaluate_RandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	symbols := []string{"PEPE", "SCAM", "X", "MOONSHOTZ", "猫", "TESTER", ""}

	for i := 0; i < 5000; i++ {
		m := models.TokenMetrics{
			Name:           symbols[rng.Intn(len(symbols))],
			Symbol:         symbols[rng.Intn(len(symbols))],
			MarketCap:      rng.Float64() * 1_000_000,
			LiquidityUSD:   rng.Float64() * 20_000,
			Volume24h:      rng.Float64() * 50_000,
			PriceChange24h: rng.Float64()*600 - 100,
			Buys24h:        rng.Intn(300),
			Sells24h:       rng.Intn(300),
		}
		a := Evaluate(m)

		require.GreaterOrEqual(t, a.Score, 0)
		require.LessOrEqual(t, a.Score, 100)
		if a.Decision == models.DecisionBuy {
			require.GreaterOrEqual(t, a.Score, 60, "%+v", m)
			require.Empty(t, a.RedFlags, "%+v", m)
		}
		if a.Score >= 60 && len(a.RedFlags) == 0 {
			require.Equal(t, models.DecisionBuy, a.Decision)
		}
	}
}

func TestRules_ScoreMatchesEvaluate(t *testing.T) {
	assert.Equal(t, Evaluate(pepe()), NewRules().Score(context.Background(), pepe()))
}

func TestBlocked(t *testing.T) {
	w, ok := Blocked("Elon Rocket", "ER")
	assert.True(t, ok)
	assert.Equal(t, "elon", w)

	_, ok = Blocked("Frog Friends", "FROG")
	assert.False(t, ok)

	_, ok = Blocked("Free Money", "AIRDROP")
	assert.True(t, ok)
}

func TestAnalysis_Buy(t *testing.T) {
	a := Analysis{Score: 70, Decision: models.DecisionBuy}
	assert.True(t, a.Buy(60))
	assert.False(t, a.Buy(75))

	a.Decision = models.DecisionAvoid
	assert.False(t, a.Buy(60))
}
