package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/kjannette/bsc-meme-trader/internal/models"
)

const (
	baseScore     = 50
	buyThreshold  = 60
	narrativeMult = 0.8
	tickerMult    = 0.9
)

// Rules is the deterministic scorer. It never fails.
type Rules struct{}

func NewRules() Rules { return Rules{} }

func (Rules) Score(_ context.Context, m models.TokenMetrics) Analysis {
	return Evaluate(m)
}

// Evaluate applies the rule table to m.
func Evaluate(m models.TokenMetrics) Analysis {
	score := baseScore
	var reasons, flags []string

	// market cap
	switch mc := m.MarketCap; {
	case mc >= 5000 && mc <= 50000:
		score += 20
		reasons = append(reasons, "market cap in sweet spot ($5K-$50K)")
	case mc >= 50000 && mc <= 200000:
		score += 10
		reasons = append(reasons, "moderate market cap ($50K-$200K)")
	case mc < 5000:
		score -= 20
		flags = append(flags, "market cap too low")
	case mc > 500000:
		score -= 15
		flags = append(flags, "market cap too high")
	}

	// liquidity
	switch liq := m.LiquidityUSD; {
	case liq >= 5000:
		score += 15
		reasons = append(reasons, "healthy liquidity")
	case liq >= 2000:
		score += 5
	case liq < 1000:
		score -= 20
		flags = append(flags, "liquidity too low")
	}

	// 24h volume
	switch vol := m.Volume24h; {
	case vol >= 10000:
		score += 15
		reasons = append(reasons, "active trading volume")
	case vol >= 5000:
		score += 10
	case vol < 1000:
		score -= 10
		flags = append(flags, "volume too low")
	}

	if m.Buys24h > 0 && m.Sells24h > 0 {
		ratio := float64(m.Buys24h) / float64(m.Sells24h)
		if ratio >= 1.5 {
			score += 10
			reasons = append(reasons, fmt.Sprintf("buyers outnumber sellers (%.1fx)", ratio))
		} else if ratio <= 0.5 {
			score -= 10
			flags = append(flags, "heavy sell pressure")
		}
	}

	switch pc := m.PriceChange24h; {
	case pc >= 10 && pc <= 100:
		score += 10
		reasons = append(reasons, "price trending up")
	case pc < -30:
		score -= 15
		flags = append(flags, "price collapsing")
	case pc > 200:
		score -= 10
		flags = append(flags, "possible pump before dump")
	}

	if w, ok := MatchWord(penaltyWords, m.Name, m.Symbol); ok {
		score -= 40
		flags = append(flags, fmt.Sprintf("name contains blocked word %q", w))
	}
	if _, ok := MatchWord(memeWords, m.Name, m.Symbol); ok {
		score += 15
		reasons = append(reasons, "fits meme narrative")
	}
	if utf8.RuneCountInString(strings.ToLower(m.Symbol)) <= 5 {
		score += 5
		reasons = append(reasons, "short memorable ticker")
	}

	score = clamp(score, 0, 100)

	decision := models.DecisionAvoid
	if score >= buyThreshold && len(flags) == 0 {
		decision = models.DecisionBuy
	}

	return Analysis{
		Score:          score,
		Decision:       decision,
		NarrativeScore: int(math.Round(float64(score) * narrativeMult)),
		TickerScore:    int(math.Round(float64(score) * tickerMult)),
		Reasons:        nonNil(reasons),
		RedFlags:       nonNil(flags),
		Source:         SourceRules,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
