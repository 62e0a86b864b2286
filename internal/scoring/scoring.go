// Package scoring turns token market metrics into a 0-100 score and a
// BUY/AVOID decision.
package scoring

import (
	"context"

	"github.com/kjannette/bsc-meme-trader/internal/models"
)

const (
	SourceRules = "rules"
	SourceModel = "model"
)

// Analysis is the output of a scoring pass.
type Analysis struct {
	Score          int             `json:"score"`
	Decision       models.Decision `json:"decision"`
	NarrativeScore int             `json:"narrativeScore"`
	TickerScore    int             `json:"tickerScore"`
	Reasons        []string        `json:"reasons"`
	RedFlags       []string        `json:"redFlags"`
	Source         string          `json:"source"`
}

// Buy reports whether the analysis recommends a purchase at minScore.
func (a Analysis) Buy(minScore int) bool {
	return a.Decision == models.DecisionBuy && a.Score >= minScore
}

type Scorer interface {
	Score(ctx context.Context, m models.TokenMetrics) Analysis
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
