package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/rs/zerolog/log"
)

// Completer is a text-in, text-out language model endpoint.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Model scores tokens with a language model and falls back to the rule
// table whenever the model fails or answers with something unusable.
type Model struct {
	llm      Completer
	fallback Rules
}

func NewModel(llm Completer) *Model {
	return &Model{llm: llm}
}

type modelVerdict struct {
	NarrativeScore *float64 `json:"narrative_score"`
	TickerScore    *float64 `json:"ticker_score"`
	OverallScore   *float64 `json:"overall_score"`
	Decision       string   `json:"decision"`
	Reasons        []string `json:"reasons"`
	RedFlags       []string `json:"red_flags"`
}

func (s *Model) Score(ctx context.Context, m models.TokenMetrics) Analysis {
	text, err := s.llm.Complete(ctx, buildPrompt(m))
	if err != nil {
		log.Warn().Err(err).Str("symbol", m.Symbol).Msg("model scoring failed, using rules")
		return s.fallback.Score(ctx, m)
	}
	a, err := parseVerdict(text)
	if err != nil {
		log.Warn().Err(err).Str("symbol", m.Symbol).Msg("model verdict rejected, using rules")
		return s.fallback.Score(ctx, m)
	}
	return a
}

func buildPrompt(m models.TokenMetrics) string {
	dex := m.DexID
	if dex == "" {
		dex = "pancakeswap"
	}
	return fmt.Sprintf(`Assess whether this BNB Smart Chain meme token is worth trading.

Name: %s
Symbol: %s
Market cap: $%.0f
Liquidity: $%.0f
24h volume: $%.0f
Price: $%g
24h change: %.2f%%
Buys (24h): %d
Sells (24h): %d
DEX: %s

Evaluate:
1. Narrative score (0-100): meme strength, viral potential, trend relevance
2. Ticker score (0-100): catchiness, memorability, fit with the narrative
3. Overall score (0-100): combined assessment

Decision: BUY if overall score >= 65, otherwise AVOID.

Reply with JSON only:
{
  "narrative_score": number,
  "ticker_score": number,
  "overall_score": number,
  "decision": "BUY" or "AVOID",
  "reasons": ["reason 1", "reason 2"],
  "red_flags": ["risk 1"]
}`,
		m.Name, m.Symbol, m.MarketCap, m.LiquidityUSD, m.Volume24h, m.PriceUSD,
		m.PriceChange24h, m.Buys24h, m.Sells24h, dex)
}

// parseVerdict decodes a model answer, bare or inside a fenced code block,
// and checks that every score is present and in range.
func parseVerdict(text string) (Analysis, error) {
	var v modelVerdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		if err2 := json.Unmarshal([]byte(extractJSON(text)), &v); err2 != nil {
			return Analysis{}, fmt.Errorf("decode verdict: %w", err)
		}
	}

	scores := map[string]*float64{
		"narrative_score": v.NarrativeScore,
		"ticker_score":    v.TickerScore,
		"overall_score":   v.OverallScore,
	}
	for name, p := range scores {
		if p == nil {
			return Analysis{}, fmt.Errorf("missing %s", name)
		}
		if *p < 0 || *p > 100 {
			return Analysis{}, fmt.Errorf("%s out of range: %v", name, *p)
		}
	}

	var decision models.Decision
	switch strings.ToUpper(strings.TrimSpace(v.Decision)) {
	case "BUY":
		decision = models.DecisionBuy
	case "AVOID":
		decision = models.DecisionAvoid
	default:
		return Analysis{}, fmt.Errorf("invalid decision %q", v.Decision)
	}

	return Analysis{
		Score:          int(*v.OverallScore + 0.5),
		Decision:       decision,
		NarrativeScore: int(*v.NarrativeScore + 0.5),
		TickerScore:    int(*v.TickerScore + 0.5),
		Reasons:        nonNil(v.Reasons),
		RedFlags:       nonNil(v.RedFlags),
		Source:         SourceModel,
	}, nil
}

// extractJSON returns the body of the first ``` fenced block, or the span
// between the outermost braces when there is no fence.
func extractJSON(text string) string {
	if start := strings.Index(text, "```"); start >= 0 {
		body := text[start+3:]
		body = strings.TrimPrefix(body, "json")
		if end := strings.Index(body, "```"); end >= 0 {
			return strings.TrimSpace(body[:end])
		}
	}
	open := strings.Index(text, "{")
	closing := strings.LastIndex(text, "}")
	if open >= 0 && closing > open {
		return text[open : closing+1]
	}
	return text
}
