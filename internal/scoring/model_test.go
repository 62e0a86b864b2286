package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/kjannette/bsc-meme-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestModel_AcceptsValidVerdict(t *testing.T) {
	llm := &fakeCompleter{reply: `{"narrative_score": 72.4, "ticker_score": 81, "overall_score": 77.6,
		"decision": "BUY", "reasons": ["strong meme"], "red_flags": []}`}
	a := NewModel(llm).Score(context.Background(), pepe())

	assert.Equal(t, SourceModel, a.Source)
	assert.Equal(t, 78, a.Score)
	assert.Equal(t, 72, a.NarrativeScore)
	assert.Equal(t, 81, a.TickerScore)
	assert.Equal(t, models.DecisionBuy, a.Decision)
	assert.Equal(t, []string{"strong meme"}, a.Reasons)
	assert.Empty(t, a.RedFlags)

	assert.Contains(t, llm.prompt, "Symbol: PEPE")
	assert.Contains(t, llm.prompt, "DEX: pancakeswap")
}

func TestModel_AcceptsFencedVerdict(t *testing.T) {
	llm := &fakeCompleter{reply: "Here you go:\n```json\n" +
		`{"narrative_score": 40, "ticker_score": 30, "overall_score": 35, "decision": "avoid", "red_flags": ["copycat"]}` +
		"\n```"}
	a := NewModel(llm).Score(context.Background(), pepe())

	assert.Equal(t, SourceModel, a.Source)
	assert.Equal(t, 35, a.Score)
	assert.Equal(t, models.DecisionAvoid, a.Decision)
	assert.Equal(t, []string{"copycat"}, a.RedFlags)
	assert.NotNil(t, a.Reasons)
}

func TestModel_FallsBackToRules(t *testing.T) {
	cases := []struct {
		name string
		llm  *fakeCompleter
	}{
		{"transport error", &fakeCompleter{err: errors.New("connection reset")}},
		{"not json", &fakeCompleter{reply: "I think this token looks great!"}},
		{"missing score", &fakeCompleter{reply: `{"narrative_score": 50, "ticker_score": 50, "decision": "BUY"}`}},
		{"out of range", &fakeCompleter{reply: `{"narrative_score": 50, "ticker_score": 50, "overall_score": 140, "decision": "BUY"}`}},
		{"negative score", &fakeCompleter{reply: `{"narrative_score": -1, "ticker_score": 50, "overall_score": 70, "decision": "BUY"}`}},
		{"unknown decision", &fakeCompleter{reply: `{"narrative_score": 50, "ticker_score": 50, "overall_score": 70, "decision": "HOLD"}`}},
	}
	want := Evaluate(pepe())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewModel(tc.llm).Score(context.Background(), pepe())
			assert.Equal(t, want, a)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSON(`prefix {"a":{"b":2}} suffix`))
	assert.Equal(t, "no braces", extractJSON("no braces"))
}

func TestParseVerdict_RoundsHalfUp(t *testing.T) {
	a, err := parseVerdict(`{"narrative_score": 59.5, "ticker_score": 0, "overall_score": 100, "decision": "BUY"}`)
	require.NoError(t, err)
	assert.Equal(t, 60, a.NarrativeScore)
	assert.Equal(t, 0, a.TickerScore)
	assert.Equal(t, 100, a.Score)
}
