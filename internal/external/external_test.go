package external_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/kjannette/bsc-meme-trader/internal/external"
	"github.com/kjannette/bsc-meme-trader/internal/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env")
}

const wbnb = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"

const tokenPairsJSON = `{"pairs":[
 {"chainId":"bsc","dexId":"pancakeswap","pairAddress":"0xshallow","priceUsd":"0.0009","priceNative":"0.0000015",
  "baseToken":{"address":"0xAbC0000000000000000000000000000000000001","name":"Pepe King","symbol":"PKING"},
  "liquidity":{"usd":1500},"fdv":9000,"volume":{"h24":200,"h1":10},"priceChange":{"h24":1,"h1":0},
  "txns":{"h24":{"buys":3,"sells":1}}},
 {"chainId":"bsc","dexId":"pancakeswap","pairAddress":"0xdeep","priceUsd":"0.0010","priceNative":"0.0000016",
  "baseToken":{"address":"0xAbC0000000000000000000000000000000000001","name":"Pepe King","symbol":"PKING"},
  "liquidity":{"usd":6000},"marketCap":10000,"fdv":12000,"volume":{"h24":15000,"h1":900},
  "priceChange":{"h24":25.5,"h1":3.2},"txns":{"h24":{"buys":120,"sells":40}},
  "info":{"imageUrl":"https://img.example/pking.png"}}
]}`

func newDexServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *external.DexScreenerClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := external.NewDexScreenerClient(external.DexScreenerOptions{
		BaseURL:       srv.URL,
		Chain:         "bsc",
		WrappedNative: wbnb,
		RatePerSec:    1000,
		Retry:         &httputil.RetryConfig{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond},
	})
	return srv, client
}

func TestDexScreener_TokenInfoPicksDeepestPair(t *testing.T) {
	_, client := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/tokens/"))
		io.WriteString(w, tokenPairsJSON)
	})

	m, err := client.TokenInfo(context.Background(), "0xAbC0000000000000000000000000000000000001")
	require.NoError(t, err)

	assert.Equal(t, "0xdeep", m.PairAddress)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", m.Address, "address lower-cased")
	assert.Equal(t, 10000.0, m.MarketCap, "marketCap preferred over fdv")
	assert.Equal(t, 6000.0, m.LiquidityUSD)
	assert.Equal(t, 15000.0, m.Volume24h)
	assert.Equal(t, 120, m.Buys24h)
	assert.Equal(t, 40, m.Sells24h)
	assert.InDelta(t, 0.0010, m.PriceUSD, 1e-12)
	assert.Equal(t, "https://img.example/pking.png", m.LogoURL)
}

func TestDexScreener_TokenInfoNoPairsIsUnavailable(t *testing.T) {
	_, client := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"schemaVersion":"1.0.0","pairs":null}`)
	})

	m, err := client.TokenInfo(context.Background(), "0xdead")
	require.Error(t, err)
	assert.Nil(t, m)
	assert.True(t, errors.Is(err, external.ErrUnavailable))
}

func TestDexScreener_MalformedPriceIsUnavailable(t *testing.T) {
	_, client := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"pairs":[{"pairAddress":"0x1","priceUsd":"n/a","baseToken":{"address":"0x1"}}]}`)
	})

	_, err := client.TokenInfo(context.Background(), "0x1")
	require.ErrorIs(t, err, external.ErrUnavailable)
}

func TestDexScreener_ZeroPriceIsUnavailable(t *testing.T) {
	for _, price := range []string{"0", "0.000", "-1"} {
		_, client := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"pairs":[{"pairAddress":"0x1","priceUsd":"`+price+`","baseToken":{"address":"0x1"},"liquidity":{"usd":9000}}]}`)
		})

		m, err := client.TokenInfo(context.Background(), "0x1")
		require.ErrorIs(t, err, external.ErrUnavailable, "price %s", price)
		assert.Nil(t, m)
	}
}

func TestDexScreener_LatestPairsDropsMalformed(t *testing.T) {
	_, client := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pairs/bsc", r.URL.Path)
		io.WriteString(w, `{"pairs":[
			{"pairAddress":"0x1","priceUsd":"1.5","baseToken":{"address":"0xA1","symbol":"AAA"}},
			{"pairAddress":"0x2","priceUsd":"2","baseToken":{"address":""}},
			{"pairAddress":"0x3","priceUsd":"","baseToken":{"address":"0xA3"}}
		]}`)
	})

	pairs, err := client.LatestPairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "0xa1", pairs[0].Address)
	assert.Equal(t, "Unknown", pairs[0].Name)
}

func TestDexScreener_NativePriceCachedAndFallback(t *testing.T) {
	var hits atomic.Int32
	_, client := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"pairs": []map[string]any{{
			"pairAddress": "0xwbnb", "priceUsd": "612.5",
			"baseToken": map[string]string{"address": wbnb, "symbol": "WBNB"},
			"liquidity": map[string]float64{"usd": 1e7},
		}}})
	})

	ctx := context.Background()
	assert.Equal(t, 612.5, client.NativePrice(ctx))
	assert.Equal(t, 612.5, client.NativePrice(ctx))
	assert.Equal(t, int32(1), hits.Load(), "second call served from cache")

	_, down := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.Equal(t, 600.0, down.NativePrice(ctx))
}

func TestRankTrending(t *testing.T) {
	_, client := newDexServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"pairs":[
			{"priceUsd":"1","baseToken":{"address":"0xlow"},"liquidity":{"usd":500},"marketCap":10000,"volume":{"h24":99999}},
			{"priceUsd":"1","baseToken":{"address":"0xmid"},"liquidity":{"usd":5000},"marketCap":10000,"volume":{"h24":2000}},
			{"priceUsd":"1","baseToken":{"address":"0xtop"},"liquidity":{"usd":5000},"marketCap":20000,"volume":{"h24":8000}},
			{"priceUsd":"1","baseToken":{"address":"0xtiny"},"liquidity":{"usd":5000},"marketCap":4000,"volume":{"h24":50000}}
		]}`)
	})

	trending, err := client.Trending(context.Background())
	require.NoError(t, err)
	require.Len(t, trending, 2)
	assert.Equal(t, "0xtop", trending[0].Address)
	assert.Equal(t, "0xmid", trending[1].Address)
}

func TestAnthropic_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req["model"])
		assert.EqualValues(t, 1500, req["max_tokens"])

		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"overall_score\": 70}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	c := external.NewAnthropicClient("test-key", "claude-test", option.WithBaseURL(srv.URL))
	text, err := c.Complete(context.Background(), "score this token")
	require.NoError(t, err)
	assert.Equal(t, `{"overall_score": 70}`, text)
}

func TestAnthropic_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"type":"authentication_error"}}`)
	}))
	defer srv.Close()

	c := external.NewAnthropicClient("bad", "claude-test", option.WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestDexScreenerLive(t *testing.T) {
	if os.Getenv("DEXSCREENER_LIVE_TEST") == "" {
		t.Skip("DEXSCREENER_LIVE_TEST not set, skipping")
	}
	client := external.NewDexScreenerClient(external.DexScreenerOptions{WrappedNative: wbnb})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	price := client.NativePrice(ctx)
	if price <= 0 {
		t.Fatalf("expected positive BNB price, got %f", price)
	}
	t.Logf("BNB price: $%.2f", price)
}
