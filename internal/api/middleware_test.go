package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testAPIKey = "s3cret-key"

func TestAuth_Routes(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		auth   string
		want   int
	}{
		{"positions without header", http.MethodGet, "/positions", "", "", http.StatusUnauthorized},
		{"buy with basic auth", http.MethodPost, "/buy", `{"ca":"` + testToken + `","amount":0.1}`, "Basic " + testAPIKey, http.StatusUnauthorized},
		{"sell with wrong bearer", http.MethodPost, "/sell", `{"ca":"` + testToken + `"}`, "Bearer nope", http.StatusUnauthorized},
		{"job trigger without header", http.MethodPost, "/v1/jobs/scan/run", "", "", http.StatusUnauthorized},
		{"bare key without scheme", http.MethodGet, "/v1/status", "", testAPIKey, http.StatusUnauthorized},
		{"status with bearer", http.MethodGet, "/v1/status", "", "Bearer " + testAPIKey, http.StatusOK},
		{"buy with bearer", http.MethodPost, "/buy", `{"ca":"` + testToken + `","amount":0.1}`, "Bearer " + testAPIKey, http.StatusOK},
		{"health is public", http.MethodGet, "/health", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixtureWith(t, Options{APIKey: testAPIKey}, fakeWallet{}, nil)

			var rr *httptest.ResponseRecorder
			if tc.auth == "" {
				rr = f.do(tc.method, tc.path, tc.body)
			} else {
				rr = f.do(tc.method, tc.path, tc.body, "Authorization", tc.auth)
			}
			if rr.Code != tc.want {
				t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, rr.Code, rr.Body.String())
			}
			if tc.want == http.StatusUnauthorized {
				assert.Empty(t, f.trading.token, "rejected request reached the trader")
				assert.Empty(t, f.jobs.ran, "rejected request ran a job")
			}
		})
	}
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(http.MethodPost, "/sell", `{"ca":"`+testToken+`","percent":50}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", rr.Code)
	}
	assert.Equal(t, 50.0, f.trading.percent)
}

func TestCORS_HeadersOnEveryResponse(t *testing.T) {
	f := newFixtureWith(t, Options{APIKey: testAPIKey, CORSOrigin: "https://dash.example"}, fakeWallet{}, nil)

	for _, rr := range []*httptest.ResponseRecorder{
		f.do(http.MethodGet, "/health", ""),
		f.do(http.MethodGet, "/positions", ""),
	} {
		assert.Equal(t, "https://dash.example", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	}
}

func TestCORS_PreflightSkipsAuthAndHandlers(t *testing.T) {
	f := newFixtureWith(t, Options{APIKey: testAPIKey}, fakeWallet{}, nil)

	rr := f.do(http.MethodOptions, "/buy", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rr.Code)
	}
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, f.trading.token)
}

func TestValidAddress(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"0x55d398326f99059fF775485246999027B3197955", true},
		{"0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", true},
		{"", false},
		{"0x", false},
		{"55d398326f99059fF775485246999027B3197955", false},
		{"0x55d398326f99059fF775485246999027B319795", false},
		{"0x55d398326f99059fF775485246999027B31979555", false},
		{"0xZZd398326f99059fF775485246999027B3197955", false},
		{" 0x55d398326f99059fF775485246999027B3197955", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, validAddress(tc.addr), "address %q", tc.addr)
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int{
		"":            100,
		"?limit=50":   50,
		"?limit=0":    100,
		"?limit=-5":   100,
		"?limit=abc":  100,
		"?limit=1000": 1000,
		"?limit=2000": maxQueryLimit,
	}
	for query, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/tokens"+query, nil)
		assert.Equal(t, want, parseLimit(req, 100), "query %q", query)
	}
}
