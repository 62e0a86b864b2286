package repository_test

import (
	"testing"

	"github.com/kjannette/bsc-meme-trader/internal/repository"
	"github.com/kjannette/bsc-meme-trader/internal/repository/storetest"
	"github.com/kjannette/bsc-meme-trader/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return repository.NewStore(testutil.SetupPool(t))
	})
}

func TestNormalizeAddress(t *testing.T) {
	got := repository.NormalizeAddress("  0xAbC ")
	if got != "0xabc" {
		t.Fatalf("expected 0xabc, got %s", got)
	}
}

func TestListCodec(t *testing.T) {
	if got := repository.EncodeList(nil); got != "[]" {
		t.Fatalf("expected [], got %s", got)
	}
	got := repository.DecodeList([]byte(repository.EncodeList([]string{"a", "b"})))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("round trip mismatch: %v", got)
	}
	if got := repository.DecodeList([]byte("not json")); got == nil || len(got) != 0 {
		t.Fatalf("expected empty list for malformed input, got %v", got)
	}
}
