package risk

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRateLimiter_BlocksThirdTradeInWindow(t *testing.T) {
	clk := newClock()
	l := NewRateLimiter(2, time.Minute).WithClock(clk.Now)

	l.RecordTrade()
	clk.Advance(10 * time.Second)
	l.RecordTrade()

	if l.CanTrade() {
		t.Fatal("expected third trade to be blocked")
	}
}

func TestRateLimiter_SlotFreesAfterWindow(t *testing.T) {
	clk := newClock()
	l := NewRateLimiter(2, time.Minute).WithClock(clk.Now)

	l.RecordTrade()
	clk.Advance(10 * time.Second)
	l.RecordTrade()

	clk.Advance(50 * time.Second) // first trade exactly one window old
	if !l.CanTrade() {
		t.Fatal("expected slot to free once the first trade leaves the window")
	}
	if got := l.InWindow(); got != 1 {
		t.Fatalf("expected 1 trade in window, got %d", got)
	}
}

func TestRateLimiter_NeverExceedsMaxInAnyWindow(t *testing.T) {
	clk := newClock()
	l := NewRateLimiter(2, time.Minute).WithClock(clk.Now)

	var accepted []time.Time
	for i := 0; i < 600; i++ {
		if l.CanTrade() {
			l.RecordTrade()
			accepted = append(accepted, clk.Now())
		}
		clk.Advance(7 * time.Second)
	}

	for i := range accepted {
		n := 0
		for j := i; j < len(accepted) && accepted[j].Sub(accepted[i]) < time.Minute; j++ {
			n++
		}
		if n > 2 {
			t.Fatalf("window starting %s holds %d trades", accepted[i], n)
		}
	}
}

func TestRateLimiter_ConcurrentRecords(t *testing.T) {
	l := NewRateLimiter(2, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordTrade()
			_ = l.CanTrade()
		}()
	}
	wg.Wait()

	if got := l.InWindow(); got != 50 {
		t.Fatalf("expected 50 recorded trades, got %d", got)
	}
	if l.CanTrade() {
		t.Fatal("expected limiter to be full")
	}
}
