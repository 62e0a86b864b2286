package risk

import (
	"sync"
	"time"
)

// RateLimiter admits at most max trades in any sliding window.
// Safe for concurrent use.
type RateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	times []time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{max: max, window: window, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// CanTrade reports whether another trade fits in the current window.
func (l *RateLimiter) CanTrade() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	return len(l.times) < l.max
}

// RecordTrade appends the current time to the window.
func (l *RateLimiter) RecordTrade() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	l.times = append(l.times, l.now())
}

// InWindow returns the number of trades currently counted.
func (l *RateLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	return len(l.times)
}

func (l *RateLimiter) pruneLocked() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.times) && !l.times[i].After(cutoff) {
		i++
	}
	l.times = l.times[i:]
}
