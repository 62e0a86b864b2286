package risk

import "time"

// ExitBackoff spaces out retries of a failing sell.
type ExitBackoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Next returns the wait after the given number of consecutive failures:
// Base doubled per extra failure, capped at Max.
func (b ExitBackoff) Next(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Exhausted reports whether the position should be flagged for manual review.
func (b ExitBackoff) Exhausted(attempts int) bool {
	return b.MaxAttempts > 0 && attempts >= b.MaxAttempts
}
