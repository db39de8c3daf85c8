package publish

import (
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: base × 2^attempt, capped, with ±20% jitter
// so a burst of rate-limited tasks does not retry in lockstep.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before the next attempt, given the number of
// attempts already made (1 after the first failure).
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= b.Cap || d <= 0 {
			d = b.Cap
			break
		}
	}
	if d > b.Cap {
		d = b.Cap
	}

	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
