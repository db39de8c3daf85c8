package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Hour}

	// Jitter is ±20%, so check against the unjittered bounds.
	for attempts, base := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
	} {
		d := b.Delay(attempts)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8), "attempts=%d", attempts)
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2), "attempts=%d", attempts)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 10 * time.Second}

	for i := 0; i < 100; i++ {
		d := b.Delay(30)
		assert.LessOrEqual(t, d, time.Duration(float64(b.Cap)*1.2))
		assert.GreaterOrEqual(t, d, time.Duration(float64(b.Cap)*0.8))
	}
}

func TestBackoffDelayClampsBadInput(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute}

	d := b.Delay(0)
	assert.GreaterOrEqual(t, d, time.Duration(float64(time.Second)*0.8))
	assert.LessOrEqual(t, d, time.Duration(float64(time.Second)*1.2))
}
