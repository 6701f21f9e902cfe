package server

import (
	"math"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// tokenBucket meters inbound records per session. It starts full with
// burst tokens and regains burst tokens every refill interval, accrued
// continuously.
type tokenBucket struct {
	clock clockz.Clock
	burst float64
	rate  float64 // tokens per second

	mu     sync.Mutex
	level  float64
	filled time.Time
}

func newTokenBucket(cfg RateLimitConfig, clock clockz.Clock) *tokenBucket {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	refill := cfg.RefillInterval
	if refill <= 0 {
		refill = time.Second
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	return &tokenBucket{
		clock:  clock,
		burst:  float64(burst),
		rate:   float64(burst) / refill.Seconds(),
		level:  float64(burst),
		filled: clock.Now(),
	}
}

// take spends one token. When the bucket is empty it reports how long
// until the next token is available.
func (b *tokenBucket) take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if gap := now.Sub(b.filled); gap > 0 {
		b.level = math.Min(b.burst, b.level+gap.Seconds()*b.rate)
	}
	b.filled = now

	if b.level >= 1 {
		b.level--
		return true, 0
	}
	return false, time.Duration(math.Ceil((1 - b.level) / b.rate * float64(time.Second)))
}
