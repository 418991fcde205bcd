package risk

import (
	"sync"
	"time"
)

// tokenBucket is a per-account orders-per-minute limiter, per spec.md
// §4.5 rule 5 ("Orders-per-minute token bucket (per account)"). Refills
// continuously rather than on a fixed tick, so burst behavior is smooth.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	last       time.Time
}

func newTokenBucket(perMinute int) *tokenBucket {
	cap := float64(perMinute)
	if cap <= 0 {
		cap = 1
	}
	return &tokenBucket{
		capacity:   cap,
		tokens:     cap,
		refillRate: cap / 60.0,
		last:       time.Now(),
	}
}

// take reports whether a token was available and consumes it if so.
func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
