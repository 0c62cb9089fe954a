// Package ratelimit paces outgoing registry requests with token buckets.
package ratelimit

import (
	"context"
	"sync"

	"github.com/bnema/zerowrap"
	"golang.org/x/time/rate"

	"github.com/bnema/courseimages/internal/boundaries/out"
)

// Ensure Throttle implements out.RequestThrottle.
var _ out.RequestThrottle = (*Throttle)(nil)

// Throttle is an in-memory token bucket per key. A Throttle created with a
// non-positive rate never blocks.
type Throttle struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rps      float64
	burst    int
	log      zerowrap.Logger
}

// NewThrottle creates a throttle allowing rps requests per second per key,
// with bursts of up to burst requests.
func NewThrottle(rps float64, burst int, log zerowrap.Logger) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
		log:      log,
	}
}

// Wait blocks until the bucket for key has a token.
func (t *Throttle) Wait(ctx context.Context, key string) error {
	if t.rps <= 0 {
		return nil
	}
	limiter := t.getLimiter(key)
	if limiter.Tokens() < 1 {
		t.log.Debug().
			Str(zerowrap.FieldHost, key).
			Float64("rps", t.rps).
			Msg("registry requests throttled")
	}
	return limiter.Wait(ctx)
}

// getLimiter returns the limiter for key, creating one if it doesn't exist.
func (t *Throttle) getLimiter(key string) *rate.Limiter {
	t.mu.RLock()
	limiter, exists := t.limiters[key]
	t.mu.RUnlock()

	if exists {
		return limiter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = t.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(t.rps), t.burst)
	t.limiters[key] = limiter
	return limiter
}
