// Package ratelimit implements the minimum-delay gate placed in front of every
// outbound request.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/location-crawler/internal/metrics"
)

// Gate enforces a minimum delay between consecutive requests. It is a token
// bucket of size one refilled every MinDelay, so there are no bursts.
type Gate struct {
	limiter  *rate.Limiter
	minDelay time.Duration
}

// New creates a Gate. A non-positive minDelay disables waiting.
func New(minDelay time.Duration) *Gate {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Gate{
		limiter:  rate.NewLimiter(limit, 1),
		minDelay: minDelay,
	}
}

// FromSeconds builds a Gate from a fractional number of seconds.
func FromSeconds(seconds float64) *Gate {
	return New(time.Duration(seconds * float64(time.Second)))
}

// MinDelay is the configured spacing between requests.
func (g *Gate) MinDelay() time.Duration {
	return g.minDelay
}

// Wait blocks until the next request may start, respecting the context.
func (g *Gate) Wait(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}
