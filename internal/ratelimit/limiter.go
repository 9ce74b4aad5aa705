// Package ratelimit implements the global inter-request delay as a
// token bucket shared by every remote call of one invocation.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/naramarket/crawler/internal/metrics"
)

// Config holds limiter configuration.
type Config struct {
	// Interval is the minimum spacing between successful remote calls.
	// Zero or negative disables limiting.
	Interval time.Duration
	Burst    int
}

// Limiter spaces remote calls. It is owned by the invocation and handed
// to concurrent detail workers as a shared read-only handle.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter from the configured interval.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}
