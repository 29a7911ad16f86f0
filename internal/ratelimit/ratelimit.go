// Package ratelimit shares one token bucket per upstream source across all
// in-flight requests. Buckets are keyed by source id, not league: several
// leagues may ride the same upstream transport.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TimeoutError is returned when a caller's deadline elapses before a token
// becomes available.
type TimeoutError struct {
	SourceID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ratelimit: deadline elapsed waiting for source %q", e.SourceID)
}

// SourceLimit configures one source's bucket.
type SourceLimit struct {
	PerSecond float64 `yaml:"per_second" mapstructure:"per_second"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// Limiter owns the per-source buckets. Construct one per engine and inject
// it; buckets are created lazily on first acquire.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	limits       map[string]SourceLimit
	defaultLimit SourceLimit
}

// New creates a Limiter with per-source overrides. Sources absent from limits
// use defaultLimit; a zero defaultLimit falls back to 3 req/s, burst 3.
func New(limits map[string]SourceLimit, defaultLimit SourceLimit) *Limiter {
	if defaultLimit.PerSecond <= 0 {
		defaultLimit.PerSecond = 3
	}
	if defaultLimit.Burst <= 0 {
		defaultLimit.Burst = 3
	}
	return &Limiter{
		buckets:      make(map[string]*rate.Limiter),
		limits:       limits,
		defaultLimit: defaultLimit,
	}
}

func (l *Limiter) bucket(sourceID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[sourceID]; ok {
		return b
	}
	lim := l.defaultLimit
	if override, ok := l.limits[sourceID]; ok {
		if override.PerSecond > 0 {
			lim.PerSecond = override.PerSecond
		}
		if override.Burst > 0 {
			lim.Burst = override.Burst
		}
	}
	b := rate.NewLimiter(rate.Limit(lim.PerSecond), lim.Burst)
	l.buckets[sourceID] = b
	zap.L().Debug("ratelimit: bucket created",
		zap.String("source", sourceID),
		zap.Float64("per_second", lim.PerSecond),
		zap.Int("burst", lim.Burst),
	)
	return b
}

// Acquire blocks until a token is available for the source or the context's
// deadline elapses, in which case it returns *TimeoutError. Cancelling the
// context releases only this caller's wait.
func (l *Limiter) Acquire(ctx context.Context, sourceID string) error {
	err := l.bucket(sourceID).Wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TimeoutError{SourceID: sourceID}
	}
	// rate.Limiter also fails fast when the deadline cannot possibly be met.
	return &TimeoutError{SourceID: sourceID}
}

// Allow reports whether a token is immediately available without consuming
// the caller's deadline; used by health checks.
func (l *Limiter) Allow(sourceID string) bool {
	return l.bucket(sourceID).Allow()
}
