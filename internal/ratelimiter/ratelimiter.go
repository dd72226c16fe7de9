// Package ratelimiter throttles how fast the forwarder drains the store.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket limiting units per second.
//
// It wraps golang.org/x/time/rate. A rate of zero disables limiting: every
// call is admitted immediately.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter admitting unitsPerSecond on average with bursts of up
// to burst units.
//
// Parameters:
//   - unitsPerSecond: Sustained rate; 0 means unlimited
//   - burst: Bucket capacity; raised to 1 when a rate is set so Wait can
//     ever succeed
//
// Example:
//
//	// Forward at most 50 units/s, allowing 100 back to back after a pause
//	limiter := New(50, 100)
func New(unitsPerSecond, burst uint) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(toLimit(unitsPerSecond), toBurst(unitsPerSecond, burst))}
}

// Allow reports whether one unit may be forwarded now, consuming a token if
// so. It never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a unit may be forwarded or ctx is done, in which case the
// context error is returned.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetRate changes the sustained rate and burst. Tokens already in the bucket
// are kept (up to the new burst).
func (r *RateLimiter) SetRate(unitsPerSecond, burst uint) {
	r.limiter.SetLimit(toLimit(unitsPerSecond))
	r.limiter.SetBurst(toBurst(unitsPerSecond, burst))
}

// Unlimited reports whether the limiter admits everything.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Tokens returns the number of tokens currently available. Only meaningful
// for monitoring; the value changes concurrently.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

func toLimit(unitsPerSecond uint) rate.Limit {
	if unitsPerSecond == 0 {
		return rate.Inf
	}
	return rate.Limit(unitsPerSecond)
}

func toBurst(unitsPerSecond, burst uint) int {
	if unitsPerSecond > 0 && burst == 0 {
		return 1
	}
	return int(burst)
}
