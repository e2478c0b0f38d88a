package ratelimit

import (
	"context"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int       // Limit is the bucket capacity.
	Remaining int       // Remaining is the whole number of tokens left after this request.
	ResetAt   time.Time // ResetAt is when the next token becomes available.
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow consumes one token for key if one is available.
	Allow(ctx context.Context, key string) (*Result, error)
	// Reset forgets the state kept for key.
	Reset(ctx context.Context, key string) error
}
