package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucket keeps one golang.org/x/time/rate limiter per key in memory.
// Buckets idle for longer than the configured TTL are dropped.
type TokenBucket struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// TokenBucketOption configures a TokenBucket.
type TokenBucketOption func(*TokenBucket)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(tb *TokenBucket) {
		if now != nil {
			tb.now = now
		}
	}
}

// NewTokenBucket allows cfg.Rate requests per cfg.Interval with bursts of up
// to cfg.Burst per key.
func NewTokenBucket(cfg Config, opts ...TokenBucketOption) (*TokenBucket, error) {
	if cfg.Rate <= 0 {
		return nil, ErrInvalidLimit
	}
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}

	tb := &TokenBucket{
		limit:   rate.Limit(float64(cfg.Rate) / cfg.Interval.Seconds()),
		burst:   max(cfg.Burst, 1),
		idleTTL: idle,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(tb)
	}
	tb.lastSweep = tb.now()
	return tb, nil
}

func (tb *TokenBucket) Allow(_ context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	now := tb.now()

	tb.mu.Lock()
	tb.sweep(now)
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(tb.limit, tb.burst)}
		tb.buckets[key] = b
	}
	b.lastSeen = now
	tb.mu.Unlock()

	res := &Result{Limit: tb.burst}
	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.ResetAt = now.Add(delay)
		return res, nil
	}

	res.Allowed = true
	tokens := b.limiter.TokensAt(now)
	res.Remaining = int(math.Max(0, math.Floor(tokens)))
	if tokens < 1 {
		res.ResetAt = now.Add(time.Duration((1 - tokens) / float64(tb.limit) * float64(time.Second)))
	} else {
		res.ResetAt = now
	}
	return res, nil
}

func (tb *TokenBucket) Reset(_ context.Context, key string) error {
	tb.mu.Lock()
	delete(tb.buckets, key)
	tb.mu.Unlock()
	return nil
}

// sweep runs at most once per idle TTL. Callers hold tb.mu.
func (tb *TokenBucket) sweep(now time.Time) {
	if now.Sub(tb.lastSweep) < tb.idleTTL {
		return
	}
	for k, b := range tb.buckets {
		if now.Sub(b.lastSeen) >= tb.idleTTL {
			delete(tb.buckets, k)
		}
	}
	tb.lastSweep = now
}
