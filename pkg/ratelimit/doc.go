// Package ratelimit throttles HTTP endpoints with per-key token buckets
// from golang.org/x/time/rate.
//
//	limiter, err := ratelimit.NewTokenBucket(cfg)
//	r.With(ratelimit.Middleware(limiter, ratelimit.ByRemoteIP)).Post("/coupons/validate", h)
//
// Rejected requests get 429 with Retry-After and X-RateLimit-* headers.
// Buckets live in process memory; each instance enforces its own budget.
package ratelimit
