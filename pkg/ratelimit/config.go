package ratelimit

import "time"

// Config describes a token bucket refilled at Rate tokens per Interval.
type Config struct {
	Rate     int           `env:"COUPON_RATE_LIMIT" envDefault:"10"`     // Rate is the number of tokens added per Interval.
	Interval time.Duration `env:"COUPON_RATE_INTERVAL" envDefault:"1m"`  // Interval is the refill period.
	Burst    int           `env:"COUPON_RATE_BURST" envDefault:"5"`      // Burst is the bucket capacity.
	IdleTTL  time.Duration `env:"COUPON_RATE_IDLE_TTL" envDefault:"10m"` // IdleTTL drops buckets not touched for this long.
}
