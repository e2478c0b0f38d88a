package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// DefaultOperationTimeout bounds a single processor-facing operation.
const DefaultOperationTimeout = 30 * time.Second

// Option configures billing components.
type Option func(*options)

type options struct {
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
	locker  Locker
	ledger  EventLedger
}

func newOptions(opts []Option) options {
	o := options{
		log:     slog.Default(),
		timeout: DefaultOperationTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the fallback logger used when the request context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTimeout bounds each operation. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocker enables cross-instance locking around customer creation.
func WithLocker(l Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithEventLedger enables webhook event de-duplication across deliveries.
func WithEventLedger(l EventLedger) Option {
	return func(o *options) { o.ledger = l }
}

func (o options) logger(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, o.log)
}

// bound applies the operation timeout to ctx.
func (o options) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}

func (o options) clock() time.Time {
	return o.now().UTC()
}
