package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines subscription persistence. Implementations must make every
// write a single atomic statement keyed by ExternalSubscriptionID.
type Store interface {
	// GetByUserID returns the most recently created record for the user.
	// Returns ErrSubscriptionNotFound if the user has none.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Record, error)

	// GetByExternalID returns the record for a processor subscription id.
	// Returns ErrSubscriptionNotFound if no record exists.
	GetByExternalID(ctx context.Context, subscriptionID string) (*Record, error)

	// Upsert inserts rec or overwrites the existing record with the same
	// ExternalSubscriptionID. When rec.LastEventAt is set, the overwrite only
	// happens if the stored record has not seen a newer event; applied is false
	// otherwise.
	Upsert(ctx context.Context, rec *Record) (applied bool, err error)

	// UpdateFromEvent has the same semantics as Upsert but never inserts and
	// keeps the stored UserID. Returns ErrSubscriptionNotFound if no record exists.
	UpdateFromEvent(ctx context.Context, rec *Record) (applied bool, err error)

	// SetCancellation records a scheduled cancellation requested by the user.
	SetCancellation(ctx context.Context, subscriptionID string, cancelAt, canceledAt, periodEnd time.Time) error

	// ClearCancellation removes a scheduled cancellation.
	ClearCancellation(ctx context.Context, subscriptionID string) error

	// MarkCanceled moves the record to StatusCanceled.
	// Returns ErrSubscriptionNotFound if no record exists.
	MarkCanceled(ctx context.Context, subscriptionID string, canceledAt time.Time, cancelAt *time.Time, eventAt time.Time) (applied bool, err error)
}

// isNewer reports whether an incoming event time may overwrite stored state.
// Equal timestamps re-apply so redelivery of the same event is idempotent.
func isNewer(stored, incoming *time.Time) bool {
	if stored == nil || incoming == nil {
		return true
	}
	return !incoming.Before(*stored)
}
