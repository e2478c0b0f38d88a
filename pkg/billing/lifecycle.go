package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// LifecycleManager applies user-requested changes to an existing subscription.
// Local writes here are a fast path; webhooks remain the authoritative writer.
type LifecycleManager struct {
	processor Processor
	store     Store
	opts      options
}

// NewLifecycleManager panics if processor or store is nil.
func NewLifecycleManager(processor Processor, store Store, opts ...Option) *LifecycleManager {
	if processor == nil {
		panic("billing: Processor is required")
	}
	if store == nil {
		panic("billing: Store is required")
	}
	return &LifecycleManager{processor: processor, store: store, opts: newOptions(opts)}
}

// Cancel schedules cancellation at the end of the current period.
// actorID is the authenticated caller; it must own the subscription.
func (m *LifecycleManager) Cancel(ctx context.Context, actorID, userID uuid.UUID) (*Record, error) {
	rec, err := m.load(ctx, actorID, userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := m.opts.bound(ctx)
	defer cancel()

	snap, err := m.processor.SetCancelAtPeriodEnd(ctx, rec.ExternalSubscriptionID, true)
	if err != nil {
		return nil, err
	}

	// The processor may report no explicit cancel_at when cancel_at_period_end is set.
	cancelAt := snap.CurrentPeriodEnd
	if snap.CancelAt != nil {
		cancelAt = *snap.CancelAt
	}
	now := m.opts.clock()

	if err := m.store.SetCancellation(ctx, rec.ExternalSubscriptionID, cancelAt, now, snap.CurrentPeriodEnd); err != nil {
		return nil, err
	}

	rec.CancelAt = timePtr(cancelAt)
	rec.CanceledAt = timePtr(now)
	rec.CurrentPeriodEnd = snap.CurrentPeriodEnd

	m.opts.logger(ctx).InfoContext(ctx, "subscription cancellation scheduled",
		logger.Component("lifecycle"),
		logger.UserID(userID),
		logger.SubscriptionID(rec.ExternalSubscriptionID),
		logger.Time("cancel_at", cancelAt),
	)
	return rec, nil
}

// Renew undoes a scheduled cancellation. Status is left as the processor last reported it.
func (m *LifecycleManager) Renew(ctx context.Context, actorID, userID uuid.UUID) (*Record, error) {
	rec, err := m.load(ctx, actorID, userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := m.opts.bound(ctx)
	defer cancel()

	if _, err := m.processor.SetCancelAtPeriodEnd(ctx, rec.ExternalSubscriptionID, false); err != nil {
		return nil, err
	}
	if err := m.store.ClearCancellation(ctx, rec.ExternalSubscriptionID); err != nil {
		return nil, err
	}

	rec.CancelAt = nil
	rec.CanceledAt = nil

	m.opts.logger(ctx).InfoContext(ctx, "subscription cancellation reverted",
		logger.Component("lifecycle"),
		logger.UserID(userID),
		logger.SubscriptionID(rec.ExternalSubscriptionID),
	)
	return rec, nil
}

// Current returns the user's most recent subscription record.
func (m *LifecycleManager) Current(ctx context.Context, actorID, userID uuid.UUID) (*Record, error) {
	if actorID != userID {
		return nil, ErrForbidden
	}
	return m.store.GetByUserID(ctx, userID)
}

func (m *LifecycleManager) load(ctx context.Context, actorID, userID uuid.UUID) (*Record, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUser
	}
	if actorID != userID {
		return nil, ErrForbidden
	}
	rec, err := m.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, ErrInvalidSubscriptionState
	}
	return rec, nil
}
