package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

func seededStore(t *testing.T, user uuid.UUID, status billing.Status) billing.Store {
	t.Helper()
	store := billing.NewMemoryStore()
	_, err := store.Upsert(context.Background(), newRecord(user, "sub_1", status, at(testNow.Add(-time.Hour))))
	require.NoError(t, err)
	return store
}

func TestLifecycleCancelThenRenew(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	store := seededStore(t, user, billing.StatusActive)

	canceled := *activeSnapshot("sub_1", user.String())
	canceled.CancelAtPeriodEnd = true
	proc := &MockProcessor{}
	proc.On("SetCancelAtPeriodEnd", mock.Anything, "sub_1", true).Return(&canceled, nil)
	proc.On("SetCancelAtPeriodEnd", mock.Anything, "sub_1", false).Return(activeSnapshot("sub_1", user.String()), nil)

	m := billing.NewLifecycleManager(proc, store, billing.WithClock(fixedClock))
	ctx := context.Background()

	rec, err := m.Cancel(ctx, user, user)
	require.NoError(t, err)
	require.NotNil(t, rec.CancelAt)
	assert.True(t, rec.CancelAt.Equal(periodEnd), "cancel_at falls back to period end")
	assert.True(t, rec.CanceledAt.Equal(testNow))

	stored, err := store.GetByUserID(ctx, user)
	require.NoError(t, err)
	assert.True(t, stored.IsPendingCancellation())
	assert.True(t, stored.IsEntitled(testNow), "access continues until cancel_at")
	assert.False(t, stored.IsEntitled(periodEnd.Add(time.Second)))

	rec, err = m.Renew(ctx, user, user)
	require.NoError(t, err)
	assert.Nil(t, rec.CancelAt)

	stored, err = store.GetByUserID(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, stored.CancelAt)
	assert.Nil(t, stored.CanceledAt)
	assert.Equal(t, billing.StatusActive, stored.Status)
	proc.AssertExpectations(t)
}

func TestLifecycleCancelUsesExplicitCancelAt(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	store := seededStore(t, user, billing.StatusActive)

	cancelAt := testNow.Add(48 * time.Hour)
	snap := *activeSnapshot("sub_1", user.String())
	snap.CancelAt = &cancelAt
	proc := &MockProcessor{}
	proc.On("SetCancelAtPeriodEnd", mock.Anything, "sub_1", true).Return(&snap, nil)

	rec, err := billing.NewLifecycleManager(proc, store).Cancel(context.Background(), user, user)
	require.NoError(t, err)
	assert.True(t, rec.CancelAt.Equal(cancelAt))
}

func TestLifecycleRejections(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	ctx := context.Background()

	t.Run("other user", func(t *testing.T) {
		t.Parallel()
		m := billing.NewLifecycleManager(&MockProcessor{}, seededStore(t, user, billing.StatusActive))

		_, err := m.Cancel(ctx, uuid.New(), user)
		assert.ErrorIs(t, err, billing.ErrForbidden)
		_, err = m.Renew(ctx, uuid.New(), user)
		assert.ErrorIs(t, err, billing.ErrForbidden)
		_, err = m.Current(ctx, uuid.New(), user)
		assert.ErrorIs(t, err, billing.ErrForbidden)
	})

	t.Run("no subscription", func(t *testing.T) {
		t.Parallel()
		m := billing.NewLifecycleManager(&MockProcessor{}, billing.NewMemoryStore())
		_, err := m.Cancel(ctx, user, user)
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("terminal subscription", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		m := billing.NewLifecycleManager(proc, seededStore(t, user, billing.StatusCanceled))

		_, err := m.Cancel(ctx, user, user)
		assert.ErrorIs(t, err, billing.ErrInvalidSubscriptionState)
		_, err = m.Renew(ctx, user, user)
		assert.ErrorIs(t, err, billing.ErrInvalidSubscriptionState)
		proc.AssertNotCalled(t, "SetCancelAtPeriodEnd", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("processor failure leaves record untouched", func(t *testing.T) {
		t.Parallel()
		store := seededStore(t, user, billing.StatusActive)
		proc := &MockProcessor{}
		proc.On("SetCancelAtPeriodEnd", mock.Anything, "sub_1", true).Return(nil, billing.ErrProcessorUnavailable)

		_, err := billing.NewLifecycleManager(proc, store).Cancel(ctx, user, user)
		assert.ErrorIs(t, err, billing.ErrProcessorUnavailable)

		rec, err := store.GetByUserID(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, rec.CancelAt)
	})
}

func TestLifecycleCurrent(t *testing.T) {
	t.Parallel()
	user := uuid.New()

	rec, err := billing.NewLifecycleManager(&MockProcessor{}, seededStore(t, user, billing.StatusActive)).
		Current(context.Background(), user, user)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", rec.ExternalSubscriptionID)
}
