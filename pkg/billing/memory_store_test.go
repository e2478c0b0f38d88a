package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

func newRecord(userID uuid.UUID, subID string, status billing.Status, eventAt *time.Time) *billing.Record {
	return &billing.Record{
		UserID:                 userID,
		ExternalCustomerID:     "cus_1",
		ExternalSubscriptionID: subID,
		Status:                 status,
		Plan:                   "pro",
		CurrentPeriodStart:     periodStart,
		CurrentPeriodEnd:       periodEnd,
		LastEventAt:            eventAt,
	}
}

func at(t time.Time) *time.Time { return &t }

func TestMemoryStoreUpsert(t *testing.T) {
	t.Parallel()

	t.Run("insert then reapply is idempotent", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		ctx := context.Background()
		user := uuid.New()

		applied, err := store.Upsert(ctx, newRecord(user, "sub_1", billing.StatusActive, at(testNow)))
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = store.Upsert(ctx, newRecord(user, "sub_1", billing.StatusActive, at(testNow)))
		require.NoError(t, err)
		assert.True(t, applied, "equal event time re-applies")

		rec, err := store.GetByUserID(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", rec.ExternalSubscriptionID)
		assert.NotEqual(t, uuid.Nil, rec.ID)
	})

	t.Run("older event is discarded", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		ctx := context.Background()
		user := uuid.New()

		_, err := store.Upsert(ctx, newRecord(user, "sub_1", billing.StatusPastDue, at(testNow)))
		require.NoError(t, err)

		applied, err := store.Upsert(ctx, newRecord(user, "sub_1", billing.StatusActive, at(testNow.Add(-time.Minute))))
		require.NoError(t, err)
		assert.False(t, applied)

		rec, err := store.GetByExternalID(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, rec.Status)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		ctx := context.Background()
		user := uuid.New()

		_, err := store.Upsert(ctx, newRecord(user, "sub_1", billing.StatusActive, nil))
		require.NoError(t, err)

		rec, err := store.GetByExternalID(ctx, "sub_1")
		require.NoError(t, err)
		rec.Status = billing.StatusCanceled

		again, err := store.GetByExternalID(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, again.Status)
	})
}

func TestMemoryStoreLookups(t *testing.T) {
	t.Parallel()
	store := billing.NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetByUserID(ctx, uuid.New())
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	_, err = store.GetByExternalID(ctx, "sub_missing")
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	_, err = store.UpdateFromEvent(ctx, newRecord(uuid.Nil, "sub_missing", billing.StatusActive, at(testNow)))
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	_, err = store.MarkCanceled(ctx, "sub_missing", testNow, nil, testNow)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	assert.ErrorIs(t, store.ClearCancellation(ctx, "sub_missing"), billing.ErrSubscriptionNotFound)
}

func TestMemoryStoreUpdateFromEventKeepsUser(t *testing.T) {
	t.Parallel()
	store := billing.NewMemoryStore()
	ctx := context.Background()
	user := uuid.New()

	_, err := store.Upsert(ctx, newRecord(user, "sub_1", billing.StatusActive, at(testNow)))
	require.NoError(t, err)

	applied, err := store.UpdateFromEvent(ctx, newRecord(uuid.Nil, "sub_1", billing.StatusPastDue, at(testNow.Add(time.Minute))))
	require.NoError(t, err)
	assert.True(t, applied)

	rec, err := store.GetByUserID(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, user, rec.UserID)
	assert.Equal(t, billing.StatusPastDue, rec.Status)
}

func TestMemoryStoreCancellation(t *testing.T) {
	t.Parallel()
	store := billing.NewMemoryStore()
	ctx := context.Background()
	user := uuid.New()

	_, err := store.Upsert(ctx, newRecord(user, "sub_1", billing.StatusActive, at(testNow)))
	require.NoError(t, err)

	require.NoError(t, store.SetCancellation(ctx, "sub_1", periodEnd, testNow, periodEnd))
	rec, err := store.GetByExternalID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, rec.CancelAt)
	assert.True(t, rec.IsPendingCancellation())

	require.NoError(t, store.ClearCancellation(ctx, "sub_1"))
	rec, err = store.GetByExternalID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Nil(t, rec.CancelAt)
	assert.Nil(t, rec.CanceledAt)

	applied, err := store.MarkCanceled(ctx, "sub_1", testNow, nil, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, applied, "deletion older than stored state")

	applied, err = store.MarkCanceled(ctx, "sub_1", testNow, nil, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, applied)

	rec, err = store.GetByUserID(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCanceled, rec.Status)
	assert.False(t, rec.IsEntitled(testNow))
}
