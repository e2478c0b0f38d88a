package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/redis"
)

func setup(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		client, err := redis.Connect(context.Background(), redis.Config{
			ConnectionURL:  "redis://" + mr.Addr() + "/0",
			RetryAttempts:  1,
			ConnectTimeout: time.Second,
		})
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, redis.Healthcheck(client)(context.Background()))
	})

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{})
		assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: "mysql://nope"})
		assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
	})
}

func TestHealthcheckFailsWhenServerDown(t *testing.T) {
	t.Parallel()
	mr, client := setup(t)
	mr.Close()
	assert.ErrorIs(t, redis.Healthcheck(client)(context.Background()), redis.ErrHealthcheckFailed)
}

func TestLocker(t *testing.T) {
	t.Parallel()

	t.Run("second caller is refused until release", func(t *testing.T) {
		t.Parallel()
		_, client := setup(t)
		locker := redis.NewLocker(client)
		ctx := context.Background()

		release, ok, err := locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		release()
		release2, ok, err := locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		release2()
	})

	t.Run("expired lock is not released by its former owner", func(t *testing.T) {
		t.Parallel()
		mr, client := setup(t)
		locker := redis.NewLocker(client)
		ctx := context.Background()

		release, ok, err := locker.TryLock(ctx, "k", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)
		_, ok, err = locker.TryLock(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		release()
		assert.True(t, mr.Exists("lock:k"))
	})
}
