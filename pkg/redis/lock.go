package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes the key only while it still holds our token, so an expired lock
// re-acquired by another instance is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived SET NX locks shared by every instance that
// talks to the same Redis.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// NewLocker returns a Locker whose keys are namespaced with "lock:".
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client, prefix: "lock:"}
}

// TryLock attempts to take key for ttl without blocking. When acquired is
// true, release must be called once the critical section ends.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The caller's context may already be done when release runs.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
	}
	return release, true, nil
}
