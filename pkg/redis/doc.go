// Package redis connects to Redis with go-redis/v9 and provides the
// cross-instance primitives the billing service shares through it.
//
// Connect retries the initial ping, Healthcheck returns a readiness probe
// and Locker implements short-lived SET NX locks released with a
// compare-and-delete script:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	locker := redis.NewLocker(client)
//	release, ok, err := locker.TryLock(ctx, "billing:customer:a@b.c", 10*time.Second)
//
// Sentinel errors wrap go-redis errors with errors.Join.
package redis
