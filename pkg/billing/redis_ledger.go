package billing

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ledgerProcessing = "processing"
	ledgerDone       = "done"

	// A claim left behind by a crashed instance frees itself after this long.
	ledgerClaimTTL = 2 * time.Minute
)

var releaseClaimScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisEventLedger returns a ledger shared by all service instances.
// Processed events are remembered for ttl.
func NewRedisEventLedger(client redis.UniversalClient, ttl time.Duration) EventLedger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisLedger{client: client, ttl: ttl, prefix: "billing:webhook:"}
}

func (l *redisLedger) Claim(ctx context.Context, eventID string) (Claim, error) {
	key := l.prefix + eventID
	ok, err := l.client.SetNX(ctx, key, ledgerProcessing, ledgerClaimTTL).Result()
	if err != nil {
		return ClaimAcquired, err
	}
	if ok {
		return ClaimAcquired, nil
	}

	state, err := l.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; treat as in flight and let the
		// processor redeliver.
		return ClaimInFlight, nil
	case err != nil:
		return ClaimAcquired, err
	case state == ledgerDone:
		return ClaimDone, nil
	default:
		return ClaimInFlight, nil
	}
}

func (l *redisLedger) Complete(ctx context.Context, eventID string) error {
	return l.client.Set(context.WithoutCancel(ctx), l.prefix+eventID, ledgerDone, l.ttl).Err()
}

func (l *redisLedger) Release(ctx context.Context, eventID string) error {
	return releaseClaimScript.Run(context.WithoutCancel(ctx), l.client, []string{l.prefix + eventID}, ledgerProcessing).Err()
}
