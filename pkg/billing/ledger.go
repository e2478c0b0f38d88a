package billing

import (
	"context"
	"sync"
	"time"
)

// Claim is the result of claiming a webhook event for processing.
type Claim int

const (
	// ClaimAcquired means the caller owns processing of the event.
	ClaimAcquired Claim = iota
	// ClaimInFlight means another delivery of the event is being processed.
	ClaimInFlight
	// ClaimDone means the event was already processed successfully.
	ClaimDone
)

// EventLedger tracks webhook event ids so redeliveries can be short-circuited.
// Processing stays idempotent without a ledger; it only avoids redundant
// processor round-trips and concurrent duplicate work.
type EventLedger interface {
	Claim(ctx context.Context, eventID string) (Claim, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type memoryLedgerEntry struct {
	done      bool
	expiresAt time.Time
}

type memoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryLedgerEntry
}

// NewMemoryEventLedger returns a single-instance ledger that remembers
// processed events for ttl.
func NewMemoryEventLedger(ttl time.Duration) EventLedger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryLedger{ttl: ttl, now: time.Now, entries: make(map[string]memoryLedgerEntry)}
}

func (l *memoryLedger) Claim(_ context.Context, eventID string) (Claim, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if e, ok := l.entries[eventID]; ok {
		if e.done {
			return ClaimDone, nil
		}
		return ClaimInFlight, nil
	}
	l.entries[eventID] = memoryLedgerEntry{expiresAt: now.Add(l.ttl)}
	return ClaimAcquired, nil
}

func (l *memoryLedger) Complete(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[eventID] = memoryLedgerEntry{done: true, expiresAt: l.now().Add(l.ttl)}
	return nil
}

func (l *memoryLedger) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[eventID]; ok && !e.done {
		delete(l.entries, eventID)
	}
	return nil
}

func (l *memoryLedger) evict(now time.Time) {
	for id, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, id)
		}
	}
}
