package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	bySub  map[string]*Record
	byUser map[uuid.UUID][]string
}

// NewMemoryStore returns a Store kept in process memory.
// Records are copied on the way in and out so callers cannot mutate stored state.
func NewMemoryStore() Store {
	return &memoryStore{
		now:    time.Now,
		bySub:  make(map[string]*Record),
		byUser: make(map[uuid.UUID][]string),
	}
}

func (s *memoryStore) GetByUserID(_ context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Record
	for _, id := range s.byUser[userID] {
		rec := s.bySub[id]
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	return cloneRecord(latest), nil
}

func (s *memoryStore) GetByExternalID(_ context.Context, subscriptionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.bySub[subscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneRecord(rec), nil
}

func (s *memoryStore) Upsert(_ context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	existing, ok := s.bySub[rec.ExternalSubscriptionID]
	if !ok {
		stored := cloneRecord(rec)
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.bySub[stored.ExternalSubscriptionID] = stored
		s.byUser[stored.UserID] = append(s.byUser[stored.UserID], stored.ExternalSubscriptionID)
		return true, nil
	}

	if !isNewer(existing.LastEventAt, rec.LastEventAt) {
		return false, nil
	}
	if existing.UserID != rec.UserID {
		s.unindexUser(existing.UserID, existing.ExternalSubscriptionID)
		s.byUser[rec.UserID] = append(s.byUser[rec.UserID], rec.ExternalSubscriptionID)
	}
	existing.UserID = rec.UserID
	applyFields(existing, rec, now)
	return true, nil
}

func (s *memoryStore) UpdateFromEvent(_ context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bySub[rec.ExternalSubscriptionID]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if !isNewer(existing.LastEventAt, rec.LastEventAt) {
		return false, nil
	}
	applyFields(existing, rec, s.now().UTC())
	return true, nil
}

func (s *memoryStore) SetCancellation(_ context.Context, subscriptionID string, cancelAt, canceledAt, periodEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bySub[subscriptionID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	existing.CancelAt = timePtr(cancelAt)
	existing.CanceledAt = timePtr(canceledAt)
	existing.CurrentPeriodEnd = periodEnd
	existing.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memoryStore) ClearCancellation(_ context.Context, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bySub[subscriptionID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	existing.CancelAt = nil
	existing.CanceledAt = nil
	existing.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memoryStore) MarkCanceled(_ context.Context, subscriptionID string, canceledAt time.Time, cancelAt *time.Time, eventAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bySub[subscriptionID]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if !isNewer(existing.LastEventAt, &eventAt) {
		return false, nil
	}
	existing.Status = StatusCanceled
	existing.CanceledAt = timePtr(canceledAt)
	existing.CancelAt = clonePtr(cancelAt)
	existing.LastEventAt = timePtr(eventAt)
	existing.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *memoryStore) unindexUser(userID uuid.UUID, subscriptionID string) {
	ids := s.byUser[userID]
	for i, id := range ids {
		if id == subscriptionID {
			s.byUser[userID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func applyFields(dst, src *Record, now time.Time) {
	if src.ExternalCustomerID != "" {
		dst.ExternalCustomerID = src.ExternalCustomerID
	}
	dst.Status = src.Status
	dst.Plan = src.Plan
	dst.CurrentPeriodStart = src.CurrentPeriodStart
	dst.CurrentPeriodEnd = src.CurrentPeriodEnd
	dst.CancelAt = clonePtr(src.CancelAt)
	dst.CanceledAt = clonePtr(src.CanceledAt)
	if src.LastEventAt != nil {
		dst.LastEventAt = clonePtr(src.LastEventAt)
	}
	dst.UpdatedAt = now
}

func cloneRecord(r *Record) *Record {
	c := *r
	c.CancelAt = clonePtr(r.CancelAt)
	c.CanceledAt = clonePtr(r.CanceledAt)
	c.LastEventAt = clonePtr(r.LastEventAt)
	return &c
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
