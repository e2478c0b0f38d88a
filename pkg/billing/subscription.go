package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status mirrors the processor's subscription state machine. The local store
// never originates a status; it only records what the processor reported.
type Status string

const (
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusUnpaid            Status = "unpaid"
	StatusPaused            Status = "paused"
)

// IsTerminal reports whether no further lifecycle action is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

func (s Status) String() string {
	return string(s)
}

// Record is the locally persisted snapshot of a processor subscription.
// ExternalSubscriptionID is unique and is the conflict key for every upsert.
type Record struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 uuid.UUID  `json:"userId"`
	ExternalCustomerID     string     `json:"customerId"`
	ExternalSubscriptionID string     `json:"subscriptionId"`
	Status                 Status     `json:"status"`
	Plan                   string     `json:"plan"`
	CurrentPeriodStart     time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd       time.Time  `json:"currentPeriodEnd"`
	CancelAt               *time.Time `json:"cancelAt,omitempty"`
	CanceledAt             *time.Time `json:"canceledAt,omitempty"`

	// LastEventAt is the creation time of the newest webhook event applied to
	// this record. Older events are discarded.
	LastEventAt *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsEntitled reports whether the user has paid access at now.
// A scheduled cancellation keeps access until CancelAt.
func (r *Record) IsEntitled(now time.Time) bool {
	if r == nil || r.Status != StatusActive {
		return false
	}
	if !now.Before(r.CurrentPeriodEnd) {
		return false
	}
	if r.CancelAt != nil && !now.Before(*r.CancelAt) {
		return false
	}
	return true
}

// IsPendingCancellation reports whether a cancellation was requested and is
// scheduled for a future point.
func (r *Record) IsPendingCancellation() bool {
	return r != nil && r.CancelAt != nil && r.CanceledAt != nil && !r.Status.IsTerminal()
}

// recordFromSnapshot builds a record from processor state.
func recordFromSnapshot(userID uuid.UUID, snap SubscriptionSnapshot) *Record {
	return &Record{
		UserID:                 userID,
		ExternalCustomerID:     snap.CustomerID,
		ExternalSubscriptionID: snap.ID,
		Status:                 snap.Status,
		Plan:                   snap.Plan,
		CurrentPeriodStart:     snap.CurrentPeriodStart,
		CurrentPeriodEnd:       snap.CurrentPeriodEnd,
		CancelAt:               snap.CancelAt,
		CanceledAt:             snap.CanceledAt,
	}
}
