package billing

import "time"

// Event is a decoded processor webhook event. The set of variants is closed:
// CheckoutCompletedEvent, SubscriptionChangedEvent, SubscriptionDeletedEvent
// and IgnoredEvent.
type Event interface {
	Meta() EventMeta
	isEvent()
}

type EventMeta struct {
	ID        string
	Type      string
	CreatedAt time.Time
}

func (m EventMeta) Meta() EventMeta { return m }

// CheckoutCompletedEvent is emitted when a hosted checkout session finishes.
type CheckoutCompletedEvent struct {
	EventMeta
	Mode            CheckoutMode
	SessionID       string
	SubscriptionID  string
	CustomerID      string
	ClientReference string
}

// SubscriptionChangedEvent covers subscription creation and updates. The
// embedded snapshot is fresh enough to apply without a follow-up fetch.
type SubscriptionChangedEvent struct {
	EventMeta
	Created      bool
	Subscription SubscriptionSnapshot
}

type SubscriptionDeletedEvent struct {
	EventMeta
	Subscription SubscriptionSnapshot
}

// IgnoredEvent is any event type outside the handled set.
type IgnoredEvent struct {
	EventMeta
}

func (CheckoutCompletedEvent) isEvent()   {}
func (SubscriptionChangedEvent) isEvent() {}
func (SubscriptionDeletedEvent) isEvent() {}
func (IgnoredEvent) isEvent()             {}
