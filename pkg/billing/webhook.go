package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// Outcome classifies how an authenticated webhook event was handled.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
)

// WebhookResult describes a handled event.
type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   Outcome
}

// WebhookProcessor reconciles local subscription records with the processor's
// event feed. It performs no internal retries: a returned error is meant to
// be answered with a failure status so the processor redelivers.
type WebhookProcessor struct {
	processor Processor
	store     Store
	catalog   *Catalog
	methods   *PaymentMethodManager
	opts      options
}

// NewWebhookProcessor panics if processor or store is nil. catalog maps price
// ids back to plan keys and methods handles setup-mode checkouts; either may
// be nil.
func NewWebhookProcessor(processor Processor, store Store, catalog *Catalog, methods *PaymentMethodManager, opts ...Option) *WebhookProcessor {
	if processor == nil {
		panic("billing: Processor is required")
	}
	if store == nil {
		panic("billing: Store is required")
	}
	return &WebhookProcessor{
		processor: processor,
		store:     store,
		catalog:   catalog,
		methods:   methods,
		opts:      newOptions(opts),
	}
}

// Handle authenticates and applies one webhook delivery. The signature is
// verified before the payload is decoded.
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	evt, err := p.processor.ParseEvent(payload, signature)
	if err != nil {
		p.opts.logger(ctx).WarnContext(ctx, "webhook rejected", logger.Component("webhook"), logger.Error(err))
		return WebhookResult{}, err
	}

	meta := evt.Meta()
	res := WebhookResult{EventID: meta.ID, EventType: meta.Type}
	log := p.opts.logger(ctx).With(
		logger.Component("webhook"),
		logger.EventID(meta.ID),
		logger.EventType(meta.Type),
	)
	ctx = logger.WithContext(ctx, log)

	if _, ok := evt.(IgnoredEvent); ok {
		log.DebugContext(ctx, "webhook event type not handled")
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	claimed := false
	if p.opts.ledger != nil && meta.ID != "" {
		claim, err := p.opts.ledger.Claim(ctx, meta.ID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "event ledger unavailable, processing without it", logger.Error(err))
		case claim == ClaimDone:
			res.Outcome = OutcomeDuplicate
			return res, nil
		case claim == ClaimInFlight:
			return res, ErrEventInFlight
		default:
			claimed = true
		}
	}

	res.Outcome, err = p.dispatch(ctx, evt)
	if err != nil {
		if claimed {
			if rerr := p.opts.ledger.Release(ctx, meta.ID); rerr != nil {
				log.WarnContext(ctx, "failed to release event claim", logger.Error(rerr))
			}
		}
		log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		return res, err
	}

	if claimed {
		if err := p.opts.ledger.Complete(ctx, meta.ID); err != nil {
			log.WarnContext(ctx, "failed to record processed event", logger.Error(err))
		}
	}
	log.InfoContext(ctx, "webhook processed", logger.Outcome(string(res.Outcome)))
	return res, nil
}

func (p *WebhookProcessor) dispatch(ctx context.Context, evt Event) (Outcome, error) {
	switch e := evt.(type) {
	case CheckoutCompletedEvent:
		return p.checkoutCompleted(ctx, e)
	case SubscriptionChangedEvent:
		return p.subscriptionChanged(ctx, e)
	case SubscriptionDeletedEvent:
		return p.subscriptionDeleted(ctx, e)
	case IgnoredEvent:
		return OutcomeIgnored, nil
	default:
		p.opts.logger(ctx).WarnContext(ctx, "unexpected event variant", slog.String("variant", fmt.Sprintf("%T", evt)))
		return OutcomeIgnored, nil
	}
}

func (p *WebhookProcessor) checkoutCompleted(ctx context.Context, e CheckoutCompletedEvent) (Outcome, error) {
	switch e.Mode {
	case CheckoutModeSubscription:
	case CheckoutModeSetup:
		if p.methods == nil || e.CustomerID == "" {
			return OutcomeIgnored, nil
		}
		if _, err := p.methods.EnsureDefault(ctx, e.CustomerID); err != nil {
			return "", err
		}
		return OutcomeProcessed, nil
	default:
		return OutcomeIgnored, nil
	}

	if e.SubscriptionID == "" {
		return "", errors.Join(ErrMalformedEvent, errors.New("checkout session has no subscription"))
	}

	// The event payload may lag behind; the fetched subscription is authoritative.
	fetchCtx, cancel := p.opts.bound(ctx)
	snap, err := p.processor.GetSubscription(fetchCtx, e.SubscriptionID)
	cancel()
	if err != nil {
		return "", err
	}

	userID, err := userFromReference(e.ClientReference, snap.Metadata)
	if err != nil {
		return "", err
	}

	rec := recordFromSnapshot(userID, *snap)
	rec.Plan = p.planKey(*snap)
	if rec.ExternalCustomerID == "" {
		rec.ExternalCustomerID = e.CustomerID
	}
	rec.LastEventAt = timePtr(e.CreatedAt)

	return p.upsert(ctx, rec)
}

func (p *WebhookProcessor) subscriptionChanged(ctx context.Context, e SubscriptionChangedEvent) (Outcome, error) {
	snap := e.Subscription
	if snap.ID == "" {
		return "", errors.Join(ErrMalformedEvent, errors.New("subscription event has no id"))
	}

	userID, _ := parseUserID(snap.Metadata[MetadataUserID])
	rec := recordFromSnapshot(userID, snap)
	rec.Plan = p.planKey(snap)
	rec.LastEventAt = timePtr(e.CreatedAt)

	if userID != uuid.Nil {
		return p.upsert(ctx, rec)
	}

	// Without a user reference the record can only be updated. A missing
	// record is reported so the processor redelivers once checkout lands.
	applied, err := p.store.UpdateFromEvent(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			p.opts.logger(ctx).WarnContext(ctx, "subscription event for unknown record without user reference",
				logger.SubscriptionID(snap.ID))
		}
		return "", err
	}
	if !applied {
		return OutcomeStale, nil
	}
	return OutcomeProcessed, nil
}

func (p *WebhookProcessor) subscriptionDeleted(ctx context.Context, e SubscriptionDeletedEvent) (Outcome, error) {
	snap := e.Subscription
	if snap.ID == "" {
		return "", errors.Join(ErrMalformedEvent, errors.New("subscription event has no id"))
	}

	canceledAt := e.CreatedAt
	if snap.CanceledAt != nil {
		canceledAt = *snap.CanceledAt
	}

	applied, err := p.store.MarkCanceled(ctx, snap.ID, canceledAt, snap.CancelAt, e.CreatedAt)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		p.opts.logger(ctx).InfoContext(ctx, "deleted subscription has no local record", logger.SubscriptionID(snap.ID))
		return OutcomeIgnored, nil
	case err != nil:
		return "", err
	case !applied:
		return OutcomeStale, nil
	}
	return OutcomeProcessed, nil
}

func (p *WebhookProcessor) upsert(ctx context.Context, rec *Record) (Outcome, error) {
	applied, err := p.store.Upsert(ctx, rec)
	if err != nil {
		return "", err
	}
	if !applied {
		p.opts.logger(ctx).InfoContext(ctx, "skipped event older than stored state", logger.SubscriptionID(rec.ExternalSubscriptionID))
		return OutcomeStale, nil
	}
	return OutcomeProcessed, nil
}

func (p *WebhookProcessor) planKey(snap SubscriptionSnapshot) string {
	if p.catalog != nil && snap.PriceID != "" {
		if key, ok := p.catalog.KeyForPrice(snap.PriceID); ok {
			return key
		}
	}
	return snap.Plan
}

// userFromReference prefers the checkout client reference and falls back to
// subscription metadata.
func userFromReference(clientReference string, metadata map[string]string) (uuid.UUID, error) {
	if id, ok := parseUserID(clientReference); ok {
		return id, nil
	}
	if id, ok := parseUserID(metadata[MetadataUserID]); ok {
		return id, nil
	}
	return uuid.Nil, ErrInvalidClientReference
}

func parseUserID(s string) (uuid.UUID, bool) {
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
