package billing

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// MetadataUserID is the metadata key correlating processor objects with local users.
const MetadataUserID = "user_id"

type CheckoutConfig struct {
	BaseURL         string `env:"SITE_BASE_URL,required"`                                                     // BaseURL is the public site URL used for redirect targets.
	SuccessPath     string `env:"CHECKOUT_SUCCESS_PATH" envDefault:"/billing/success?session_id={CHECKOUT_SESSION_ID}"` // SuccessPath is appended to BaseURL after a successful checkout.
	CancelPath      string `env:"CHECKOUT_CANCEL_PATH" envDefault:"/billing"`                                  // CancelPath is appended to BaseURL when the user abandons checkout.
	SetupReturnPath string `env:"CHECKOUT_SETUP_RETURN_PATH" envDefault:"/billing/payment-methods"`           // SetupReturnPath is the redirect target of payment method setup.
}

// redirects resolves the configured paths against BaseURL.
type redirects struct {
	success, cancel, setup string
}

func newRedirects(cfg CheckoutConfig) (redirects, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return redirects{}, ErrMissingBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return redirects{}, errors.Join(ErrConfiguration, err)
	}
	join := func(path string) string {
		if path == "" {
			return base
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return base + path
	}
	return redirects{
		success: join(cfg.SuccessPath),
		cancel:  join(cfg.CancelPath),
		setup:   join(cfg.SetupReturnPath),
	}, nil
}

// CheckoutParams describes a new subscription purchase.
type CheckoutParams struct {
	UserID     uuid.UUID
	CustomerID string
	Plan       string
	CouponID   string // previously validated; empty enables promotion codes at checkout
}

// CheckoutInitiator creates hosted checkout sessions for new subscriptions.
type CheckoutInitiator struct {
	processor Processor
	store     Store
	catalog   *Catalog
	urls      redirects
	opts      options
}

// NewCheckoutInitiator panics on nil dependencies and fails on an unusable
// redirect configuration.
func NewCheckoutInitiator(processor Processor, store Store, catalog *Catalog, cfg CheckoutConfig, opts ...Option) (*CheckoutInitiator, error) {
	if processor == nil {
		panic("billing: Processor is required")
	}
	if store == nil {
		panic("billing: Store is required")
	}
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	urls, err := newRedirects(cfg)
	if err != nil {
		return nil, err
	}
	return &CheckoutInitiator{
		processor: processor,
		store:     store,
		catalog:   catalog,
		urls:      urls,
		opts:      newOptions(opts),
	}, nil
}

// Plan resolves key (the default plan when empty) to a purchasable plan.
// Callers use it to reject a bad plan before any processor side effect.
// Configuration errors are logged for the operator.
func (c *CheckoutInitiator) Plan(ctx context.Context, key string) (Plan, error) {
	plan, err := c.catalog.Resolve(key)
	if err != nil && errors.Is(err, ErrConfiguration) {
		c.opts.logger(ctx).ErrorContext(ctx, "checkout plan is misconfigured",
			logger.Component("checkout"), logger.Plan(key), logger.Error(err))
	}
	return plan, err
}

// Start creates a subscription-mode checkout session and returns its redirect URL.
// The user id travels as the session's client reference and as subscription
// metadata so webhooks can correlate before any local record exists.
func (c *CheckoutInitiator) Start(ctx context.Context, params CheckoutParams) (string, error) {
	if params.UserID == uuid.Nil {
		return "", ErrInvalidUser
	}
	if params.CustomerID == "" {
		return "", ErrMissingCustomerID
	}
	log := c.opts.logger(ctx).With(logger.Component("checkout"), logger.UserID(params.UserID))

	plan, err := c.Plan(ctx, params.Plan)
	if err != nil {
		return "", err
	}

	existing, err := c.store.GetByUserID(ctx, params.UserID)
	switch {
	case err == nil && !existing.Status.IsTerminal():
		return "", ErrSubscriptionAlreadyExists
	case err != nil && !errors.Is(err, ErrSubscriptionNotFound):
		return "", err
	}

	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	session, err := c.processor.CreateCheckoutSession(ctx, CheckoutSessionParams{
		Mode:                CheckoutModeSubscription,
		CustomerID:          params.CustomerID,
		PriceID:             plan.PriceID,
		Quantity:            1,
		CouponID:            params.CouponID,
		AllowPromotionCodes: params.CouponID == "",
		ClientReferenceID:   params.UserID.String(),
		Metadata:            map[string]string{MetadataUserID: params.UserID.String()},
		SuccessURL:          c.urls.success,
		CancelURL:           c.urls.cancel,
	})
	if err != nil {
		if params.CouponID != "" && errors.Is(err, ErrProcessorRejected) {
			log.WarnContext(ctx, "processor rejected coupon", logger.CouponID(params.CouponID), logger.Error(err))
			return "", errors.Join(ErrCouponApplication, err)
		}
		return "", err
	}
	if session.URL == "" {
		return "", ErrNoCheckoutURL
	}

	log.InfoContext(ctx, "checkout session created", logger.Plan(plan.Key), logger.CustomerID(params.CustomerID))
	return session.URL, nil
}
