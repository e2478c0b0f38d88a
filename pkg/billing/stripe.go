package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeConfig struct {
	SecretKey        string        `env:"STRIPE_SECRET_KEY,required"`                 // SecretKey is the Stripe API secret key.
	WebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET,required"`             // WebhookSecret is the signing secret of the webhook endpoint.
	APIURL           string        `env:"STRIPE_API_URL"`                             // APIURL overrides the API base URL, e.g. for stripe-mock.
	Timeout          time.Duration `env:"STRIPE_TIMEOUT" envDefault:"30s"`            // Timeout bounds every HTTP request to Stripe.
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`   // WebhookTolerance is the maximum accepted signature age.
}

// StripeProcessor implements Processor on top of an explicitly constructed
// Stripe client. It never touches the stripe package's global key.
type StripeProcessor struct {
	api       *client.API
	secret    string
	tolerance time.Duration
}

// NewStripeProcessor validates cfg and builds a client. Network retries are
// disabled: retry decisions belong to the caller and to webhook redelivery.
func NewStripeProcessor(cfg StripeConfig, log *slog.Logger) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOperationTimeout
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}

	bcfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if log != nil {
		bcfg.LeveledLogger = &stripeLogger{log: log.With(slog.String("component", "stripe"))}
	}
	if cfg.APIURL != "" {
		bcfg.URL = stripe.String(cfg.APIURL)
	}

	return &StripeProcessor{
		api:       client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(bcfg)),
		secret:    cfg.WebhookSecret,
		tolerance: cfg.WebhookTolerance,
	}, nil
}

func (s *StripeProcessor) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := s.api.Customers.List(params)
	for iter.Next() {
		if c := iter.Customer(); c != nil && !c.Deleted {
			return toCustomer(c), nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, classifyStripeError(err)
	}
	return nil, ErrProcessorNotFound
}

func (s *StripeProcessor) CreateCustomer(ctx context.Context, p CreateCustomerParams) (*Customer, error) {
	params := &stripe.CustomerParams{Email: stripe.String(p.Email)}
	params.Context = ctx
	if p.UserID != "" {
		params.AddMetadata(MetadataUserID, p.UserID)
	}

	c, err := s.api.Customers.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return toCustomer(c), nil
}

func (s *StripeProcessor) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := s.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	if c.Deleted {
		return nil, ErrProcessorNotFound
	}
	return toCustomer(c), nil
}

func (s *StripeProcessor) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := s.api.Customers.Update(customerID, params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

func (s *StripeProcessor) FindPromotionCode(ctx context.Context, code string) (*PromotionCode, error) {
	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.coupon.applies_to")

	iter := s.api.PromotionCodes.List(params)
	for iter.Next() {
		pc := iter.PromotionCode()
		if pc == nil {
			continue
		}
		out := &PromotionCode{ID: pc.ID, Code: pc.Code, Active: pc.Active}
		if pc.Coupon != nil {
			out.Coupon = toCoupon(pc.Coupon)
		}
		return out, nil
	}
	if err := iter.Err(); err != nil {
		return nil, classifyStripeError(err)
	}
	return nil, ErrProcessorNotFound
}

func (s *StripeProcessor) GetCoupon(ctx context.Context, couponID string) (*Coupon, error) {
	params := &stripe.CouponParams{}
	params.Context = ctx
	params.AddExpand("applies_to")

	c, err := s.api.Coupons.Get(couponID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return toCoupon(c), nil
}

func (s *StripeProcessor) GetPriceProduct(ctx context.Context, priceID string) (string, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx

	p, err := s.api.Prices.Get(priceID, params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	if p.Product == nil || p.Product.ID == "" {
		return "", errors.Join(ErrConfiguration, fmt.Errorf("price %s has no product", priceID))
	}
	return p.Product.ID, nil
}

func (s *StripeProcessor) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(p.CustomerID),
		Mode:       stripe.String(string(p.Mode)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	if p.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(p.ClientReferenceID)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	switch p.Mode {
	case CheckoutModeSubscription:
		qty := p.Quantity
		if qty <= 0 {
			qty = 1
		}
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(qty),
		}}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: p.Metadata}
		if p.CouponID != "" {
			params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(p.CouponID)}}
		} else if p.AllowPromotionCodes {
			params.AllowPromotionCodes = stripe.Bool(true)
		}
	case CheckoutModeSetup:
		params.PaymentMethodTypes = stripe.StringSlice([]string{string(stripe.PaymentMethodTypeCard)})
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeProcessor) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	var out []PaymentMethod
	iter := s.api.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		m := PaymentMethod{ID: pm.ID}
		if pm.Card != nil {
			m.Brand = string(pm.Card.Brand)
			m.Last4 = pm.Card.Last4
			m.ExpMonth = pm.Card.ExpMonth
			m.ExpYear = pm.Card.ExpYear
		}
		out = append(out, m)
	}
	if err := iter.Err(); err != nil {
		return nil, classifyStripeError(err)
	}
	return out, nil
}

func (s *StripeProcessor) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx

	if _, err := s.api.PaymentMethods.Detach(paymentMethodID, params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

func (s *StripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	snap := toSnapshot(sub)
	return &snap, nil
}

func (s *StripeProcessor) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	snap := toSnapshot(sub)
	return &snap, nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event into
// one of the Event variants. Unknown event types become IgnoredEvent.
func (s *StripeProcessor) ParseEvent(payload []byte, signature string) (Event, error) {
	if signature == "" {
		return nil, ErrWebhookVerificationFailed
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, errors.Join(ErrWebhookVerificationFailed, err)
		}
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	meta := EventMeta{
		ID:        evt.ID,
		Type:      string(evt.Type),
		CreatedAt: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data == nil {
		return nil, errors.Join(ErrMalformedEvent, errors.New("event has no data"))
	}

	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		e := CheckoutCompletedEvent{
			EventMeta:       meta,
			Mode:            CheckoutMode(sess.Mode),
			SessionID:       sess.ID,
			ClientReference: sess.ClientReferenceID,
		}
		if sess.Subscription != nil {
			e.SubscriptionID = sess.Subscription.ID
		}
		if sess.Customer != nil {
			e.CustomerID = sess.Customer.ID
		}
		return e, nil

	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		return SubscriptionChangedEvent{
			EventMeta:    meta,
			Created:      evt.Type == stripe.EventTypeCustomerSubscriptionCreated,
			Subscription: toSnapshot(&sub),
		}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		return SubscriptionDeletedEvent{EventMeta: meta, Subscription: toSnapshot(&sub)}, nil
	}

	return IgnoredEvent{EventMeta: meta}, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// classifyStripeError maps Stripe failures onto the processor error classes.
func classifyStripeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrProcessorUnavailable, err)
	}

	var serr *stripe.Error
	if !errors.As(err, &serr) {
		// Transport-level failure: no response from Stripe.
		return errors.Join(ErrProcessorUnavailable, err)
	}
	switch {
	case serr.Code == stripe.ErrorCodeResourceMissing, serr.HTTPStatusCode == http.StatusNotFound:
		return errors.Join(ErrProcessorNotFound, err)
	case serr.HTTPStatusCode == http.StatusTooManyRequests,
		serr.HTTPStatusCode >= http.StatusInternalServerError,
		serr.Type == stripe.ErrorTypeAPI:
		return errors.Join(ErrProcessorUnavailable, err)
	default:
		return errors.Join(ErrProcessorRejected, err)
	}
}

func toCustomer(c *stripe.Customer) *Customer {
	out := &Customer{ID: c.ID, Email: c.Email}
	if c.Metadata != nil {
		out.UserID = c.Metadata[MetadataUserID]
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethod = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return out
}

func toCoupon(c *stripe.Coupon) *Coupon {
	out := &Coupon{
		ID:         c.ID,
		Name:       c.Name,
		PercentOff: c.PercentOff,
		AmountOff:  c.AmountOff,
		Currency:   string(c.Currency),
		Duration:   string(c.Duration),
		Valid:      c.Valid,
	}
	if c.AppliesTo != nil {
		out.AppliesToProducts = c.AppliesTo.Products
	}
	return out
}

func toSnapshot(sub *stripe.Subscription) SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            Status(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          unixPtr(sub.CancelAt),
		CanceledAt:        unixPtr(sub.CanceledAt),
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		snap.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		snap.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		if item.Price != nil {
			snap.PriceID = item.Price.ID
			snap.Plan = item.Price.LookupKey
			if snap.Plan == "" {
				snap.Plan = item.Price.ID
			}
		}
	}
	return snap
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// stripeLogger routes stripe-go's leveled logging into slog.
type stripeLogger struct {
	log *slog.Logger
}

func (l *stripeLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Infof(format string, v ...any)  { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Warnf(format string, v ...any)  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
