package billing

import (
	"context"

	"github.com/dmitrymomot/billingsync/pkg/logger"
)

// PaymentMethodManager manages card instruments of a processor customer.
// Callers are expected to have authorized the customer id.
type PaymentMethodManager struct {
	processor Processor
	urls      redirects
	opts      options
}

// NewPaymentMethodManager panics if processor is nil.
func NewPaymentMethodManager(processor Processor, cfg CheckoutConfig, opts ...Option) (*PaymentMethodManager, error) {
	if processor == nil {
		panic("billing: Processor is required")
	}
	urls, err := newRedirects(cfg)
	if err != nil {
		return nil, err
	}
	return &PaymentMethodManager{processor: processor, urls: urls, opts: newOptions(opts)}, nil
}

// List returns the customer's cards. IsDefault marks the configured default,
// or the first card when none is configured. List never writes; use
// EnsureDefault to persist the implicit default.
func (m *PaymentMethodManager) List(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}
	ctx, cancel := m.opts.bound(ctx)
	defer cancel()

	methods, defaultID, err := m.load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	markDefault(methods, defaultID)
	return methods, nil
}

// EnsureDefault makes sure the customer has a default payment method upstream,
// promoting the first card when none is configured. It is idempotent and
// returns the resulting default id, empty when the customer has no cards.
func (m *PaymentMethodManager) EnsureDefault(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrMissingCustomerID
	}
	ctx, cancel := m.opts.bound(ctx)
	defer cancel()

	methods, defaultID, err := m.load(ctx, customerID)
	if err != nil {
		return "", err
	}
	if defaultID != "" && containsMethod(methods, defaultID) {
		return defaultID, nil
	}
	if len(methods) == 0 {
		return "", nil
	}

	first := methods[0].ID
	if err := m.processor.SetDefaultPaymentMethod(ctx, customerID, first); err != nil {
		return "", err
	}
	m.opts.logger(ctx).InfoContext(ctx, "promoted first payment method to default",
		logger.Component("payment_methods"),
		logger.CustomerID(customerID),
		logger.PaymentMethodID(first),
	)
	return first, nil
}

// Add starts a setup-mode checkout session for a new card and returns its URL.
func (m *PaymentMethodManager) Add(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrMissingCustomerID
	}
	ctx, cancel := m.opts.bound(ctx)
	defer cancel()

	session, err := m.processor.CreateCheckoutSession(ctx, CheckoutSessionParams{
		Mode:       CheckoutModeSetup,
		CustomerID: customerID,
		SuccessURL: m.urls.setup,
		CancelURL:  m.urls.setup,
	})
	if err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", ErrNoCheckoutURL
	}
	return session.URL, nil
}

// SetDefault points the customer's invoice settings at methodID.
func (m *PaymentMethodManager) SetDefault(ctx context.Context, customerID, methodID string) error {
	ctx, cancel := m.opts.bound(ctx)
	defer cancel()

	if err := m.verifyOwnership(ctx, customerID, methodID); err != nil {
		return err
	}
	return m.processor.SetDefaultPaymentMethod(ctx, customerID, methodID)
}

// Remove detaches methodID from the customer. Removing the current default
// without choosing a replacement first is the caller's responsibility to
// prevent; this method does not enforce it.
func (m *PaymentMethodManager) Remove(ctx context.Context, customerID, methodID string) error {
	ctx, cancel := m.opts.bound(ctx)
	defer cancel()

	if err := m.verifyOwnership(ctx, customerID, methodID); err != nil {
		return err
	}
	if err := m.processor.DetachPaymentMethod(ctx, methodID); err != nil {
		return err
	}
	m.opts.logger(ctx).InfoContext(ctx, "payment method detached",
		logger.Component("payment_methods"),
		logger.CustomerID(customerID),
		logger.PaymentMethodID(methodID),
	)
	return nil
}

func (m *PaymentMethodManager) load(ctx context.Context, customerID string) ([]PaymentMethod, string, error) {
	customer, err := m.processor.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, "", err
	}
	methods, err := m.processor.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, "", err
	}
	return methods, customer.DefaultPaymentMethod, nil
}

func (m *PaymentMethodManager) verifyOwnership(ctx context.Context, customerID, methodID string) error {
	if customerID == "" {
		return ErrMissingCustomerID
	}
	if methodID == "" {
		return ErrPaymentMethodNotFound
	}
	methods, err := m.processor.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return err
	}
	if !containsMethod(methods, methodID) {
		return ErrPaymentMethodNotFound
	}
	return nil
}

func markDefault(methods []PaymentMethod, defaultID string) {
	if defaultID == "" || !containsMethod(methods, defaultID) {
		if len(methods) > 0 {
			methods[0].IsDefault = true
		}
		return
	}
	for i := range methods {
		methods[i].IsDefault = methods[i].ID == defaultID
	}
}

func containsMethod(methods []PaymentMethod, id string) bool {
	for _, pm := range methods {
		if pm.ID == id {
			return true
		}
	}
	return false
}
