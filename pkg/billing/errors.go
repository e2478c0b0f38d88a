package billing

import (
	"context"
	"errors"
)

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
	ErrInvalidSubscriptionState  = errors.New("invalid subscription state")
	ErrForbidden                 = errors.New("subscription belongs to another user")

	ErrInvalidUser           = errors.New("user id and email are required")
	ErrMissingCustomerID     = errors.New("customer ID is required")
	ErrPaymentMethodNotFound = errors.New("payment method not found for customer")

	ErrInvalidCoupon       = errors.New("invalid coupon")
	ErrCouponNotApplicable = errors.New("coupon does not apply to the selected plan")
	ErrCouponApplication   = errors.New("coupon was rejected when creating the checkout session")

	ErrPlanNotFound  = errors.New("billing plan not found")
	ErrConfiguration = errors.New("billing configuration error")
	ErrNoCheckoutURL = errors.New("no checkout URL returned from processor")

	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrInvalidClientReference    = errors.New("checkout session has no valid user reference")
	ErrEventInFlight             = errors.New("webhook event is being processed by another worker")
	ErrMalformedEvent            = errors.New("webhook event payload is malformed")

	ErrStoreFailure = errors.New("subscription store failure")

	// Processor error classes.
	ErrProcessorNotFound    = errors.New("processor resource not found")
	ErrProcessorRejected    = errors.New("processor rejected the request")
	ErrProcessorUnavailable = errors.New("processor unavailable")

	// Provider configuration errors.
	ErrMissingAPIKey        = errors.New("stripe secret key is required")
	ErrMissingWebhookSecret = errors.New("stripe webhook secret is required")
	ErrMissingBaseURL       = errors.New("site base URL is required")
	ErrInvalidPlansFile     = errors.New("invalid billing plans file")
)

// IsRetryable reports whether err is a transient processor failure the caller
// may retry. The service itself never retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrProcessorUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
