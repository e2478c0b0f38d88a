package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

// HTTPError is a client-facing error: a status code, a stable key for
// clients and a message safe to show to end users.
type HTTPError struct {
	Code    int
	Key     string
	Message string
}

func (e HTTPError) Error() string { return e.Key }

var (
	ErrBadRequest           = HTTPError{Code: http.StatusBadRequest, Key: "bad_request", Message: "The request could not be understood"}
	ErrUnauthorized         = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized", Message: "Authentication required"}
	ErrForbidden            = HTTPError{Code: http.StatusForbidden, Key: "forbidden", Message: "You do not have access to this resource"}
	ErrNotFound             = HTTPError{Code: http.StatusNotFound, Key: "not_found", Message: "Resource not found"}
	ErrConflict             = HTTPError{Code: http.StatusConflict, Key: "conflict", Message: "The request conflicts with the current state"}
	ErrUnsupportedMediaType = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "unsupported_media_type", Message: "Request body must be JSON"}
	ErrTooLarge             = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "request_too_large", Message: "Request body too large"}
	ErrTooManyRequests      = HTTPError{Code: http.StatusTooManyRequests, Key: "rate_limited", Message: "Too many requests, try again later"}
	ErrInternalServerError  = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error", Message: "Something went wrong, please try again"}
)

// statusTable is checked in order; the first sentinel matched wins.
var statusTable = []struct {
	target error
	http   HTTPError
}{
	{billing.ErrCouponNotApplicable, HTTPError{http.StatusBadRequest, "coupon_not_applicable", "This coupon does not apply to the selected plan"}},
	{billing.ErrInvalidCoupon, HTTPError{http.StatusBadRequest, "invalid_coupon", "Invalid or expired coupon code"}},
	{billing.ErrCouponApplication, HTTPError{http.StatusBadRequest, "coupon_rejected", "The coupon could not be applied to this purchase"}},
	{billing.ErrPlanNotFound, HTTPError{http.StatusBadRequest, "plan_not_found", "Unknown billing plan"}},
	{billing.ErrInvalidUser, HTTPError{http.StatusBadRequest, "invalid_user", "Your account is missing billing details"}},
	{billing.ErrMissingCustomerID, HTTPError{http.StatusBadRequest, "missing_customer", "Customer id is required"}},
	{billing.ErrWebhookVerificationFailed, HTTPError{http.StatusBadRequest, "invalid_signature", "Webhook signature verification failed"}},
	{billing.ErrMalformedEvent, HTTPError{http.StatusBadRequest, "malformed_event", "Webhook payload is malformed"}},
	{billing.ErrInvalidClientReference, HTTPError{http.StatusBadRequest, "invalid_reference", "Checkout session has no valid user reference"}},
	{billing.ErrForbidden, ErrForbidden},
	{billing.ErrSubscriptionNotFound, HTTPError{http.StatusNotFound, "subscription_not_found", "No subscription found"}},
	{billing.ErrPaymentMethodNotFound, HTTPError{http.StatusNotFound, "payment_method_not_found", "Payment method not found"}},
	{billing.ErrSubscriptionAlreadyExists, HTTPError{http.StatusConflict, "subscription_exists", "You already have an active subscription"}},
	{billing.ErrInvalidSubscriptionState, HTTPError{http.StatusConflict, "invalid_subscription_state", "The subscription cannot be changed in its current state"}},
}

var errTemporarilyUnavailable = HTTPError{http.StatusInternalServerError, "temporarily_unavailable", "Billing is temporarily unavailable, please try again"}

// statusFor maps err to its client-facing form. Anything unknown is a 500
// with a generic message; the original error is only logged.
func statusFor(err error) HTTPError {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var verr ValidationError
	if errors.As(err, &verr) {
		return HTTPError{http.StatusBadRequest, "validation_error", "Some fields are invalid"}
	}
	for _, row := range statusTable {
		if errors.Is(err, row.target) {
			return row.http
		}
	}
	if billing.IsRetryable(err) {
		return errTemporarilyUnavailable
	}
	return ErrInternalServerError
}
