package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
		key  string
	}{
		{"http error passes through", ErrTooLarge, http.StatusRequestEntityTooLarge, "request_too_large"},
		{"joined http error", errors.Join(ErrBadRequest, errors.New("eof")), http.StatusBadRequest, "bad_request"},
		{"validation", ValidationError{"plan": {"too long"}}, http.StatusBadRequest, "validation_error"},
		{"not applicable wins over invalid", errors.Join(billing.ErrInvalidCoupon, billing.ErrCouponNotApplicable), http.StatusBadRequest, "coupon_not_applicable"},
		{"invalid coupon", billing.ErrInvalidCoupon, http.StatusBadRequest, "invalid_coupon"},
		{"coupon application", billing.ErrCouponApplication, http.StatusBadRequest, "coupon_rejected"},
		{"bad signature", billing.ErrWebhookVerificationFailed, http.StatusBadRequest, "invalid_signature"},
		{"forbidden", billing.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"no subscription", fmt.Errorf("load: %w", billing.ErrSubscriptionNotFound), http.StatusNotFound, "subscription_not_found"},
		{"exists", billing.ErrSubscriptionAlreadyExists, http.StatusConflict, "subscription_exists"},
		{"processor down", errors.Join(billing.ErrProcessorUnavailable, errors.New("dial tcp")), http.StatusInternalServerError, "temporarily_unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusInternalServerError, "temporarily_unavailable"},
		{"store failure", errors.Join(billing.ErrStoreFailure, errors.New("pg down")), http.StatusInternalServerError, "internal_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := statusFor(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.key, got.Key)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestUnknownErrorMessageIsGeneric(t *testing.T) {
	t.Parallel()
	got := statusFor(errors.New("pq: relation subscriptions does not exist"))
	assert.NotContains(t, got.Message, "relation")
}

func TestWebhookError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code int
		key  string
	}{
		{billing.ErrWebhookVerificationFailed, http.StatusBadRequest, "invalid_signature"},
		{errors.Join(billing.ErrMalformedEvent, errors.New("bad json")), http.StatusBadRequest, "malformed_event"},
		{billing.ErrInvalidClientReference, http.StatusBadRequest, "invalid_reference"},
		{billing.ErrEventInFlight, http.StatusInternalServerError, "event_in_flight"},
		{billing.ErrSubscriptionNotFound, http.StatusInternalServerError, "webhook_failed"},
		{billing.ErrStoreFailure, http.StatusInternalServerError, "webhook_failed"},
		{billing.ErrProcessorUnavailable, http.StatusInternalServerError, "webhook_failed"},
	}
	for _, tt := range tests {
		got := statusFor(webhookError(tt.err))
		assert.Equal(t, tt.code, got.Code, tt.err.Error())
		assert.Equal(t, tt.key, got.Key, tt.err.Error())
	}
}
