package billing_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

const testWebhookSecret = "whsec_test_secret"

func newStripe(t *testing.T, apiURL string) *billing.StripeProcessor {
	t.Helper()
	p, err := billing.NewStripeProcessor(billing.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		APIURL:        apiURL,
		Timeout:       5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return p
}

func signed(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func TestNewStripeProcessorConfig(t *testing.T) {
	t.Parallel()

	_, err := billing.NewStripeProcessor(billing.StripeConfig{WebhookSecret: "whsec"}, nil)
	assert.ErrorIs(t, err, billing.ErrMissingAPIKey)

	_, err = billing.NewStripeProcessor(billing.StripeConfig{SecretKey: "sk_test"}, nil)
	assert.ErrorIs(t, err, billing.ErrMissingWebhookSecret)
}

func TestStripeParseEvent(t *testing.T) {
	t.Parallel()
	p := newStripe(t, "")

	t.Run("subscription updated", func(t *testing.T) {
		t.Parallel()
		payload, header := signed(t, `{
			"id": "evt_1",
			"object": "event",
			"type": "customer.subscription.updated",
			"created": 1740830400,
			"data": {"object": {
				"id": "sub_1",
				"object": "subscription",
				"customer": "cus_1",
				"status": "past_due",
				"cancel_at_period_end": false,
				"metadata": {"user_id": "7d0f7c8e-3c55-4a39-9f39-2f1e0f5d6b1a"},
				"items": {"object": "list", "data": [{
					"id": "si_1",
					"object": "subscription_item",
					"current_period_start": 1740000000,
					"current_period_end": 1742000000,
					"price": {"id": "price_pro", "object": "price", "lookup_key": "pro"}
				}]}
			}}
		}`)

		evt, err := p.ParseEvent(payload, header)
		require.NoError(t, err)

		changed, ok := evt.(billing.SubscriptionChangedEvent)
		require.True(t, ok, "got %T", evt)
		assert.Equal(t, "evt_1", changed.Meta().ID)
		assert.False(t, changed.Created)
		assert.Equal(t, time.Unix(1740830400, 0).UTC(), changed.CreatedAt)
		assert.Equal(t, "sub_1", changed.Subscription.ID)
		assert.Equal(t, "cus_1", changed.Subscription.CustomerID)
		assert.Equal(t, billing.StatusPastDue, changed.Subscription.Status)
		assert.Equal(t, "price_pro", changed.Subscription.PriceID)
		assert.Equal(t, "pro", changed.Subscription.Plan)
		assert.Equal(t, time.Unix(1742000000, 0).UTC(), changed.Subscription.CurrentPeriodEnd)
		assert.Nil(t, changed.Subscription.CancelAt)
	})

	t.Run("checkout completed", func(t *testing.T) {
		t.Parallel()
		payload, header := signed(t, `{
			"id": "evt_2",
			"object": "event",
			"type": "checkout.session.completed",
			"created": 1740830400,
			"data": {"object": {
				"id": "cs_1",
				"object": "checkout.session",
				"mode": "subscription",
				"customer": "cus_1",
				"subscription": "sub_1",
				"client_reference_id": "7d0f7c8e-3c55-4a39-9f39-2f1e0f5d6b1a"
			}}
		}`)

		evt, err := p.ParseEvent(payload, header)
		require.NoError(t, err)

		done, ok := evt.(billing.CheckoutCompletedEvent)
		require.True(t, ok, "got %T", evt)
		assert.Equal(t, billing.CheckoutModeSubscription, done.Mode)
		assert.Equal(t, "sub_1", done.SubscriptionID)
		assert.Equal(t, "cus_1", done.CustomerID)
		assert.Equal(t, "7d0f7c8e-3c55-4a39-9f39-2f1e0f5d6b1a", done.ClientReference)
	})

	t.Run("unhandled type", func(t *testing.T) {
		t.Parallel()
		payload, header := signed(t, `{"id":"evt_3","object":"event","type":"invoice.paid","created":1740830400,"data":{"object":{"id":"in_1","object":"invoice"}}}`)

		evt, err := p.ParseEvent(payload, header)
		require.NoError(t, err)
		_, ok := evt.(billing.IgnoredEvent)
		assert.True(t, ok, "got %T", evt)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		payload, header := signed(t, `{"id":"evt_4","object":"event","type":"invoice.paid","created":1740830400,"data":{"object":{}}}`)
		payload = append([]byte{}, payload...)
		payload[len(payload)-2] = ' '

		_, err := p.ParseEvent(payload, header)
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		_, err := p.ParseEvent([]byte(`{}`), "")
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   []byte(`{"id":"evt_5","object":"event","type":"invoice.paid"}`),
			Secret:    "whsec_other",
			Timestamp: time.Now(),
		})
		_, err := p.ParseEvent(sp.Payload, sp.Header)
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})
}

// fakeStripe answers a fixed set of API paths.
func fakeStripe(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such resource"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStripeProcessorAPI(t *testing.T) {
	t.Parallel()

	srv := fakeStripe(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /v1/customers/cus_1": func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"id":"cus_1","object":"customer","email":"jane@example.com",
				"metadata":{"user_id":"u1"},"invoice_settings":{"default_payment_method":"pm_9"}}`)
		},
		"GET /v1/customers": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("email") == "jane@example.com" {
				fmt.Fprint(w, `{"object":"list","url":"/v1/customers","has_more":false,"data":[{"id":"cus_1","object":"customer","email":"jane@example.com"}]}`)
				return
			}
			fmt.Fprint(w, `{"object":"list","url":"/v1/customers","has_more":false,"data":[]}`)
		},
		"GET /v1/subscriptions/sub_down": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"type":"api_error","message":"try later"}}`)
		},
		"POST /v1/subscriptions/sub_bad": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"subscription is canceled"}}`)
		},
	})
	p := newStripe(t, srv.URL)
	ctx := context.Background()

	c, err := p.GetCustomer(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, "pm_9", c.DefaultPaymentMethod)

	_, err = p.GetCustomer(ctx, "cus_missing")
	assert.ErrorIs(t, err, billing.ErrProcessorNotFound)

	found, err := p.FindCustomerByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", found.ID)

	_, err = p.FindCustomerByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, billing.ErrProcessorNotFound)

	_, err = p.GetSubscription(ctx, "sub_down")
	assert.ErrorIs(t, err, billing.ErrProcessorUnavailable)
	assert.True(t, billing.IsRetryable(err))

	_, err = p.SetCancelAtPeriodEnd(ctx, "sub_bad", true)
	assert.ErrorIs(t, err, billing.ErrProcessorRejected)
}
