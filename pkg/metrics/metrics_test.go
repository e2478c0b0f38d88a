package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/metrics"
)

func scrape(t *testing.T, c *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorCounters(t *testing.T) {
	t.Parallel()
	c := metrics.New()

	c.RecordWebhook("customer.subscription.updated", "processed")
	c.RecordWebhook("customer.subscription.updated", "processed")
	c.RecordWebhook("", "ignored")
	c.RecordOperation("cancel", nil)
	c.RecordOperation("cancel", errors.New("boom"))

	out := scrape(t, c)
	assert.Contains(t, out, `billing_webhook_events_total{outcome="processed",type="customer.subscription.updated"} 2`)
	assert.Contains(t, out, `billing_webhook_events_total{outcome="ignored",type="unknown"} 1`)
	assert.Contains(t, out, `billing_operations_total{operation="cancel",result="ok"} 1`)
	assert.Contains(t, out, `billing_operations_total{operation="cancel",result="error"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	t.Parallel()
	c := metrics.New()

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/customers/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, id := range []string{"cus_1", "cus_2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/"+id, nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	out := scrape(t, c)
	assert.Contains(t, out, `billing_http_requests_total{method="GET",route="/customers/{id}",status_code="202"} 2`)
	assert.NotContains(t, out, "cus_1")
}
