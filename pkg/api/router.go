package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingsync/pkg/authn"
	"github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/httpserver"
	"github.com/dmitrymomot/billingsync/pkg/logger"
	"github.com/dmitrymomot/billingsync/pkg/metrics"
	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
)

// Deps are the collaborators the HTTP layer routes to. Metrics and
// CouponLimiter are optional.
type Deps struct {
	Logger *slog.Logger
	Auth   *authn.Service

	Customers      *billing.CustomerResolver
	Coupons        *billing.CouponValidator
	Checkout       *billing.CheckoutInitiator
	PaymentMethods *billing.PaymentMethodManager
	Lifecycle      *billing.LifecycleManager
	Webhooks       *billing.WebhookProcessor

	Metrics       *metrics.Collector
	CouponLimiter ratelimit.Limiter
	Readiness     []httpserver.Check

	// WebhookMaxBodyBytes caps webhook payloads; zero means 1 MiB.
	WebhookMaxBodyBytes int64
	Now                 func() time.Time
}

// Router builds the service's chi router.
func Router(d Deps) http.Handler {
	if d.Auth == nil || d.Customers == nil || d.Coupons == nil || d.Checkout == nil ||
		d.PaymentMethods == nil || d.Lifecycle == nil || d.Webhooks == nil {
		panic("api: all billing components and the auth service are required")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	h := &handlers{
		customers: d.Customers,
		coupons:   d.Coupons,
		checkout:  d.Checkout,
		methods:   d.PaymentMethods,
		lifecycle: d.Lifecycle,
		webhooks:  d.Webhooks,
		metrics:   noopRecorder{},
		validator: newValidator(),
		maxBody:   d.WebhookMaxBodyBytes,
		now:       now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	if d.Metrics != nil {
		h.metrics = d.Metrics
		r.Use(d.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { writeError(w, r, ErrNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, HTTPError{Code: http.StatusMethodNotAllowed, Key: "method_not_allowed", Message: "Method not allowed"})
	})

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, d.Readiness...))

	r.Post("/webhooks/stripe", h.stripeWebhook)

	r.Route("/api/billing", func(r chi.Router) {
		r.Use(authn.Middleware(d.Auth))

		r.Post("/checkout", h.createCheckout)
		r.With(couponLimit(d.CouponLimiter, log)).Post("/coupons/validate", h.validateCoupon)

		r.Get("/subscription", h.currentSubscription)
		r.Post("/subscription/cancel", h.cancelSubscription)
		r.Post("/subscription/renew", h.renewSubscription)

		r.Post("/customer", h.resolveCustomer)
		r.Route("/customers/{customerId}/payment-methods", func(r chi.Router) {
			r.Get("/", h.listPaymentMethods)
			r.Post("/", h.addPaymentMethod)
			r.Put("/default", h.setDefaultPaymentMethod)
			r.Delete("/{paymentMethodId}", h.removePaymentMethod)
		})
	})

	return r
}

func couponLimit(limiter ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	byUser := func(r *http.Request) string {
		if sess, ok := authn.SessionFrom(r.Context()); ok {
			return "user:" + sess.UserID.String()
		}
		return ""
	}
	return ratelimit.Middleware(limiter, ratelimit.FirstOf(byUser, ratelimit.ByRemoteIP),
		ratelimit.WithOnLimitReached(func(w http.ResponseWriter, r *http.Request, _ *ratelimit.Result) {
			writeError(w, r, ErrTooManyRequests)
		}),
		ratelimit.WithOnError(func(r *http.Request, err error) {
			log.WarnContext(r.Context(), "coupon rate limiter failed", logger.Error(err))
		}),
	)
}
