package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingsync/pkg/authn"
	"github.com/dmitrymomot/billingsync/pkg/billing"
	"github.com/dmitrymomot/billingsync/pkg/logger"
)

type handlers struct {
	customers *billing.CustomerResolver
	coupons   *billing.CouponValidator
	checkout  *billing.CheckoutInitiator
	methods   *billing.PaymentMethodManager
	lifecycle *billing.LifecycleManager
	webhooks  *billing.WebhookProcessor
	metrics   Recorder
	validator *validator.Validate
	maxBody   int64
	now       func() time.Time
}

type checkoutRequest struct {
	CouponID string `json:"couponId" validate:"omitempty,max=255"`
	Plan     string `json:"plan" validate:"omitempty,max=64"`
}

type couponRequest struct {
	CouponCode string `json:"couponCode" validate:"required,max=255"`
	Plan       string `json:"plan" validate:"omitempty,max=64"`
}

type lifecycleRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

type defaultMethodRequest struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"required,max=255"`
}

type couponView struct {
	*billing.Coupon
	Label string `json:"label"`
}

type subscriptionView struct {
	Subscription *billing.Record `json:"subscription"`
	Entitled     bool            `json:"entitled"`
}

func sessionUser(r *http.Request) billing.User {
	sess := authn.MustSession(r.Context())
	return billing.User{ID: sess.UserID, Email: sess.Email}
}

func (h *handlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user := sessionUser(r)

	// An unknown plan must fail before a processor customer is created.
	if _, err := h.checkout.Plan(r.Context(), req.Plan); err != nil {
		h.metrics.RecordOperation("checkout", err)
		writeError(w, r, err)
		return
	}
	customerID, err := h.customers.Resolve(r.Context(), user)
	if err != nil {
		h.metrics.RecordOperation("checkout", err)
		writeError(w, r, err)
		return
	}
	url, err := h.checkout.Start(r.Context(), billing.CheckoutParams{
		UserID:     user.ID,
		CustomerID: customerID,
		Plan:       req.Plan,
		CouponID:   req.CouponID,
	})
	h.metrics.RecordOperation("checkout", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *handlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	coupon, err := h.coupons.Validate(r.Context(), req.CouponCode, req.Plan)
	h.metrics.RecordOperation("coupon_validate", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]couponView{"coupon": {Coupon: coupon, Label: coupon.Label()}})
}

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, "cancel", h.lifecycle.Cancel)
}

func (h *handlers) renewSubscription(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, "renew", h.lifecycle.Renew)
}

func (h *handlers) changeSubscription(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	apply func(ctx context.Context, actor, user uuid.UUID) (*billing.Record, error),
) {
	var req lifecycleRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, r, ValidationError{"userId": {"must be a valid id"}})
		return
	}

	rec, err := apply(r.Context(), sessionUser(r).ID, target)
	h.metrics.RecordOperation(op, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).InfoContext(r.Context(), "subscription "+op+" requested",
		logger.SubscriptionID(rec.ExternalSubscriptionID))
	writeSuccess(w)
}

func (h *handlers) currentSubscription(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	rec, err := h.lifecycle.Current(r.Context(), user.ID, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView{Subscription: rec, Entitled: rec.IsEntitled(h.now())})
}

func (h *handlers) resolveCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := h.customers.Resolve(r.Context(), sessionUser(r))
	h.metrics.RecordOperation("customer_resolve", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"customerId": id})
}

// ownedCustomer reads {customerId} from the path and checks it belongs to the
// session user. It writes the error response itself.
func (h *handlers) ownedCustomer(w http.ResponseWriter, r *http.Request) (string, bool) {
	customerID := chi.URLParam(r, "customerId")
	if customerID == "" {
		writeError(w, r, billing.ErrMissingCustomerID)
		return "", false
	}
	if err := h.customers.Owns(r.Context(), customerID, sessionUser(r)); err != nil {
		writeError(w, r, err)
		return "", false
	}
	return customerID, true
}

func (h *handlers) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ownedCustomer(w, r)
	if !ok {
		return
	}
	// A customer with methods but no default gets one before listing.
	if _, err := h.methods.EnsureDefault(r.Context(), customerID); err != nil {
		logger.FromContext(r.Context()).WarnContext(r.Context(), "could not ensure default payment method",
			logger.CustomerID(customerID), logger.Error(err))
	}
	methods, err := h.methods.List(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if methods == nil {
		methods = []billing.PaymentMethod{}
	}
	writeJSON(w, http.StatusOK, map[string][]billing.PaymentMethod{"paymentMethods": methods})
}

func (h *handlers) addPaymentMethod(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ownedCustomer(w, r)
	if !ok {
		return
	}
	url, err := h.methods.Add(r.Context(), customerID)
	h.metrics.RecordOperation("payment_method_add", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *handlers) setDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ownedCustomer(w, r)
	if !ok {
		return
	}
	var req defaultMethodRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := h.methods.SetDefault(r.Context(), customerID, req.PaymentMethodID)
	h.metrics.RecordOperation("payment_method_default", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (h *handlers) removePaymentMethod(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.ownedCustomer(w, r)
	if !ok {
		return
	}
	err := h.methods.Remove(r.Context(), customerID, chi.URLParam(r, "paymentMethodId"))
	h.metrics.RecordOperation("payment_method_remove", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}
