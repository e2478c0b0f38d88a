package billing

import (
	"context"
	"time"
)

// Processor abstracts the external payment processor. Every method maps to a
// single upstream call so components stay write-after-confirm.
type Processor interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	// FindPromotionCode returns an active promotion code with its coupon.
	// Returns ErrProcessorNotFound when no active code matches.
	FindPromotionCode(ctx context.Context, code string) (*PromotionCode, error)
	GetCoupon(ctx context.Context, couponID string) (*Coupon, error)
	GetPriceProduct(ctx context.Context, priceID string) (string, error)

	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)

	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error

	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*SubscriptionSnapshot, error)

	// ParseEvent authenticates payload against signature and decodes it.
	// Returns ErrWebhookVerificationFailed before touching the payload when the
	// signature does not match.
	ParseEvent(payload []byte, signature string) (Event, error)
}

// Customer is a processor-side customer identity.
type Customer struct {
	ID                   string
	Email                string
	UserID               string // metadata user_id, empty if absent
	DefaultPaymentMethod string
}

type CreateCustomerParams struct {
	Email  string
	UserID string
}

// PromotionCode is a user-facing code wrapping a coupon.
type PromotionCode struct {
	ID     string
	Code   string
	Active bool
	Coupon *Coupon
}

// CheckoutMode selects what a checkout session collects.
type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModeSetup        CheckoutMode = "setup"
	CheckoutModePayment      CheckoutMode = "payment"
)

type CheckoutSessionParams struct {
	Mode                CheckoutMode
	CustomerID          string
	PriceID             string // subscription mode only
	Quantity            int64
	CouponID            string
	AllowPromotionCodes bool
	ClientReferenceID   string
	Metadata            map[string]string
	SuccessURL          string
	CancelURL           string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentMethod is a card-like instrument attached to a customer.
type PaymentMethod struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Last4     string `json:"last4"`
	ExpMonth  int64  `json:"expMonth"`
	ExpYear   int64  `json:"expYear"`
	IsDefault bool   `json:"isDefault"`
}

// SubscriptionSnapshot is processor-reported subscription state.
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	Status             Status
	Plan               string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CancelAt           *time.Time
	CanceledAt         *time.Time
	Metadata           map[string]string
}
