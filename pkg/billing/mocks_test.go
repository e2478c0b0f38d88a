package billing_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

// MockProcessor is a mock implementation of billing.Processor.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *MockProcessor) CreateCustomer(ctx context.Context, params billing.CreateCustomerParams) (*billing.Customer, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *MockProcessor) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *MockProcessor) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return m.Called(ctx, customerID, paymentMethodID).Error(0)
}

func (m *MockProcessor) FindPromotionCode(ctx context.Context, code string) (*billing.PromotionCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PromotionCode), args.Error(1)
}

func (m *MockProcessor) GetCoupon(ctx context.Context, couponID string) (*billing.Coupon, error) {
	args := m.Called(ctx, couponID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Coupon), args.Error(1)
}

func (m *MockProcessor) GetPriceProduct(ctx context.Context, priceID string) (string, error) {
	args := m.Called(ctx, priceID)
	return args.String(0), args.Error(1)
}

func (m *MockProcessor) CreateCheckoutSession(ctx context.Context, params billing.CheckoutSessionParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *MockProcessor) ListPaymentMethods(ctx context.Context, customerID string) ([]billing.PaymentMethod, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.PaymentMethod), args.Error(1)
}

func (m *MockProcessor) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return m.Called(ctx, paymentMethodID).Error(0)
}

func (m *MockProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*billing.SubscriptionSnapshot, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionSnapshot), args.Error(1)
}

func (m *MockProcessor) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*billing.SubscriptionSnapshot, error) {
	args := m.Called(ctx, subscriptionID, cancel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.SubscriptionSnapshot), args.Error(1)
}

func (m *MockProcessor) ParseEvent(payload []byte, signature string) (billing.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(billing.Event), args.Error(1)
}

// MockLocker is a mock implementation of billing.Locker.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	args := m.Called(ctx, key, ttl)
	release, _ := args.Get(0).(func())
	return release, args.Bool(1), args.Error(2)
}

var (
	testNow     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	periodStart = testNow.Add(-20 * 24 * time.Hour)
	periodEnd   = testNow.Add(10 * 24 * time.Hour)
)

func fixedClock() time.Time { return testNow }

func testCatalog() *billing.Catalog {
	return billing.NewCatalog("pro",
		billing.Plan{Key: "pro", Name: "Pro", PriceID: "price_pro"},
		billing.Plan{Key: "team", Name: "Team", PriceID: "price_team"},
		billing.Plan{Key: "broken", Name: "Broken"},
	)
}

func testCheckoutConfig() billing.CheckoutConfig {
	return billing.CheckoutConfig{
		BaseURL:         "https://app.example.com",
		SuccessPath:     "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelPath:      "/billing",
		SetupReturnPath: "/billing/payment-methods",
	}
}

func activeSnapshot(subID string, userID string) *billing.SubscriptionSnapshot {
	return &billing.SubscriptionSnapshot{
		ID:                 subID,
		CustomerID:         "cus_1",
		Status:             billing.StatusActive,
		PriceID:            "price_pro",
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		Metadata:           map[string]string{billing.MetadataUserID: userID},
	}
}
