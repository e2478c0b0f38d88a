package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/billing"
)

func newMethods(t *testing.T, proc billing.Processor) *billing.PaymentMethodManager {
	t.Helper()
	m, err := billing.NewPaymentMethodManager(proc, testCheckoutConfig())
	require.NoError(t, err)
	return m
}

func twoCards() []billing.PaymentMethod {
	return []billing.PaymentMethod{
		{ID: "pm_1", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
		{ID: "pm_2", Brand: "mastercard", Last4: "4444", ExpMonth: 1, ExpYear: 2031},
	}
}

func TestPaymentMethodManagerList(t *testing.T) {
	t.Parallel()

	t.Run("marks configured default", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("GetCustomer", mock.Anything, "cus_1").Return(&billing.Customer{ID: "cus_1", DefaultPaymentMethod: "pm_2"}, nil)
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return(twoCards(), nil)

		methods, err := newMethods(t, proc).List(context.Background(), "cus_1")
		require.NoError(t, err)
		require.Len(t, methods, 2)
		assert.False(t, methods[0].IsDefault)
		assert.True(t, methods[1].IsDefault)
	})

	t.Run("first card is implicit default", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("GetCustomer", mock.Anything, "cus_1").Return(&billing.Customer{ID: "cus_1"}, nil)
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return(twoCards(), nil)

		methods, err := newMethods(t, proc).List(context.Background(), "cus_1")
		require.NoError(t, err)
		assert.True(t, methods[0].IsDefault)
		assert.False(t, methods[1].IsDefault)
		proc.AssertNotCalled(t, "SetDefaultPaymentMethod", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing customer id", func(t *testing.T) {
		t.Parallel()
		_, err := newMethods(t, &MockProcessor{}).List(context.Background(), "")
		assert.ErrorIs(t, err, billing.ErrMissingCustomerID)
	})
}

func TestPaymentMethodManagerEnsureDefault(t *testing.T) {
	t.Parallel()

	t.Run("promotes first card", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("GetCustomer", mock.Anything, "cus_1").Return(&billing.Customer{ID: "cus_1"}, nil)
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return(twoCards(), nil)
		proc.On("SetDefaultPaymentMethod", mock.Anything, "cus_1", "pm_1").Return(nil).Once()

		id, err := newMethods(t, proc).EnsureDefault(context.Background(), "cus_1")
		require.NoError(t, err)
		assert.Equal(t, "pm_1", id)
		proc.AssertExpectations(t)
	})

	t.Run("keeps existing default", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("GetCustomer", mock.Anything, "cus_1").Return(&billing.Customer{ID: "cus_1", DefaultPaymentMethod: "pm_2"}, nil)
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return(twoCards(), nil)

		id, err := newMethods(t, proc).EnsureDefault(context.Background(), "cus_1")
		require.NoError(t, err)
		assert.Equal(t, "pm_2", id)
		proc.AssertNotCalled(t, "SetDefaultPaymentMethod", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no cards", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("GetCustomer", mock.Anything, "cus_1").Return(&billing.Customer{ID: "cus_1"}, nil)
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return([]billing.PaymentMethod{}, nil)

		id, err := newMethods(t, proc).EnsureDefault(context.Background(), "cus_1")
		require.NoError(t, err)
		assert.Empty(t, id)
	})
}

func TestPaymentMethodManagerAdd(t *testing.T) {
	t.Parallel()

	proc := &MockProcessor{}
	proc.On("CreateCheckoutSession", mock.Anything, billing.CheckoutSessionParams{
		Mode:       billing.CheckoutModeSetup,
		CustomerID: "cus_1",
		SuccessURL: "https://app.example.com/billing/payment-methods",
		CancelURL:  "https://app.example.com/billing/payment-methods",
	}).Return(&billing.CheckoutSession{ID: "cs_setup", URL: "https://checkout.example/setup"}, nil)

	url, err := newMethods(t, proc).Add(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/setup", url)
}

func TestPaymentMethodManagerOwnership(t *testing.T) {
	t.Parallel()

	t.Run("set default on own card", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return(twoCards(), nil)
		proc.On("SetDefaultPaymentMethod", mock.Anything, "cus_1", "pm_2").Return(nil)

		require.NoError(t, newMethods(t, proc).SetDefault(context.Background(), "cus_1", "pm_2"))
		proc.AssertExpectations(t)
	})

	t.Run("foreign card is not found", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return(twoCards(), nil)

		m := newMethods(t, proc)
		assert.ErrorIs(t, m.SetDefault(context.Background(), "cus_1", "pm_foreign"), billing.ErrPaymentMethodNotFound)
		assert.ErrorIs(t, m.Remove(context.Background(), "cus_1", "pm_foreign"), billing.ErrPaymentMethodNotFound)
		proc.AssertNotCalled(t, "DetachPaymentMethod", mock.Anything, mock.Anything)
	})

	t.Run("remove own card", func(t *testing.T) {
		t.Parallel()
		proc := &MockProcessor{}
		proc.On("ListPaymentMethods", mock.Anything, "cus_1").Return(twoCards(), nil)
		proc.On("DetachPaymentMethod", mock.Anything, "pm_1").Return(nil)

		require.NoError(t, newMethods(t, proc).Remove(context.Background(), "cus_1", "pm_1"))
		proc.AssertExpectations(t)
	})
}
