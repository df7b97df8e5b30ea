package service

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/checkout"
	"storefront/internal/identity"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	cartFixture
	orders *OrderService
	store  *memoryOrders
	svc    *CheckoutService
}

func newCheckoutFixture(t *testing.T, viewers Viewers) checkoutFixture {
	t.Helper()
	cf := newCartFixture(t)
	store := newMemoryOrders()
	orders := NewOrderService(store, cf.state, cf.events, OrderServiceConfig{})
	return checkoutFixture{
		cartFixture: cf,
		orders:      orders,
		store:       store,
		svc:         NewCheckoutService(cf.svc, viewers, orders, cf.state, 0),
	}
}

func shippingForm() models.ShippingAddress {
	return models.ShippingAddress{FirstName: "Ada", LastName: "Lovelace", Address: "12 Analytical Way", City: "London", State: "LDN", ZipCode: "10001", Phone: "555-0100"}
}

func cardForm() models.PaymentMethod {
	return models.PaymentMethod{
		Kind: models.PaymentKindCard,
		Card: &models.CardDetails{Number: "4111 1111 1111 1111", Expiry: "12/27", CVV: "123", HolderName: "Ada Lovelace"},
	}
}

func TestCheckoutServiceMemberFlow(t *testing.T) {
	f := newCheckoutFixture(t, staticViewers{user: &identity.User{ID: "u1", Email: "ada@example.com"}})
	ctx := context.Background()

	_, err := f.cartFixture.svc.AddItem(ctx, "s1", 2, 1, nil)
	require.NoError(t, err)

	state, err := f.svc.Enter(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, checkout.StepShipping, state.Step)
	assert.Equal(t, "ada@example.com", state.Email)

	state, err = f.svc.SubmitShipping(ctx, "s1", shippingForm())
	require.NoError(t, err)
	assert.Equal(t, checkout.StepPayment, state.Step)

	state, err = f.svc.SubmitPayment(ctx, "s1", cardForm())
	require.NoError(t, err)
	assert.Equal(t, checkout.StepReview, state.Step)
	assert.Equal(t, "1111", state.Payment.CardLast4)

	order, err := f.svc.PlaceOrder(ctx, "s1", true, "client-key")
	require.NoError(t, err)
	assert.Equal(t, "client-key", order.IdempotencyKey)
	assert.Equal(t, "u1", order.UserID)

	view, err := f.cartFixture.svc.View(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, view.Empty())
	require.Len(t, f.events.clear, 1)
	assert.Equal(t, ClearReasonOrderPlaced, f.events.clear[0].Reason)
	assert.Empty(t, f.state.locks)

	state, err = f.svc.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, state.OrderID)
}

func TestCheckoutServiceGuestGate(t *testing.T) {
	f := newCheckoutFixture(t, staticViewers{})
	ctx := context.Background()

	_, err := f.svc.Enter(ctx, "s1", "guest@example.com")
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)

	_, err = f.cartFixture.svc.AddItem(ctx, "s1", 2, 1, nil)
	require.NoError(t, err)

	_, err = f.svc.Enter(ctx, "s1", "")
	assert.ErrorIs(t, err, checkout.ErrGuestEmailRequired)

	state, err := f.svc.Enter(ctx, "s1", "guest@example.com")
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", state.Email)
}

func TestCheckoutServiceIdentityFailure(t *testing.T) {
	boom := errors.New("identity unreachable")
	f := newCheckoutFixture(t, staticViewers{err: boom})
	ctx := context.Background()

	_, err := f.cartFixture.svc.AddItem(ctx, "s1", 2, 1, nil)
	require.NoError(t, err)

	_, err = f.svc.Enter(ctx, "s1", "guest@example.com")
	assert.ErrorIs(t, err, boom)
}

func TestCheckoutServiceWithoutEnter(t *testing.T) {
	f := newCheckoutFixture(t, staticViewers{})

	_, err := f.svc.State(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNoCheckout)
	_, err = f.svc.SubmitShipping(context.Background(), "nobody", shippingForm())
	assert.ErrorIs(t, err, ErrNoCheckout)
	_, err = f.svc.PlaceOrder(context.Background(), "nobody", true, "")
	assert.ErrorIs(t, err, ErrNoCheckout)
}

func TestCheckoutServiceLockHeldElsewhere(t *testing.T) {
	f := newCheckoutFixture(t, staticViewers{user: &identity.User{Email: "ada@example.com"}})
	ctx := context.Background()

	_, err := f.cartFixture.svc.AddItem(ctx, "s1", 2, 1, nil)
	require.NoError(t, err)
	_, err = f.svc.Enter(ctx, "s1", "")
	require.NoError(t, err)
	_, err = f.svc.SubmitShipping(ctx, "s1", shippingForm())
	require.NoError(t, err)
	_, err = f.svc.SubmitPayment(ctx, "s1", cardForm())
	require.NoError(t, err)

	_, err = f.state.AcquireLock(ctx, "checkout:s1", 0)
	require.NoError(t, err)

	_, err = f.svc.PlaceOrder(ctx, "s1", true, "")
	assert.ErrorIs(t, err, checkout.ErrSubmissionInFlight)
	assert.Empty(t, f.store.orders)
}

func TestCheckoutServiceEditAndValidation(t *testing.T) {
	f := newCheckoutFixture(t, staticViewers{user: &identity.User{Email: "ada@example.com"}})
	ctx := context.Background()

	_, err := f.cartFixture.svc.AddItem(ctx, "s1", 2, 1, nil)
	require.NoError(t, err)
	_, err = f.svc.Enter(ctx, "s1", "")
	require.NoError(t, err)

	bad := shippingForm()
	bad.ZipCode = ""
	_, err = f.svc.SubmitShipping(ctx, "s1", bad)
	var verr *checkout.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "ZIP code is required", verr.Fields["zip_code"])

	_, err = f.svc.SubmitShipping(ctx, "s1", shippingForm())
	require.NoError(t, err)

	state, err := f.svc.Edit(ctx, "s1", checkout.StepShipping)
	require.NoError(t, err)
	assert.Equal(t, checkout.StepShipping, state.Step)
	assert.Equal(t, "Ada", state.Shipping.FirstName)
}

func TestCheckoutServiceSharedKeyAcrossSessions(t *testing.T) {
	f := newCheckoutFixture(t, staticViewers{})
	ctx := context.Background()

	checkoutAs := func(sessionID, email string) (*models.Order, error) {
		_, err := f.cartFixture.svc.AddItem(ctx, sessionID, 2, 1, nil)
		require.NoError(t, err)
		_, err = f.svc.Enter(ctx, sessionID, email)
		require.NoError(t, err)
		_, err = f.svc.SubmitShipping(ctx, sessionID, shippingForm())
		require.NoError(t, err)
		_, err = f.svc.SubmitPayment(ctx, sessionID, cardForm())
		require.NoError(t, err)
		return f.svc.PlaceOrder(ctx, sessionID, true, "shared-key")
	}

	alice, err := checkoutAs("alice-session", "alice@example.com")
	require.NoError(t, err)
	bob, err := checkoutAs("bob-session", "bob@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, alice.OrderID, bob.OrderID)
	assert.Equal(t, "bob@example.com", bob.Email)
	assert.Len(t, f.store.orders, 2)

	_, _, err = f.orders.GetOrder(ctx, "bob-session", alice.OrderID)
	assert.Error(t, err)
	own, _, err := f.orders.GetOrder(ctx, "bob-session", bob.OrderID)
	require.NoError(t, err)
	assert.Equal(t, bob.OrderID, own.OrderID)
}
