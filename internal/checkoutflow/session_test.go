package checkoutflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aura-storefront/internal/cart"
	"github.com/example/aura-storefront/internal/checkout"
	"github.com/example/aura-storefront/internal/guestcart"
	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/payment"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/storage"
	"github.com/example/aura-storefront/internal/utils"
)

type fakeOrders struct {
	mu          sync.Mutex
	guestCalls  []checkout.GuestCheckoutPayload
	authCalls   []checkout.AuthenticatedCheckoutPayload
	authTokens  []string
	result      *services.OrderResult
	err         error
	block       chan struct{}
	callStarted chan struct{}
}

func (f *fakeOrders) wait() {
	if f.callStarted != nil {
		f.callStarted <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeOrders) Checkout(_ context.Context, token string, payload checkout.AuthenticatedCheckoutPayload) (*services.OrderResult, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls = append(f.authCalls, payload)
	f.authTokens = append(f.authTokens, token)
	return f.result, f.err
}

func (f *fakeOrders) GuestCheckout(_ context.Context, payload checkout.GuestCheckoutPayload) (*services.OrderResult, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guestCalls = append(f.guestCalls, payload)
	return f.result, f.err
}

type fakeDiscounts struct {
	result *services.DiscountResult
	err    error
}

func (f *fakeDiscounts) ValidateDiscount(context.Context, string, string, float64) (*services.DiscountResult, error) {
	return f.result, f.err
}

type recordingNotifier struct {
	got chan services.OrderNotification
}

func (n *recordingNotifier) NotifyOrderPlaced(_ context.Context, order services.OrderNotification) error {
	n.got <- order
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	session   *Session
	store     *checkout.Store
	guest     *guestcart.Store
	backend   cart.Backend
	orders    *fakeOrders
	discounts *fakeDiscounts
	clock     *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	guest := guestcart.Open(ctx, storage.NewMemoryStorage(0), "visitor")
	orders := &fakeOrders{result: &services.OrderResult{Order: services.Order{ID: "ord-1", OrderNumber: "AUR-1001", Total: 3150}}}
	discounts := &fakeDiscounts{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := checkout.NewStore()
	keys := 0

	session := NewSession(store, orders, discounts, Options{
		SettleDelay: 500 * time.Millisecond,
		Rates:       checkout.Rates{TaxRate: 0.13, StandardShippingFee: 150},
		Now:         clock.Now,
		NewKey: func() string {
			keys++
			return "key-" + string(rune('0'+keys))
		},
	})

	return &fixture{
		session:   session,
		store:     store,
		guest:     guest,
		backend:   cart.NewGuestBackend(guest),
		orders:    orders,
		discounts: discounts,
		clock:     clock,
	}
}

func (f *fixture) readyGuest(t *testing.T) {
	t.Helper()
	f.session.Mount(nil)
	f.guest.AddItem(context.Background(), models.ProductSnapshot{ID: "p1", Name: "Linen Sofa", Price: 1000}, 3, models.Variant{"color": "sand"})

	email, first, last, phone := "ana@example.com", "Ana", "Reyes", "9800000000"
	f.store.SetGuestInfo(checkout.GuestInfoPatch{Email: &email, FirstName: &first, LastName: &last, Phone: &phone})
	f.store.SetShippingAddress(models.Address{
		AddressLine1: "12 Lakeside",
		City:         "Pokhara",
		PostalCode:   "33700",
		Country:      "Nepal",
	})
	require.NoError(t, f.store.UpdateShippingField(checkout.FieldFullName, "Ana Reyes"))
	require.NoError(t, f.store.UpdateShippingField(checkout.FieldPhone, phone))
	f.store.NextStep()
}

func TestMount(t *testing.T) {
	f := newFixture(t)
	f.store.NextStep()
	f.store.NextStep()
	f.store.SetAppliedDiscount(checkout.AppliedDiscount{Code: "SPRING10", Percentage: 10})

	f.session.Mount(&checkout.GuestInfo{Email: "ana@example.com", FirstName: "Ana"})

	st := f.store.State()
	assert.Equal(t, checkout.StepShipping, st.CurrentStep)
	assert.Equal(t, checkout.PaymentCOD, st.PaymentMethod)
	assert.Nil(t, st.AppliedDiscount)
	assert.Equal(t, "ana@example.com", st.GuestInfo.Email)
	assert.Equal(t, "Ana", st.GuestInfo.FirstName)
	assert.Equal(t, "key-1", f.session.View(nil).IdempotencyKey)
}

func TestMount_KeepsChosenPaymentMethodAndTypedContact(t *testing.T) {
	f := newFixture(t)
	f.store.SetPaymentMethod(checkout.PaymentEsewa)
	email := "typed@example.com"
	f.store.SetGuestInfo(checkout.GuestInfoPatch{Email: &email})

	f.session.Mount(&checkout.GuestInfo{Email: "profile@example.com"})

	assert.Equal(t, checkout.PaymentEsewa, f.store.State().PaymentMethod)
	assert.Equal(t, "typed@example.com", f.store.State().GuestInfo.Email)
}

func TestShouldRedirectToCart_WaitsForSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	redirect, err := f.session.ShouldRedirectToCart(ctx, f.backend)
	require.NoError(t, err)
	assert.False(t, redirect, "not mounted")

	f.session.Mount(nil)
	redirect, _ = f.session.ShouldRedirectToCart(ctx, f.backend)
	assert.False(t, redirect, "still settling")
	assert.False(t, f.session.Initialized())

	f.clock.Advance(500 * time.Millisecond)
	assert.True(t, f.session.Initialized())
	redirect, _ = f.session.ShouldRedirectToCart(ctx, f.backend)
	assert.True(t, redirect, "empty cart after settle")

	f.guest.AddItem(ctx, models.ProductSnapshot{ID: "p1", Price: 10}, 1, nil)
	redirect, _ = f.session.ShouldRedirectToCart(ctx, f.backend)
	assert.False(t, redirect)
}

func TestPlaceOrder_NotReady(t *testing.T) {
	f := newFixture(t)
	f.session.Mount(nil)

	_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)

	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, f.session.Submitting())
	assert.Empty(t, f.orders.guestCalls)
}

func TestPlaceOrder_GuestNeedsInlineAddress(t *testing.T) {
	f := newFixture(t)
	f.session.Mount(nil)
	f.guest.AddItem(context.Background(), models.ProductSnapshot{ID: "p1", Price: 1000}, 1, nil)
	email, first, last, phone := "ana@example.com", "Ana", "Reyes", "9800000000"
	f.store.SetGuestInfo(checkout.GuestInfoPatch{Email: &email, FirstName: &first, LastName: &last, Phone: &phone})
	f.store.SetShippingAddressID("addr-of-someone-else")

	assert.False(t, f.session.CanPlaceOrder(nil))
	assert.False(t, f.session.View(nil).ShippingValid)
	assert.True(t, f.session.CanPlaceOrder(&Customer{Token: "tok"}))

	_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)

	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, f.orders.guestCalls)
	assert.False(t, f.session.Submitting())
}

func TestPlaceOrder_GuestCashOnDelivery(t *testing.T) {
	f := newFixture(t)
	f.readyGuest(t)
	ctx := context.Background()

	outcome, err := f.session.PlaceOrder(ctx, f.backend, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeConfirmation, outcome.Kind)
	assert.Equal(t, "/order-confirmation?email=ana%40example.com&emailSent=true&orderId=ord-1", outcome.ConfirmationURL)

	require.Len(t, f.orders.guestCalls, 1)
	payload := f.orders.guestCalls[0]
	assert.Equal(t, "key-1", payload.IdempotencyKey)
	assert.Equal(t, checkout.PaymentCOD, payload.PaymentMethod)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, checkout.OrderItemInput{ProductID: "p1", Quantity: 3, Variant: models.Variant{"color": "sand"}}, payload.Items[0])

	assert.Empty(t, f.guest.Items(), "guest cart cleared")
	assert.Equal(t, checkout.InitialState(), f.store.State(), "wizard reset")
	assert.True(t, f.session.Submitting())

	redirect, err := f.session.ShouldRedirectToCart(ctx, f.backend)
	require.NoError(t, err)
	assert.False(t, redirect, "no empty-cart bounce after success")
}

func TestPlaceOrder_PaymentRedirectLeavesCart(t *testing.T) {
	f := newFixture(t)
	f.readyGuest(t)
	f.store.SetPaymentMethod(checkout.PaymentEsewa)
	f.orders.result = &services.OrderResult{
		Order:   services.Order{ID: "ord-2"},
		Payment: &payment.RedirectDescriptor{TotalAmount: "3540", TransactionUUID: "ord-2", ProductCode: "EPAYTEST", SignedFieldNames: "total_amount", Signature: "sig"},
	}

	outcome, err := f.session.PlaceOrder(context.Background(), f.backend, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRedirect, outcome.Kind)
	require.NotNil(t, outcome.Payment)
	assert.Equal(t, payment.Value("ord-2"), outcome.Payment.TransactionUUID)
	assert.Len(t, f.guest.Items(), 1)
	assert.Equal(t, checkout.PaymentEsewa, f.store.State().PaymentMethod)
}

func TestPlaceOrder_NetworkFailureLeavesStateForRetry(t *testing.T) {
	f := newFixture(t)
	f.readyGuest(t)
	f.store.SetAppliedDiscount(checkout.AppliedDiscount{Code: "SPRING10", Percentage: 10})
	f.orders.err = &services.NetworkError{Op: "POST /orders/guest-checkout", Err: errors.New("connection refused")}
	before := f.store.State()
	itemsBefore := f.guest.Items()

	_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)

	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, utils.MsgNetwork, userErr.Message)
	assert.False(t, f.session.Submitting())
	assert.Equal(t, before, f.store.State())
	assert.Equal(t, before.CurrentStep, f.store.State().CurrentStep)
	assert.Equal(t, itemsBefore, f.guest.Items())
	assert.NotNil(t, f.store.State().AppliedDiscount)

	f.orders.err = nil
	_, err = f.session.PlaceOrder(context.Background(), f.backend, nil)
	require.NoError(t, err)
	require.Len(t, f.orders.guestCalls, 2)
	assert.Equal(t, f.orders.guestCalls[0].IdempotencyKey, f.orders.guestCalls[1].IdempotencyKey)
}

func TestPlaceOrder_RejectsConcurrentSubmit(t *testing.T) {
	f := newFixture(t)
	f.readyGuest(t)
	f.orders.block = make(chan struct{})
	f.orders.callStarted = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)
		done <- err
	}()
	<-f.orders.callStarted

	_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)
	assert.ErrorIs(t, err, ErrSubmitting)

	close(f.orders.block)
	require.NoError(t, <-done)
	assert.Len(t, f.orders.guestCalls, 1)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)
	f.readyGuest(t)
	f.guest.Clear(context.Background())

	_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.False(t, f.session.Submitting())
}

type fakeServerBackend struct {
	cart.Backend
	invalidated bool
}

func (b *fakeServerBackend) Kind() cart.Kind { return cart.KindServer }
func (b *fakeServerBackend) Invalidate()     { b.invalidated = true }

func TestPlaceOrder_Authenticated(t *testing.T) {
	f := newFixture(t)
	f.readyGuest(t)
	f.store.SetShippingAddressID("addr-7")
	backend := &fakeServerBackend{Backend: f.backend}

	outcome, err := f.session.PlaceOrder(context.Background(), backend, &Customer{Token: "tok", Email: "member@example.com"})
	require.NoError(t, err)

	require.Len(t, f.orders.authCalls, 1)
	assert.Empty(t, f.orders.guestCalls)
	assert.Equal(t, "tok", f.orders.authTokens[0])
	assert.Equal(t, "addr-7", f.orders.authCalls[0].ShippingAddressID)
	assert.Nil(t, f.orders.authCalls[0].ShippingAddress)
	assert.Equal(t, "key-1", f.orders.authCalls[0].IdempotencyKey)

	assert.Contains(t, outcome.ConfirmationURL, "email=member%40example.com")
	assert.True(t, backend.invalidated)
	assert.Len(t, f.guest.Items(), 1, "server checkout never touches the guest cart")
}

func TestPlaceOrder_NotifiesAdmin(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{got: make(chan services.OrderNotification, 1)}
	f.session.opts.Notifier = notifier
	f.readyGuest(t)

	_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)
	require.NoError(t, err)

	select {
	case note := <-notifier.got:
		assert.Equal(t, "AUR-1001", note.OrderNumber)
		assert.True(t, note.Guest)
		assert.Equal(t, "Ana Reyes", note.CustomerName)
		require.Len(t, note.Items, 1)
		assert.Equal(t, 3, note.Items[0].Quantity)
	case <-time.After(time.Second):
		t.Fatal("notification not sent")
	}
}

func TestRemountIssuesNewKeyAndReleasesSubmit(t *testing.T) {
	f := newFixture(t)
	f.readyGuest(t)
	_, err := f.session.PlaceOrder(context.Background(), f.backend, nil)
	require.NoError(t, err)
	require.True(t, f.session.Submitting())

	f.session.Mount(nil)

	assert.False(t, f.session.Submitting())
	assert.Equal(t, "key-2", f.session.View(nil).IdempotencyKey)
}

func TestApplyPromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetDiscountCode("spring10")
	f.discounts.result = &services.DiscountResult{Code: "spring10", Percentage: 10}

	applied, err := f.session.ApplyPromo(ctx, nil, " spring10 ", 5000)
	require.NoError(t, err)
	assert.Equal(t, checkout.AppliedDiscount{Code: "SPRING10", Percentage: 10}, applied)
	assert.Empty(t, f.store.State().DiscountCode, "input cleared")

	q := f.session.Quote(5000)
	assert.Equal(t, 500.0, q.Discount)
	assert.Equal(t, 585.0, q.Tax)
	assert.Equal(t, 5235.0, q.Total)
}

func TestApplyPromo_FailureKeepsPreviousDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetAppliedDiscount(checkout.AppliedDiscount{Code: "OLD", Amount: 100})
	f.discounts.err = &services.APIError{Status: 400, Message: "Discount code has expired"}

	_, err := f.session.ApplyPromo(ctx, nil, "EXPIRED", 5000)

	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "Discount code has expired", userErr.Message)
	require.NotNil(t, f.store.State().AppliedDiscount)
	assert.Equal(t, "OLD", f.store.State().AppliedDiscount.Code)

	_, err = f.session.ApplyPromo(ctx, nil, "   ", 5000)
	assert.ErrorIs(t, err, ErrEmptyPromo)
}

func TestClearPromo(t *testing.T) {
	f := newFixture(t)
	f.store.SetAppliedDiscount(checkout.AppliedDiscount{Code: "OLD", Amount: 100})

	f.session.ClearPromo()

	assert.Nil(t, f.store.State().AppliedDiscount)
}

func TestConfirmationURL(t *testing.T) {
	assert.Equal(t, "/order-confirmation?emailSent=false&orderId=o%2F1", ConfirmationURL("o/1", "", false))
}
