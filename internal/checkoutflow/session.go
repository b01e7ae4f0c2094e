// Package checkoutflow drives one visitor's checkout: mounting the wizard,
// applying promo codes and placing the order through the right endpoint.
package checkoutflow

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/cart"
	"github.com/example/aura-storefront/internal/checkout"
	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/payment"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/utils"
)

const (
	ConfirmationPath = "/order-confirmation"

	fallbackOrderError = "Failed to place order. Please try again."
	fallbackPromoError = "Invalid discount code"
)

var (
	ErrSubmitting = errors.New("an order is already being placed")
	ErrNotReady   = errors.New("please complete your shipping details and choose a payment method")
	ErrEmptyCart  = errors.New("your cart is empty")
	ErrEmptyPromo = errors.New("please enter a discount code")
)

// Orders places orders upstream.
type Orders interface {
	Checkout(ctx context.Context, token string, payload checkout.AuthenticatedCheckoutPayload) (*services.OrderResult, error)
	GuestCheckout(ctx context.Context, payload checkout.GuestCheckoutPayload) (*services.OrderResult, error)
}

// Discounts validates promo codes upstream.
type Discounts interface {
	ValidateDiscount(ctx context.Context, token, code string, subtotal float64) (*services.DiscountResult, error)
}

// OrderNotifier is told about every placed order. Failures are only logged.
type OrderNotifier interface {
	NotifyOrderPlaced(ctx context.Context, order services.OrderNotification) error
}

// Customer identifies a signed-in shopper. Guests have none.
type Customer struct {
	Token string
	Email string
}

// Options tune a session.
type Options struct {
	SettleDelay time.Duration
	Rates       checkout.Rates
	Notifier    OrderNotifier
	Now         func() time.Time
	NewKey      func() string
}

// OutcomeKind tells the caller where to send the shopper after an order.
type OutcomeKind string

const (
	OutcomeRedirect     OutcomeKind = "payment_redirect"
	OutcomeConfirmation OutcomeKind = "confirmation"
)

// Outcome is the result of a successful PlaceOrder.
type Outcome struct {
	Kind            OutcomeKind                 `json:"kind"`
	OrderID         string                      `json:"orderId"`
	OrderNumber     string                      `json:"orderNumber,omitempty"`
	Email           string                      `json:"email,omitempty"`
	ConfirmationURL string                      `json:"confirmationUrl,omitempty"`
	Payment         *payment.RedirectDescriptor `json:"-"`
}

// UserError carries a shopper-facing message next to the underlying error.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }
func (e *UserError) Unwrap() error { return e.Err }

// View is a read-only snapshot of a session.
type View struct {
	State          checkout.State `json:"state"`
	Initialized    bool           `json:"initialized"`
	Submitting     bool           `json:"submitting"`
	ShippingValid  bool           `json:"shippingValid"`
	CanPlaceOrder  bool           `json:"canPlaceOrder"`
	IdempotencyKey string         `json:"idempotencyKey"`
}

// Session is the checkout page state of one visitor.
type Session struct {
	store     *checkout.Store
	orders    Orders
	discounts Discounts
	opts      Options

	mu             sync.Mutex
	mounted        bool
	mountedAt      time.Time
	submitting     bool
	idempotencyKey string
}

// NewSession wires a session around store.
func NewSession(store *checkout.Store, orders Orders, discounts Discounts, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewKey == nil {
		opts.NewKey = uuid.NewString
	}
	return &Session{
		store:     store,
		orders:    orders,
		discounts: discounts,
		opts:      opts,
	}
}

// Store exposes the wizard state for the step setters.
func (s *Session) Store() *checkout.Store {
	return s.store
}

// Mount starts a fresh checkout visit: the wizard goes back to the first
// step, cash on delivery becomes the default payment method, any applied
// discount is dropped and a new idempotency key is issued. Empty contact
// fields are filled from prefill when given.
func (s *Session) Mount(prefill *checkout.GuestInfo) {
	s.store.SetStep(checkout.StepShipping)
	if s.store.State().PaymentMethod == checkout.PaymentUnset {
		s.store.SetPaymentMethod(checkout.PaymentCOD)
	}
	s.store.ClearDiscount()

	if prefill != nil {
		current := s.store.State().GuestInfo
		var patch checkout.GuestInfoPatch
		if current.Email == "" && prefill.Email != "" {
			patch.Email = &prefill.Email
		}
		if current.FirstName == "" && prefill.FirstName != "" {
			patch.FirstName = &prefill.FirstName
		}
		if current.LastName == "" && prefill.LastName != "" {
			patch.LastName = &prefill.LastName
		}
		if current.Phone == "" && prefill.Phone != "" {
			patch.Phone = &prefill.Phone
		}
		s.store.SetGuestInfo(patch)
	}

	s.mu.Lock()
	s.mounted = true
	s.mountedAt = s.opts.Now()
	s.submitting = false
	s.idempotencyKey = s.opts.NewKey()
	s.mu.Unlock()
}

// Initialized reports whether the settle delay after Mount has passed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializedLocked()
}

func (s *Session) initializedLocked() bool {
	return s.mounted && !s.opts.Now().Before(s.mountedAt.Add(s.opts.SettleDelay))
}

// Submitting reports whether an order is in flight or was just placed.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// ShouldRedirectToCart reports whether the shopper should be sent back to
// the cart page. It stays false until the page settled and while an order
// is being placed, so clearing the cart after a successful order does not
// bounce the shopper.
func (s *Session) ShouldRedirectToCart(ctx context.Context, backend cart.Backend) (bool, error) {
	s.mu.Lock()
	ready := s.initializedLocked() && !s.submitting
	s.mu.Unlock()
	if !ready {
		return false, nil
	}

	lines, err := backend.Lines(ctx)
	if err != nil {
		return false, err
	}
	return len(lines) == 0, nil
}

// ShippingValid checks the shipping step for customer. Guests must supply
// an inline address; only signed-in customers may pick a saved one.
func (s *Session) ShippingValid(customer *Customer) bool {
	if customer == nil {
		return s.store.IsGuestShippingValid()
	}
	return s.store.IsShippingValid()
}

// CanPlaceOrder is shipping validity plus a chosen payment method.
func (s *Session) CanPlaceOrder(customer *Customer) bool {
	return s.ShippingValid(customer) && s.store.State().PaymentMethod.Valid()
}

// View snapshots the session as seen by customer.
func (s *Session) View(customer *Customer) View {
	st := s.store.State()
	shippingValid := s.ShippingValid(customer)

	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		State:          st,
		Initialized:    s.initializedLocked(),
		Submitting:     s.submitting,
		ShippingValid:  shippingValid,
		CanPlaceOrder:  shippingValid && st.PaymentMethod.Valid(),
		IdempotencyKey: s.idempotencyKey,
	}
}

// Quote prices the session against subtotal.
func (s *Session) Quote(subtotal float64) checkout.Quote {
	return s.store.Quote(subtotal, s.opts.Rates)
}

// ApplyPromo validates code against subtotal. On success the discount is
// stored and the typed code cleared; on failure a previous discount stays.
func (s *Session) ApplyPromo(ctx context.Context, customer *Customer, code string, subtotal float64) (checkout.AppliedDiscount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return checkout.AppliedDiscount{}, ErrEmptyPromo
	}

	token := ""
	if customer != nil {
		token = customer.Token
	}

	res, err := s.discounts.ValidateDiscount(ctx, token, code, subtotal)
	if err != nil {
		return checkout.AppliedDiscount{}, &UserError{Message: utils.FormatError(err, fallbackPromoError), Err: err}
	}

	applied := checkout.AppliedDiscount{
		Code:       strings.ToUpper(res.Code),
		Percentage: res.Percentage,
		Amount:     res.Amount,
	}
	s.store.SetAppliedDiscount(applied)
	s.store.SetDiscountCode("")
	return applied, nil
}

// ClearPromo removes the applied discount.
func (s *Session) ClearPromo() {
	s.store.ClearDiscount()
}

// PlaceOrder submits the order. Signed-in customers check out their server
// cart; guests send the lines of their guest cart. A payment redirect
// outcome leaves the carts untouched since the gateway round trip decides
// the order's fate; a confirmation outcome clears the guest cart and resets
// the wizard. On failure the wizard and cart are left as they were and the
// order can be retried with the same idempotency key.
func (s *Session) PlaceOrder(ctx context.Context, backend cart.Backend, customer *Customer) (*Outcome, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitting
	}
	if !s.CanPlaceOrder(customer) {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.submitting = true
	key := s.idempotencyKey
	if key == "" {
		key = s.opts.NewKey()
		s.idempotencyKey = key
	}
	s.mu.Unlock()

	outcome, err := s.submit(ctx, backend, customer, key)
	if err != nil {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()

		var pe *UserError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, &UserError{Message: utils.FormatError(err, fallbackOrderError), Err: err}
	}
	return outcome, nil
}

func (s *Session) submit(ctx context.Context, backend cart.Backend, customer *Customer, key string) (*Outcome, error) {
	lines, err := backend.Lines(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &UserError{Message: "Your cart is empty", Err: ErrEmptyCart}
	}

	state := s.store.State()
	var (
		res   *services.OrderResult
		email string
	)
	if customer != nil {
		payload := s.store.AuthenticatedCheckoutData()
		payload.IdempotencyKey = key
		res, err = s.orders.Checkout(ctx, customer.Token, payload)
		email = customer.Email
	} else {
		payload := s.store.GuestCheckoutData(lines)
		payload.IdempotencyKey = key
		res, err = s.orders.GuestCheckout(ctx, payload)
		email = payload.Email
	}
	if err != nil {
		return nil, err
	}
	if email == "" {
		email = firstNonEmpty(res.Order.Email, state.GuestInfo.Email)
	}

	s.notify(res, state, lines, customer == nil)

	outcome := &Outcome{
		OrderID:     res.Order.ID,
		OrderNumber: res.Order.OrderNumber,
		Email:       email,
	}

	if res.Payment != nil {
		outcome.Kind = OutcomeRedirect
		outcome.Payment = res.Payment
		return outcome, nil
	}

	if customer == nil {
		if err := backend.Clear(ctx); err != nil {
			log.Error().Err(err).Str("component", "checkout").Msg("failed to clear guest cart after order")
		}
	} else if inv, ok := backend.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
	s.store.Reset()

	outcome.Kind = OutcomeConfirmation
	outcome.ConfirmationURL = ConfirmationURL(res.Order.ID, email, res.ConfirmationEmailSent())
	return outcome, nil
}

func (s *Session) notify(res *services.OrderResult, state checkout.State, lines []models.CartItem, guest bool) {
	if s.opts.Notifier == nil {
		return
	}

	items := make([]services.OrderItemNotification, 0, len(lines))
	for _, line := range lines {
		items = append(items, services.OrderItemNotification{
			Name:     line.Product.Name,
			Quantity: line.Quantity,
			Price:    line.Product.Price,
		})
	}
	g := state.GuestInfo
	note := services.OrderNotification{
		OrderID:       res.Order.ID,
		OrderNumber:   firstNonEmpty(res.Order.OrderNumber, res.Order.ID),
		Items:         items,
		TotalAmount:   res.Order.Total,
		CustomerName:  strings.TrimSpace(g.FirstName + " " + g.LastName),
		CustomerEmail: g.Email,
		CustomerPhone: g.Phone,
		PaymentMethod: string(state.PaymentMethod),
		Guest:         guest,
	}

	notifier := s.opts.Notifier
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifier.NotifyOrderPlaced(ctx, note); err != nil {
			log.Warn().Err(err).Str("component", "checkout").Str("order_id", note.OrderID).Msg("order notification failed")
		}
	}()
}

// ConfirmationURL builds the confirmation route for a placed order.
func ConfirmationURL(orderID, email string, emailSent bool) string {
	q := url.Values{}
	q.Set("orderId", orderID)
	if email != "" {
		q.Set("email", email)
	}
	q.Set("emailSent", strconv.FormatBool(emailSent))
	return ConfirmationPath + "?" + q.Encode()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
