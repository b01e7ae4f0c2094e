package handlers

import (
	"bytes"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/checkout"
	"github.com/example/aura-storefront/internal/checkoutflow"
	"github.com/example/aura-storefront/internal/middleware"
	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/payment"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/session"
	"github.com/example/aura-storefront/internal/utils"
)

// PaymentPagePrefix is where a stashed payment redirect is served.
const PaymentPagePrefix = "/api/checkout/pay/"

// CheckoutHandler exposes the checkout wizard of the current visitor.
type CheckoutHandler struct {
	registry       *session.Registry
	account        *services.AccountService
	paymentFormURL string
}

// NewCheckoutHandler constructs CheckoutHandler.
func NewCheckoutHandler(registry *session.Registry, account *services.AccountService, paymentFormURL string) *CheckoutHandler {
	return &CheckoutHandler{registry: registry, account: account, paymentFormURL: paymentFormURL}
}

type shippingFieldRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

type shippingAddressRequest struct {
	Address   *models.Address `json:"address"`
	AddressID string          `json:"addressId"`
}

type billingAddressRequest struct {
	UseSameAddress *bool           `json:"useSameAddress"`
	Address        *models.Address `json:"address"`
	AddressID      string          `json:"addressId"`
}

type shippingMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=standard express"`
}

type paymentMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=cod esewa card"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type stepRequest struct {
	Step int `json:"step" validate:"required,oneof=1 2 3"`
}

type promoRequest struct {
	Code string `json:"code"`
}

func (h *CheckoutHandler) visitor(c *fiber.Ctx) *session.Visitor {
	return h.registry.Get(c.UserContext(), middleware.GetSessionID(c))
}

func customerFrom(c *fiber.Ctx) *checkoutflow.Customer {
	id, found := middleware.GetIdentity(c)
	if !found {
		return nil
	}
	return &checkoutflow.Customer{Token: id.Token, Email: id.Email}
}

// render answers with the wizard state, the price quote against the current
// cart and whether the shopper should be sent back to the cart.
func (h *CheckoutHandler) render(c *fiber.Ctx, v *session.Visitor) error {
	ctx := c.UserContext()
	id, _ := middleware.GetIdentity(c)
	backend := v.Backend(ctx, id)

	totals, err := backend.Totals(ctx)
	if err != nil {
		return upstreamError(err, "Failed to load cart")
	}
	redirect, err := v.Checkout.ShouldRedirectToCart(ctx, backend)
	if err != nil {
		return upstreamError(err, "Failed to load cart")
	}

	return ok(c, fiber.Map{
		"checkout":       v.Checkout.View(customerFrom(c)),
		"quote":          v.Checkout.Quote(totals.Subtotal),
		"cart":           totals,
		"redirectToCart": redirect,
	})
}

// Mount starts a checkout visit. Signed-in customers get their contact
// details prefilled from their profile.
func (h *CheckoutHandler) Mount(c *fiber.Ctx) error {
	v := h.visitor(c)

	var prefill *checkout.GuestInfo
	if customer := customerFrom(c); customer != nil && h.account != nil {
		profile, err := h.account.Profile(c.UserContext(), customer.Token)
		if err != nil {
			log.Warn().Err(err).Str("component", "checkout").Msg("profile prefill failed")
		} else {
			prefill = &checkout.GuestInfo{
				Email:     profile.Email,
				FirstName: profile.FirstName,
				LastName:  profile.LastName,
				Phone:     profile.Phone,
			}
		}
	}

	v.Checkout.Mount(prefill)
	return h.render(c, v)
}

func (h *CheckoutHandler) GetState(c *fiber.Ctx) error {
	return h.render(c, h.visitor(c))
}

func (h *CheckoutHandler) UpdateGuestInfo(c *fiber.Ctx) error {
	var req checkout.GuestInfoPatch
	if err := bind(c, &req); err != nil {
		return err
	}
	v := h.visitor(c)
	v.Checkout.Store().SetGuestInfo(req)
	return h.render(c, v)
}

func (h *CheckoutHandler) UpdateShippingField(c *fiber.Ctx) error {
	var req shippingFieldRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	v := h.visitor(c)
	if err := v.Checkout.Store().UpdateShippingField(checkout.ShippingField(req.Field), req.Value); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return h.render(c, v)
}

// SetShippingAddress takes either a full inline address (guests) or the id
// of a saved address (signed-in customers).
func (h *CheckoutHandler) SetShippingAddress(c *fiber.Ctx) error {
	var req shippingAddressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Address == nil && req.AddressID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "address or addressId is required")
	}
	if err := requireSignInForSaved(c, req.AddressID); err != nil {
		return err
	}
	v := h.visitor(c)
	store := v.Checkout.Store()
	if req.Address != nil {
		store.SetShippingAddress(*req.Address)
	}
	if req.AddressID != "" {
		store.SetShippingAddressID(req.AddressID)
	}
	return h.render(c, v)
}

// requireSignInForSaved refuses saved address ids from guests.
func requireSignInForSaved(c *fiber.Ctx, addressID string) error {
	if addressID == "" {
		return nil
	}
	if _, found := middleware.GetIdentity(c); !found {
		return fiber.NewError(fiber.StatusUnauthorized, "Sign in to use a saved address")
	}
	return nil
}

func (h *CheckoutHandler) SetBillingAddress(c *fiber.Ctx) error {
	var req billingAddressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := requireSignInForSaved(c, req.AddressID); err != nil {
		return err
	}
	v := h.visitor(c)
	store := v.Checkout.Store()
	if req.UseSameAddress != nil {
		store.SetUseSameAddress(*req.UseSameAddress)
	}
	if req.Address != nil {
		store.SetBillingAddress(*req.Address)
	}
	if req.AddressID != "" {
		store.SetBillingAddressID(req.AddressID)
	}
	return h.render(c, v)
}

func (h *CheckoutHandler) SetShippingMethod(c *fiber.Ctx) error {
	var req shippingMethodRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	v := h.visitor(c)
	v.Checkout.Store().SetShippingMethod(checkout.ShippingMethod(req.Method))
	return h.render(c, v)
}

func (h *CheckoutHandler) SetPaymentMethod(c *fiber.Ctx) error {
	var req paymentMethodRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	v := h.visitor(c)
	v.Checkout.Store().SetPaymentMethod(checkout.PaymentMethod(req.Method))
	return h.render(c, v)
}

func (h *CheckoutHandler) SetNote(c *fiber.Ctx) error {
	var req noteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	v := h.visitor(c)
	v.Checkout.Store().SetCustomerNote(req.Note)
	return h.render(c, v)
}

func (h *CheckoutHandler) SetStep(c *fiber.Ctx) error {
	var req stepRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	v := h.visitor(c)
	v.Checkout.Store().SetStep(checkout.Step(req.Step))
	return h.render(c, v)
}

// NextStep advances the wizard once the current step is complete.
func (h *CheckoutHandler) NextStep(c *fiber.Ctx) error {
	v := h.visitor(c)
	store := v.Checkout.Store()
	st := store.State()

	switch st.CurrentStep {
	case checkout.StepShipping:
		if !v.Checkout.ShippingValid(customerFrom(c)) {
			return fiber.NewError(fiber.StatusBadRequest, "Please fill in all required shipping details")
		}
	case checkout.StepPayment:
		if !st.PaymentMethod.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Please select a payment method")
		}
	}

	store.NextStep()
	return h.render(c, v)
}

func (h *CheckoutHandler) PrevStep(c *fiber.Ctx) error {
	v := h.visitor(c)
	v.Checkout.Store().PrevStep()
	return h.render(c, v)
}

// ApplyPromo validates a promo code against the current cart subtotal.
func (h *CheckoutHandler) ApplyPromo(c *fiber.Ctx) error {
	var req promoRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	v := h.visitor(c)
	id, _ := middleware.GetIdentity(c)
	totals, err := v.Backend(ctx, id).Totals(ctx)
	if err != nil {
		return upstreamError(err, "Failed to load cart")
	}

	if _, err := v.Checkout.ApplyPromo(ctx, customerFrom(c), req.Code, totals.Subtotal); err != nil {
		return checkoutError(err)
	}
	return h.render(c, v)
}

func (h *CheckoutHandler) ClearPromo(c *fiber.Ctx) error {
	v := h.visitor(c)
	v.Checkout.ClearPromo()
	return h.render(c, v)
}

// PlaceOrder submits the order. A gateway payment is answered with the URL
// of the page that posts the shopper to the gateway; everything else with
// the confirmation route.
func (h *CheckoutHandler) PlaceOrder(c *fiber.Ctx) error {
	v := h.visitor(c)
	id, _ := middleware.GetIdentity(c)

	outcome, err := v.Checkout.PlaceOrder(c.UserContext(), v.Backend(c.UserContext(), id), customerFrom(c))
	if err != nil {
		return checkoutError(err)
	}

	if outcome.Kind == checkoutflow.OutcomeRedirect {
		if err := outcome.Payment.Validate(); err != nil {
			log.Error().Err(err).Str("component", "checkout").Str("order_id", outcome.OrderID).Msg("unusable payment descriptor")
			return fiber.NewError(fiber.StatusBadGateway, "Payment could not be started. Please try again.")
		}
		token := v.StashPayment(outcome.Payment)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"kind":        outcome.Kind,
				"orderId":     outcome.OrderID,
				"orderNumber": outcome.OrderNumber,
				"redirectUrl": PaymentPagePrefix + token,
			},
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": outcome})
}

// PaymentPage serves the auto-submitting gateway form once.
func (h *CheckoutHandler) PaymentPage(c *fiber.Ctx) error {
	v := h.visitor(c)
	d, found := v.TakePayment(c.Params("token"))
	if !found {
		return fiber.NewError(fiber.StatusNotFound, "payment session expired, please place the order again")
	}

	var buf bytes.Buffer
	if err := payment.RenderForm(&buf, d, h.paymentFormURL); err != nil {
		log.Error().Err(err).Str("component", "checkout").Str("order_id", string(d.TransactionUUID)).Msg("refusing to render payment form")
		return fiber.NewError(fiber.StatusBadGateway, "Payment could not be started. Please try again.")
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

func checkoutError(err error) error {
	switch {
	case errors.Is(err, checkoutflow.ErrSubmitting):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, checkoutflow.ErrNotReady), errors.Is(err, checkoutflow.ErrEmptyPromo):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, checkoutflow.ErrEmptyCart):
		return fiber.NewError(fiber.StatusBadRequest, "Your cart is empty")
	}

	var ue *checkoutflow.UserError
	if errors.As(err, &ue) {
		status := fiber.StatusBadGateway
		var apiErr *services.APIError
		var netErr *services.NetworkError
		switch {
		case errors.As(ue.Err, &apiErr) && apiErr.Status >= 400:
			status = apiErr.Status
		case errors.As(ue.Err, &netErr):
			status = fiber.StatusServiceUnavailable
		}
		return fiber.NewError(status, ue.Message)
	}
	return fiber.NewError(fiber.StatusInternalServerError, utils.FormatError(err, "Failed to place order. Please try again."))
}
