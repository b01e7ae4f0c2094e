package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/aura-storefront/internal/cart"
	"github.com/example/aura-storefront/internal/middleware"
	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/session"
)

const fallbackCartError = "Failed to update cart. Please try again."

// CartHandler serves the cart of the current visitor. Signed-in customers
// get their server cart, guests the cart kept under their session cookie.
type CartHandler struct {
	registry *session.Registry
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(registry *session.Registry) *CartHandler {
	return &CartHandler{registry: registry}
}

type addCartItemRequest struct {
	Product  models.ProductSnapshot `json:"product"`
	Quantity int                    `json:"quantity" validate:"gte=0"`
	Variant  models.Variant         `json:"variant"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) backend(c *fiber.Ctx) cart.Backend {
	id, _ := middleware.GetIdentity(c)
	return h.registry.Get(c.UserContext(), middleware.GetSessionID(c)).Backend(c.UserContext(), id)
}

func (h *CartHandler) render(c *fiber.Ctx, b cart.Backend) error {
	ctx := c.UserContext()
	lines, err := b.Lines(ctx)
	if err != nil {
		return upstreamError(err, "Failed to load cart")
	}
	totals, err := b.Totals(ctx)
	if err != nil {
		return upstreamError(err, "Failed to load cart")
	}
	return ok(c, fiber.Map{
		"kind":   b.Kind(),
		"items":  lines,
		"totals": totals,
	})
}

// GetCart returns the lines and totals of the visitor's cart.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	return h.render(c, h.backend(c))
}

// AddItem adds a product, merging with an existing line of the same variant.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	var req addCartItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Product.ID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "product id is required")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	b := h.backend(c)
	if err := b.AddItem(c.UserContext(), req.Product, req.Quantity, req.Variant); err != nil {
		return upstreamError(err, fallbackCartError)
	}
	c.Status(fiber.StatusCreated)
	return h.render(c, b)
}

// UpdateItem sets a line's quantity. Zero or less removes the line.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	var req updateCartItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	b := h.backend(c)
	if err := b.UpdateQuantity(c.UserContext(), c.Params("id"), req.Quantity); err != nil {
		return upstreamError(err, fallbackCartError)
	}
	return h.render(c, b)
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	b := h.backend(c)
	if err := b.RemoveItem(c.UserContext(), c.Params("id")); err != nil {
		return upstreamError(err, fallbackCartError)
	}
	return h.render(c, b)
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	b := h.backend(c)
	if err := b.Clear(c.UserContext()); err != nil {
		return upstreamError(err, fallbackCartError)
	}
	return h.render(c, b)
}
