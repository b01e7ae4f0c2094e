package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/aura-storefront/internal/middleware"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/utils"
)

// OrderHandler proxies order lookups and after-sale actions.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type trackOrderQuery struct {
	OrderNumber string `query:"orderNumber" validate:"required"`
	Email       string `query:"email" validate:"required,email"`
}

type orderActionRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

// Track lets anyone with the order number and its email see an order.
func (h *OrderHandler) Track(c *fiber.Ctx) error {
	q := trackOrderQuery{
		OrderNumber: strings.TrimSpace(c.Query("orderNumber")),
		Email:       strings.TrimSpace(c.Query("email")),
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "order number and a valid email are required")
	}

	order, err := h.orders.Track(c.UserContext(), q.OrderNumber, q.Email)
	if err != nil {
		return upstreamError(err, "Order not found")
	}
	return ok(c, order)
}

// ListOrders returns the signed-in customer's orders, newest first.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	id, found := middleware.GetIdentity(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c, 10)
	page, err := h.orders.MyOrders(c.UserContext(), id.Token, p.Page, p.Limit)
	if err != nil {
		return upstreamError(err, "Failed to load orders")
	}
	return ok(c, page)
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	return h.transition(c, h.orders.Cancel, "Failed to cancel order")
}

func (h *OrderHandler) ReturnOrder(c *fiber.Ctx) error {
	return h.transition(c, h.orders.Return, "Failed to request return")
}

func (h *OrderHandler) transition(c *fiber.Ctx, action func(context.Context, string, string, string) (*services.Order, error), fallback string) error {
	id, found := middleware.GetIdentity(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req orderActionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	order, err := action(c.UserContext(), id.Token, c.Params("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		return upstreamError(err, fallback)
	}
	return ok(c, order)
}
