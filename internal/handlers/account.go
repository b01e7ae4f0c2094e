package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/aura-storefront/internal/middleware"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/utils"
)

// AccountHandler serves the signed-in customer's saved addresses and
// notification inbox.
type AccountHandler struct {
	account *services.AccountService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(account *services.AccountService) *AccountHandler {
	return &AccountHandler{account: account}
}

func (h *AccountHandler) ListAddresses(c *fiber.Ctx) error {
	id, found := middleware.GetIdentity(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	addresses, err := h.account.Addresses(c.UserContext(), id.Token)
	if err != nil {
		return upstreamError(err, "Failed to load addresses")
	}
	return ok(c, addresses)
}

// ListNotifications returns one page of the inbox, which stays the source
// of truth next to the socket.
func (h *AccountHandler) ListNotifications(c *fiber.Ctx) error {
	id, found := middleware.GetIdentity(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePagination(c, 20)
	page, err := h.account.Notifications(c.UserContext(), id.Token, p.Page, p.Limit)
	if err != nil {
		return upstreamError(err, "Failed to load notifications")
	}
	return ok(c, page)
}

func (h *AccountHandler) MarkNotificationRead(c *fiber.Ctx) error {
	id, found := middleware.GetIdentity(c)
	if !found {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	if err := h.account.MarkNotificationRead(c.UserContext(), id.Token, c.Params("id")); err != nil {
		return upstreamError(err, "Failed to update notification")
	}
	return ok(c, fiber.Map{"id": c.Params("id"), "read": true})
}
