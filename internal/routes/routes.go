package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/aura-storefront/internal/config"
	"github.com/example/aura-storefront/internal/handlers"
	"github.com/example/aura-storefront/internal/middleware"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/session"
)

// Services are the upstream API wrappers the handlers call.
type Services struct {
	Orders  *services.OrderService
	Account *services.AccountService
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, registry *session.Registry, svc Services) {
	cartHandler := handlers.NewCartHandler(registry)
	checkoutHandler := handlers.NewCheckoutHandler(registry, svc.Account, cfg.PaymentFormURL)
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	accountHandler := handlers.NewAccountHandler(svc.Account)
	paymentHandler := handlers.NewPaymentHandler()

	api := app.Group("/api")

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"visitors": registry.Len()}})
	})

	// Visitor-scoped routes work for guests and signed-in customers alike.
	guestSession := middleware.GuestSession(cfg)
	optionalAuth := middleware.OptionalAuth(cfg)

	cart := api.Group("/cart", guestSession, optionalAuth)
	cart.Get("/", cartHandler.GetCart)
	cart.Delete("/", cartHandler.Clear)
	cart.Post("/items", cartHandler.AddItem)
	cart.Put("/items/:id", cartHandler.UpdateItem)
	cart.Delete("/items/:id", cartHandler.RemoveItem)

	checkout := api.Group("/checkout", guestSession, optionalAuth)
	checkout.Post("/mount", checkoutHandler.Mount)
	checkout.Get("/", checkoutHandler.GetState)
	checkout.Patch("/guest-info", checkoutHandler.UpdateGuestInfo)
	checkout.Patch("/shipping-address/field", checkoutHandler.UpdateShippingField)
	checkout.Put("/shipping-address", checkoutHandler.SetShippingAddress)
	checkout.Put("/billing-address", checkoutHandler.SetBillingAddress)
	checkout.Put("/shipping-method", checkoutHandler.SetShippingMethod)
	checkout.Put("/payment-method", checkoutHandler.SetPaymentMethod)
	checkout.Put("/note", checkoutHandler.SetNote)
	checkout.Put("/step", checkoutHandler.SetStep)
	checkout.Post("/step/next", checkoutHandler.NextStep)
	checkout.Post("/step/prev", checkoutHandler.PrevStep)
	checkout.Post("/promo", checkoutHandler.ApplyPromo)
	checkout.Delete("/promo", checkoutHandler.ClearPromo)
	checkout.Post("/place-order", checkoutHandler.PlaceOrder)
	checkout.Get("/pay/:token", checkoutHandler.PaymentPage)

	payment := api.Group("/payment")
	payment.Get("/success", paymentHandler.Success)
	payment.Get("/failure", paymentHandler.Failure)

	api.Get("/orders/track", orderHandler.Track)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Get("/orders", orderHandler.ListOrders)
	protected.Post("/orders/:id/cancel", orderHandler.CancelOrder)
	protected.Post("/orders/:id/return", orderHandler.ReturnOrder)

	protected.Get("/addresses", accountHandler.ListAddresses)
	protected.Get("/notifications", accountHandler.ListNotifications)
	protected.Patch("/notifications/:id/read", accountHandler.MarkNotificationRead)
}
