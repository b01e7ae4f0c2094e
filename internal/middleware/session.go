package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/aura-storefront/internal/config"
)

const (
	SessionCookieName = "aura_sid"

	sessionContextKey = "guestSessionID"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// GuestSession makes sure every visitor carries a session cookie. The id
// keys the guest cart and the checkout session.
func GuestSession(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(SessionCookieName)
		if _, err := uuid.Parse(sid); err != nil {
			sid = uuid.NewString()
		}

		c.Cookie(&fiber.Cookie{
			Name:     SessionCookieName,
			Value:    sid,
			Path:     "/",
			Expires:  time.Now().Add(sessionCookieTTL),
			HTTPOnly: true,
			Secure:   cfg.CookieSecure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		c.Locals(sessionContextKey, sid)
		return c.Next()
	}
}

// GetSessionID returns the visitor's session id set by GuestSession.
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(sessionContextKey).(string)
	return sid
}
