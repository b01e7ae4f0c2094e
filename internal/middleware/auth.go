package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/aura-storefront/internal/config"
	"github.com/example/aura-storefront/internal/utils"
)

const identityContextKey = "currentIdentity"

// AuthMiddleware rejects requests without a usable bearer token and loads
// the caller's identity into context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		id, err := utils.ParseToken(cfg.JWTSecret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(identityContextKey, id)
		return c.Next()
	}
}

// OptionalAuth loads the identity when a valid bearer token is present and
// lets the request through as a guest otherwise.
func OptionalAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := bearerToken(c.Get("Authorization")); ok {
			if id, err := utils.ParseToken(cfg.JWTSecret, token); err == nil {
				c.Locals(identityContextKey, id)
			}
		}
		return c.Next()
	}
}

// GetIdentity returns the authenticated caller, if any.
func GetIdentity(c *fiber.Ctx) (*utils.Identity, bool) {
	id, ok := c.Locals(identityContextKey).(*utils.Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
