package middleware

import (
	"log"
	"strings"

	"coin-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware validates the Bearer session token issued at login and
// attaches the user identity to the request context.
func AuthMiddleware(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}

		userID, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			log.Printf("❌ [AUTH] Token rejected on %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// SSEAuthMiddleware authenticates streaming endpoints from a `token` query
// param, since EventSource cannot set an Authorization header.
func SSEAuthMiddleware(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token in query",
			})
		}

		userID, err := auth.ParseToken(token)
		if err != nil {
			log.Printf("❌ [SSEAuth] Token rejected on %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}
