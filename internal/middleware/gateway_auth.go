package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/quizgen/pkg/response"
)

// GatewayAuthMiddleware reads the caller identity from X-User-* headers set by
// a forward-auth gateway in front of the service.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, userID, c.Get("X-User-Email"), c.Get("X-User-Name"))
		return c.Next()
	}
}
