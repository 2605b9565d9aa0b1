package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Bearer returns middleware requiring the process-wide bearer credential.
// A missing credential scheme is 401; a mismatched token is 403. With no
// token configured every credential mismatches, so the guarded surface is
// unreachable until one is set.
func Bearer(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}
		got := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || got != token {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		}
		return c.Next()
	}
}

// TokenMatches reports whether a presented websocket credential matches.
// Unlike the HTTP middleware, an unconfigured token leaves the live
// channel open.
func TokenMatches(configured, presented string) bool {
	return configured == "" || presented == configured
}
