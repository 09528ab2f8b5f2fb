package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// PlugStatic answers browser probes under /.well-known/ so they never reach
// the frontend files. API prefixes pass through untouched.
func PlugStatic(apiPrefixes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, p := range apiPrefixes {
			if strings.HasPrefix(path, p) {
				return c.Next()
			}
		}

		if strings.HasPrefix(path, "/.well-known/") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status": "ignored",
			})
		}

		return c.Next()
	}
}

// RequestLogger logs every request once it has been handled.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("[HTTP] request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}
