package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const dateLayout = "2006-01-02"

// Checker is the pipeline entry point the trigger routes call.
type Checker interface {
	RunCheck(ctx context.Context, date *time.Time) string
}

// Register mounts the HTTP trigger, health and metrics routes.
func Register(app *fiber.App, checker Checker) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	check := func(c *fiber.Ctx) error {
		var date *time.Time
		if raw := c.Query("date"); raw != "" {
			d, err := time.Parse(dateLayout, raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).SendString("Invalid date format. Use YYYY-MM-DD")
			}
			date = &d
		}
		report := checker.RunCheck(c.UserContext(), date)
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(report)
	}
	app.Get("/check", check)
	app.Post("/check", check)
}
