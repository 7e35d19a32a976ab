package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"docx2pdf/internal/converter"
	"docx2pdf/internal/handlers"
	u "docx2pdf/internal/utils"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, rdb *redis.Client, backend converter.Backend) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		BodyLimit:             cfg.Limits.MaxUploadBytes,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": msg,
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, rdb, backend)

	// Ensure unmatched routes return JSON, not Fiber's plain-text 404
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, rdb *redis.Client, backend converter.Backend) {
	// One shared service instance so both conversion routes use the same
	// backend and cache client.
	svc := handlers.NewConvertService(cfg, rdb, backend)

	app.Get("/", svc.HandleIndex)
	app.Get("/health", svc.HandleHealth)
	app.Post("/convert", svc.HandleFormConversion)
	app.Post("/api/convert", svc.HandleAPIConversion)
}
