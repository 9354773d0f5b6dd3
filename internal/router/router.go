// Package router wires the HTTP API surface of the collector.
package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/clustereye/collector/internal/handlers"
	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/middleware"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, core handlers.Core) *handlers.Handler {
	h := handlers.New(logger, core)

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))

	app.Get("/health", h.Health)

	v1 := app.Group("/v1")
	v1.Get("/summary", h.Summary)
	v1.Post("/snapshot", h.GetSnapshot)
	v1.Post("/refresh", h.Refresh)
	v1.Post("/force-update", h.ForceUpdate)
	v1.Get("/groups/:group_id/history", h.GroupHistory)

	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration and returns it together
// with the handler instance for further wiring
func New(logger *logging.Logger, core handlers.Core) (*fiber.App, *handlers.Handler) {
	app := fiber.New(fiber.Config{
		AppName:               "ClusterEye Collector",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	h := Setup(app, logger, core)

	return app, h
}
