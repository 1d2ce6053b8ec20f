package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Comments       *handlers.CommentsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/auth/signup", cfg.Auth.Signup)
	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	agents := protected.Group("/agents", auth.RequireCustomer())
	agents.Post("", cfg.Auth.CreateAgent)
	agents.Post("/:id/deactivate", cfg.Auth.DeactivateAgent)

	protected.Get("/priorities", cfg.Tickets.ListPriorities)

	tickets := protected.Group("/tickets")
	tickets.Post("", auth.RequireCustomer(), cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Patch("/:id", cfg.Tickets.Update)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/messages", cfg.Comments.PostMessage)
	tickets.Get("/:id/messages", cfg.Comments.ListThreads)

	protected.Get("/notifications", cfg.Notifications.Feed)
	protected.Post("/notifications/read", cfg.Notifications.MarkRead)
}
