package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/api/http/handlers"
	"github.com/triagedesk/triage-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Events         *handlers.EventsHandler
	AdminTickets   *handlers.AdminTicketsHandler
	Errors         *handlers.ErrorsHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// NewApp builds the fiber app. Handlers hand request strings (route params,
// headers) to stores that outlive the request, so the app runs immutable.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		Immutable:             true,
	})
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1")
	api.Post("/tickets", cfg.Tickets.CreateTicket)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Post("/tickets/:id/messages", cfg.Tickets.AddMessage)
	api.Post("/events", cfg.Events.LogEvent)

	admin := api.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/tickets", cfg.AdminTickets.ListTickets)
	admin.Get("/tickets/:id", cfg.AdminTickets.GetTicket)
	admin.Post("/tickets/:id/messages", cfg.AdminTickets.AddMessage)
	admin.Patch("/tickets/:id/status", cfg.AdminTickets.ChangeStatus)
	admin.Patch("/tickets/:id/priority", cfg.AdminTickets.ChangePriority)
	admin.Post("/tickets/:id/assign", cfg.AdminTickets.Assign)
	admin.Get("/tickets/:id/history", cfg.AdminTickets.ListHistory)

	admin.Get("/stats", cfg.Stats.Stats)
	admin.Get("/metrics", cfg.Stats.Metrics)

	admin.Get("/errors", cfg.Errors.ListAggregations)
	admin.Get("/errors/:fingerprint", cfg.Errors.GetAggregation)
	admin.Post("/errors/:fingerprint/resolve", cfg.Errors.ResolveAggregation)
	admin.Get("/logs", cfg.Errors.ListLogs)
}
