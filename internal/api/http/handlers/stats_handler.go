package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/observability"
	"github.com/triagedesk/triage-service/internal/service"
)

// StatsHandler serves the ticket rollup and the request counters.
type StatsHandler struct {
	service *service.StatsService
	metrics *observability.Metrics
}

// NewStatsHandler constructs handler.
func NewStatsHandler(statsService *service.StatsService, metrics *observability.Metrics) *StatsHandler {
	return &StatsHandler{service: statsService, metrics: metrics}
}

// Stats GET /api/v1/admin/stats.
func (h *StatsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statsResponse(stats)})
}

// Metrics GET /api/v1/admin/metrics.
func (h *StatsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
