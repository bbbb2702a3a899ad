package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/service"
)

// ErrorsHandler exposes error aggregations and the system log to operators.
type ErrorsHandler struct {
	service *service.ErrorService
}

// NewErrorsHandler constructs handler.
func NewErrorsHandler(errorService *service.ErrorService) *ErrorsHandler {
	return &ErrorsHandler{service: errorService}
}

// ListAggregations GET /api/v1/admin/errors.
func (h *ErrorsHandler) ListAggregations(c *fiber.Ctx) error {
	resolved, err := parseBool("resolved", c.Query("resolved"))
	if err != nil {
		return err
	}
	limit, offset, err := pageParams(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListAggregations(c.UserContext(), service.AggregationQuery{
		Resolved: resolved,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pageResponse(page, aggregationResponse)})
}

// GetAggregation GET /api/v1/admin/errors/:fingerprint.
func (h *ErrorsHandler) GetAggregation(c *fiber.Ctx) error {
	agg, err := h.service.GetAggregation(c.UserContext(), c.Params("fingerprint"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": aggregationResponse(agg)})
}

// ResolveAggregation POST /api/v1/admin/errors/:fingerprint/resolve.
func (h *ErrorsHandler) ResolveAggregation(c *fiber.Ctx) error {
	agg, err := h.service.ResolveAggregation(c.UserContext(), c.Params("fingerprint"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": aggregationResponse(agg)})
}

// ListLogs GET /api/v1/admin/logs.
func (h *ErrorsHandler) ListLogs(c *fiber.Ctx) error {
	limit, offset, err := pageParams(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListLogs(c.UserContext(), service.LogQuery{
		Levels:      splitList[domain.LogLevel](c.Query("level")),
		Component:   optionalQuery(c, "component"),
		Fingerprint: optionalQuery(c, "fingerprint"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pageResponse(page, systemLogResponse)})
}
