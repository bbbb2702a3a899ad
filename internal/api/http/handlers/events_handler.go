package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/api/dto"
	"github.com/triagedesk/triage-service/internal/observability"
	"github.com/triagedesk/triage-service/internal/service"
)

// EventsHandler ingests telemetry events.
type EventsHandler struct {
	service *service.ErrorService
}

// NewEventsHandler constructs handler.
func NewEventsHandler(errorService *service.ErrorService) *EventsHandler {
	return &EventsHandler{service: errorService}
}

// LogEvent POST /api/v1/events. Responds 201 when a ticket was opened or reused,
// 202 otherwise.
func (h *EventsHandler) LogEvent(c *fiber.Ctx) error {
	var req dto.LogEventRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	requestID := req.RequestID
	if requestID == nil {
		if id := observability.RequestIDFromContext(c); id != "" {
			requestID = &id
		}
	}
	ip := c.IP()
	ticketID, err := h.service.LogEvent(c.UserContext(), service.LogEventInput{
		Level:        req.Level,
		Message:      req.Message,
		Component:    req.Component,
		ErrorMessage: req.ErrorMessage,
		ErrorStack:   req.ErrorStack,
		RequestID:    requestID,
		SessionID:    req.SessionID,
		Endpoint:     req.Endpoint,
		Method:       req.Method,
		StatusCode:   req.StatusCode,
		DurationMs:   req.DurationMs,
		UserID:       req.UserID,
		IPAddress:    &ip,
		UserAgent:    optionalHeader(c, fiber.HeaderUserAgent),
		Context:      req.Context,
		ForceTicket:  req.CreateTicket,
	})
	if err != nil {
		return err
	}
	status := fiber.StatusAccepted
	if ticketID != nil {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.LogEventResponse{TicketID: ticketID}})
}
