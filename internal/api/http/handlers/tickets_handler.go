package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/api/dto"
	"github.com/triagedesk/triage-service/internal/service"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

// TicketsHandler manages the public reporter endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ip := c.IP()
	ticket, err := h.service.Report(c.UserContext(), service.ReportInput{
		ReporterID:     req.ReporterID,
		ReporterEmail:  req.ReporterEmail,
		ReporterName:   req.ReporterName,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Priority:       req.Priority,
		Source:         req.Source,
		PageURL:        req.PageURL,
		Browser:        req.Browser,
		UserAgent:      optionalHeader(c, fiber.HeaderUserAgent),
		IPAddress:      &ip,
		ErrorMessage:   req.ErrorMessage,
		ErrorStack:     req.ErrorStack,
		ErrorComponent: req.Component,
		ErrorContext:   req.ErrorContext,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /api/v1/tickets/:id?email=.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return apperrors.NewValidationError("email required", map[string]any{"field": "email"})
	}
	detail, err := h.service.GetTicketForReporter(c.UserContext(), c.Params("id"), email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": reporterTicketResponse(detail)})
}

// AddMessage POST /api/v1/tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	var req dto.ReporterMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Email == "" {
		return apperrors.NewValidationError("email required", map[string]any{"field": "email"})
	}
	msg, err := h.service.AddReporterMessage(c.UserContext(), c.Params("id"), req.Email, req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketMessageResponse(msg)})
}
