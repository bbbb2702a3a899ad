package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/api/dto"
	"github.com/triagedesk/triage-service/internal/auth"
	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/service"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

// AdminTicketsHandler exposes operator ticket endpoints.
type AdminTicketsHandler struct {
	service *service.TicketService
}

// NewAdminTicketsHandler constructs handler.
func NewAdminTicketsHandler(ticketService *service.TicketService) *AdminTicketsHandler {
	return &AdminTicketsHandler{service: ticketService}
}

// ListTickets GET /api/v1/admin/tickets.
func (h *AdminTicketsHandler) ListTickets(c *fiber.Ctx) error {
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListTickets(c.UserContext(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pageResponse(page, ticketResponse)})
}

// GetTicket GET /api/v1/admin/tickets/:id.
func (h *AdminTicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetailResponse(detail)})
}

// AddMessage POST /api/v1/admin/tickets/:id/messages.
func (h *AdminTicketsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := operator(c)
	if err != nil {
		return err
	}
	var req dto.AdminMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	msg, ticket, err := h.service.AddAdminMessage(c.UserContext(), c.Params("id"), actor, req.Body, req.Internal)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"message": ticketMessageResponse(msg),
		"ticket":  ticketResponse(ticket),
	}})
}

// ChangeStatus PATCH /api/v1/admin/tickets/:id/status.
func (h *AdminTicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := operator(c)
	if err != nil {
		return err
	}
	var req dto.StatusChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.ChangeStatus(c.UserContext(), c.Params("id"), service.StatusChangeInput{
		Status:     req.Status,
		Resolution: req.Resolution,
	}, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ChangePriority PATCH /api/v1/admin/tickets/:id/priority.
func (h *AdminTicketsHandler) ChangePriority(c *fiber.Ctx) error {
	actor, err := operator(c)
	if err != nil {
		return err
	}
	var req dto.PriorityChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.ChangePriority(c.UserContext(), c.Params("id"), req.Priority, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Assign POST /api/v1/admin/tickets/:id/assign.
func (h *AdminTicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := operator(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Assign(c.UserContext(), c.Params("id"), req.AssigneeID, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListHistory GET /api/v1/admin/tickets/:id/history.
func (h *AdminTicketsHandler) ListHistory(c *fiber.Ctx) error {
	history, err := h.service.ListHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(history)})
}

func operator(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("operator required")
	}
	return actor, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketQuery, error) {
	query := service.TicketQuery{
		Statuses:   splitList[domain.TicketStatus](c.Query("status")),
		Categories: splitList[domain.TicketCategory](c.Query("category")),
		Priorities: splitList[domain.TicketPriority](c.Query("priority")),
		ReporterID: optionalQuery(c, "reporter_id"),
		AssigneeID: optionalQuery(c, "assignee_id"),
		SearchTerm: optionalQuery(c, "search"),
	}
	var err error
	if query.CreatedFrom, err = parseTime("created_from", c.Query("created_from")); err != nil {
		return query, err
	}
	if query.CreatedTo, err = parseTime("created_to", c.Query("created_to")); err != nil {
		return query, err
	}
	if query.Limit, query.Offset, err = pageParams(c); err != nil {
		return query, err
	}
	return query, nil
}
