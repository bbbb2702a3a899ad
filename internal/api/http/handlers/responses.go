package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/triagedesk/triage-service/internal/api/dto"
	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/service"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	return nil
}

func parseTime(field, val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid timestamp", map[string]any{"field": field, "value": val})
	}
	return &t, nil
}

func parseInt(field, val string) (int, error) {
	if val == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid integer", map[string]any{"field": field, "value": val})
	}
	return parsed, nil
}

func parseBool(field, val string) (*bool, error) {
	if val == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid boolean", map[string]any{"field": field, "value": val})
	}
	return &parsed, nil
}

func splitList[T ~string](val string) []T {
	if val == "" {
		return nil
	}
	var out []T
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, T(part))
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

func pageParams(c *fiber.Ctx) (int, int, error) {
	limit, err := parseInt("limit", c.Query("limit"))
	if err != nil {
		return 0, 0, err
	}
	offset, err := parseInt("offset", c.Query("offset"))
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func pageResponse[S, T any](page *service.Page[S], convert func(*S) T) dto.PageResponse[T] {
	items := make([]T, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, convert(&page.Items[i]))
	}
	return dto.PageResponse[T]{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset}
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	return dto.TicketResponse{
		ID:               ticket.ID,
		ReporterID:       ticket.ReporterID,
		ReporterEmail:    ticket.ReporterEmail,
		ReporterName:     ticket.ReporterName,
		Title:            ticket.Title,
		Description:      ticket.Description,
		Category:         ticket.Category,
		Priority:         ticket.Priority,
		RiskScore:        ticket.RiskScore,
		RiskRationale:    ticket.RiskRationale,
		Tags:             tags,
		Source:           ticket.Source,
		PageURL:          ticket.PageURL,
		Browser:          ticket.Browser,
		UserAgent:        ticket.UserAgent,
		IPAddress:        ticket.IPAddress,
		ErrorFingerprint: ticket.ErrorFingerprint,
		ErrorMessage:     ticket.ErrorMessage,
		ErrorStack:       ticket.ErrorStack,
		ErrorContext:     ticket.ErrorContext,
		ErrorCount:       ticket.ErrorCount,
		Metadata:         ticket.Metadata,
		Status:           ticket.Status,
		AssignedTo:       ticket.AssignedTo,
		AssignedAt:       ticket.AssignedAt,
		Resolution:       ticket.Resolution,
		ResolvedBy:       ticket.ResolvedBy,
		ResolvedAt:       ticket.ResolvedAt,
		ClosedAt:         ticket.ClosedAt,
		FirstResponseAt:  ticket.FirstResponseAt,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

func reporterTicketResponse(detail *service.TicketDetail) dto.ReporterTicketResponse {
	ticket := detail.Ticket
	return dto.ReporterTicketResponse{
		ID:         ticket.ID,
		Title:      ticket.Title,
		Category:   ticket.Category,
		Priority:   ticket.Priority,
		Status:     ticket.Status,
		Resolution: ticket.Resolution,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
		Messages:   messageResponses(detail.Messages),
	}
}

func ticketDetailResponse(detail *service.TicketDetail) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		Ticket:   ticketResponse(detail.Ticket),
		Messages: messageResponses(detail.Messages),
		History:  historyResponses(detail.History),
	}
}

func ticketMessageResponse(msg *domain.TicketMessage) dto.TicketMessageResponse {
	return dto.TicketMessageResponse{
		ID:          msg.ID,
		AuthorType:  msg.AuthorType,
		AuthorName:  msg.AuthorName,
		AuthorEmail: msg.AuthorEmail,
		Body:        msg.Body,
		Internal:    msg.Internal,
		CreatedAt:   msg.CreatedAt,
	}
}

func messageResponses(messages []domain.TicketMessage) []dto.TicketMessageResponse {
	resp := make([]dto.TicketMessageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, ticketMessageResponse(&messages[i]))
	}
	return resp
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:            entry.ID,
			Field:         entry.Field,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			ChangedByID:   entry.ChangedByID,
			ChangedByName: entry.ChangedByName,
			ChangedByType: entry.ChangedByType,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}

func aggregationResponse(agg *domain.ErrorAggregation) dto.ErrorAggregationResponse {
	return dto.ErrorAggregationResponse{
		Fingerprint:      agg.Fingerprint,
		SampleMessage:    agg.SampleMessage,
		SampleStack:      agg.SampleStack,
		Component:        agg.Component,
		Endpoint:         agg.Endpoint,
		TotalOccurrences: agg.TotalOccurrences,
		UniqueUsers:      agg.UniqueUsers,
		FirstSeen:        agg.FirstSeen,
		LastSeen:         agg.LastSeen,
		Resolved:         agg.Resolved,
	}
}

func systemLogResponse(entry *domain.SystemLogEntry) dto.SystemLogResponse {
	return dto.SystemLogResponse{
		ID:           entry.ID,
		Level:        entry.Level,
		Message:      entry.Message,
		ErrorMessage: entry.ErrorMessage,
		ErrorStack:   entry.ErrorStack,
		Fingerprint:  entry.Fingerprint,
		Component:    entry.Component,
		RequestID:    entry.RequestID,
		SessionID:    entry.SessionID,
		Endpoint:     entry.Endpoint,
		Method:       entry.Method,
		StatusCode:   entry.StatusCode,
		DurationMs:   entry.DurationMs,
		UserID:       entry.UserID,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Context:      entry.Context,
		TicketID:     entry.TicketID,
		CreatedAt:    entry.CreatedAt,
	}
}

func statsResponse(stats *domain.TicketStats) dto.StatsResponse {
	return dto.StatsResponse{
		Total:                stats.Total,
		Open:                 stats.Open,
		InAnalysis:           stats.InAnalysis,
		Resolved:             stats.Resolved,
		ByPriority:           stats.ByPriority,
		ByCategory:           stats.ByCategory,
		AvgFirstResponseMins: stats.AvgFirstResponseMins,
		AvgResolutionHours:   stats.AvgResolutionHours,
	}
}

func optionalHeader(c *fiber.Ctx, key string) *string {
	if val := strings.TrimSpace(c.Get(key)); val != "" {
		return &val
	}
	return nil
}
