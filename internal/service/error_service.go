package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/repository"
	"github.com/triagedesk/triage-service/internal/triage"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

// ErrorService records telemetry events and exposes the error rollups.
type ErrorService struct {
	logs         repository.SystemLogRepository
	aggregations repository.ErrorAggregationRepository
	aggregator   *ErrorAggregator
	tickets      *TicketService
	reporter     SystemReporter
	logger       *zap.Logger
	pages        PageLimits
}

// SystemReporter is the identity stamped on tickets opened from log events.
type SystemReporter struct {
	Email string
	Name  string
}

// ErrorDependencies bundles collaborators for the error service.
type ErrorDependencies struct {
	SystemLogRepo   repository.SystemLogRepository
	AggregationRepo repository.ErrorAggregationRepository
	Aggregator      *ErrorAggregator
	Tickets         *TicketService
	Reporter        SystemReporter
	Logger          *zap.Logger
	Pages           PageLimits
}

// LogEventInput is one telemetry event from an instrumented code path.
type LogEventInput struct {
	Level        domain.LogLevel
	Message      string
	Component    *string
	ErrorMessage *string
	ErrorStack   *string
	RequestID    *string
	SessionID    *string
	Endpoint     *string
	Method       *string
	StatusCode   *int
	DurationMs   *int
	UserID       *string
	IPAddress    *string
	UserAgent    *string
	Context      map[string]any
	ForceTicket  bool
}

// AggregationQuery filters the aggregation listing.
type AggregationQuery struct {
	Resolved *bool
	Limit    int
	Offset   int
}

// LogQuery filters the system log listing.
type LogQuery struct {
	Levels      []domain.LogLevel
	Component   *string
	Fingerprint *string
	Limit       int
	Offset      int
}

// NewErrorService constructs the service.
func NewErrorService(deps ErrorDependencies) *ErrorService {
	reporter := deps.Reporter
	if reporter.Email == "" {
		reporter.Email = "sistema@triage.local"
	}
	if reporter.Name == "" {
		reporter.Name = "Sistema"
	}
	if deps.Aggregator == nil {
		deps.Aggregator = NewErrorAggregator(AggregatorDependencies{
			AggregationRepo: deps.AggregationRepo,
			Logger:          deps.Logger,
		})
	}
	return &ErrorService{
		logs:         deps.SystemLogRepo,
		aggregations: deps.AggregationRepo,
		aggregator:   deps.Aggregator,
		tickets:      deps.Tickets,
		reporter:     reporter,
		logger:       loggerOrNop(deps.Logger),
		pages:        deps.Pages,
	}
}

// LogEvent stores a telemetry event. error and critical events, and forced events,
// feed the aggregation counters; critical and forced events also open or reuse a
// ticket. Only the log write itself can fail the call. The returned id is the ticket
// created or reused, if any.
func (s *ErrorService) LogEvent(ctx context.Context, input LogEventInput) (*string, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, apperrors.NewValidationError("message required", map[string]any{"field": "message"})
	}
	level := input.Level
	if level == "" {
		level = domain.LogLevelInfo
	}
	if !level.Valid() {
		return nil, apperrors.NewValidationError("unknown level", map[string]any{"level": input.Level})
	}

	errorMessage := trimmedOrNil(input.ErrorMessage)
	component := trimmedOrNil(input.Component)
	isError := level == domain.LogLevelError || level == domain.LogLevelCritical
	wantsTicket := level == domain.LogLevelCritical || input.ForceTicket

	var fingerprint *string
	if isError || input.ForceTicket {
		signature := message
		if errorMessage != nil {
			signature = *errorMessage
		}
		fp := triage.Fingerprint(signature, derefOrEmpty(input.ErrorStack), derefOrEmpty(component))
		fingerprint = &fp

		s.aggregator.Record(ctx, Occurrence{
			Fingerprint: fp,
			Message:     signature,
			Stack:       trimmedOrNil(input.ErrorStack),
			Component:   component,
			Endpoint:    trimmedOrNil(input.Endpoint),
			UserID:      trimmedOrNil(input.UserID),
		})
	}

	var ticketID *string
	if wantsTicket && s.tickets != nil {
		ticket, err := s.tickets.report(ctx, s.systemReport(input, message, errorMessage, component), false)
		if err != nil {
			s.logger.Error("ticket from log event failed",
				zap.Stringp("fingerprint", fingerprint),
				zap.Stringp("component", component),
				zap.Error(err),
			)
		} else {
			ticketID = &ticket.ID
		}
	}

	entry := &domain.SystemLogEntry{
		Level:        level,
		Message:      message,
		ErrorMessage: errorMessage,
		ErrorStack:   trimmedOrNil(input.ErrorStack),
		Fingerprint:  fingerprint,
		Component:    component,
		RequestID:    trimmedOrNil(input.RequestID),
		SessionID:    trimmedOrNil(input.SessionID),
		Endpoint:     trimmedOrNil(input.Endpoint),
		Method:       trimmedOrNil(input.Method),
		StatusCode:   input.StatusCode,
		DurationMs:   input.DurationMs,
		UserID:       trimmedOrNil(input.UserID),
		IPAddress:    trimmedOrNil(input.IPAddress),
		UserAgent:    trimmedOrNil(input.UserAgent),
		Context:      input.Context,
		TicketID:     ticketID,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("store system log: %w", err))
	}
	return ticketID, nil
}

func (s *ErrorService) systemReport(input LogEventInput, message string, errorMessage, component *string) ReportInput {
	title := message
	if component != nil {
		title = "[" + *component + "] " + message
	}
	if errorMessage == nil {
		errorMessage = strPtr(message)
	}
	return ReportInput{
		ReporterID:     trimmedOrNil(input.UserID),
		ReporterEmail:  s.reporter.Email,
		ReporterName:   s.reporter.Name,
		Title:          title,
		Description:    message,
		Source:         domain.SourceSystem,
		PageURL:        input.Endpoint,
		UserAgent:      input.UserAgent,
		IPAddress:      input.IPAddress,
		ErrorMessage:   errorMessage,
		ErrorStack:     input.ErrorStack,
		ErrorComponent: component,
		ErrorContext:   input.Context,
		Metadata: map[string]any{
			"level":      string(input.Level),
			"request_id": derefOrEmpty(input.RequestID),
		},
	}
}

// ListAggregations returns aggregation rows, unresolved first then by last occurrence.
func (s *ErrorService) ListAggregations(ctx context.Context, query AggregationQuery) (*Page[domain.ErrorAggregation], error) {
	limit, offset := s.pages.apply(query.Limit, query.Offset)
	items, total, err := s.aggregations.List(ctx, repository.ErrorAggregationFilter{
		Resolved: query.Resolved,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Page[domain.ErrorAggregation]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// GetAggregation returns the counters of one fingerprint.
func (s *ErrorService) GetAggregation(ctx context.Context, fingerprint string) (*domain.ErrorAggregation, error) {
	agg, err := s.aggregations.Get(ctx, fingerprint)
	if err != nil {
		return nil, mapRepoError(err, "error aggregation", fingerprint)
	}
	return agg, nil
}

// ResolveAggregation marks a fingerprint resolved until its next occurrence.
func (s *ErrorService) ResolveAggregation(ctx context.Context, fingerprint string) (*domain.ErrorAggregation, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return nil, apperrors.NewValidationError("fingerprint required", nil)
	}
	agg, err := s.aggregations.MarkResolved(ctx, fingerprint)
	if err != nil {
		return nil, mapRepoError(err, "error aggregation", fingerprint)
	}
	s.logger.Info("error aggregation resolved", zap.String("fingerprint", fingerprint))
	return agg, nil
}

// ListLogs returns system log entries, newest first.
func (s *ErrorService) ListLogs(ctx context.Context, query LogQuery) (*Page[domain.SystemLogEntry], error) {
	for _, level := range query.Levels {
		if !level.Valid() {
			return nil, apperrors.NewValidationError("unknown level", map[string]any{"level": level})
		}
	}
	limit, offset := s.pages.apply(query.Limit, query.Offset)
	items, total, err := s.logs.List(ctx, repository.SystemLogFilter{
		Levels:      query.Levels,
		Component:   query.Component,
		Fingerprint: query.Fingerprint,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Page[domain.SystemLogEntry]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}
