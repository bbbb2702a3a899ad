package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/events"
	"github.com/triagedesk/triage-service/internal/repository"
	"github.com/triagedesk/triage-service/internal/triage"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

const maxTitleLength = 200

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	history    repository.TicketHistoryRepository
	aggregator *ErrorAggregator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
	pages      PageLimits
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	Aggregator  *ErrorAggregator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       Clock
	Pages       PageLimits
}

// ReportInput describes a ticket submitted by a reporter or generated by the system.
type ReportInput struct {
	ReporterID    *string
	ReporterEmail string
	ReporterName  string

	Title       string
	Description string

	Category *domain.TicketCategory
	Priority *domain.TicketPriority
	Source   domain.TicketSource

	PageURL   *string
	Browser   *string
	UserAgent *string
	IPAddress *string

	ErrorMessage   *string
	ErrorStack     *string
	ErrorComponent *string
	ErrorContext   map[string]any

	Metadata map[string]any
}

// StatusChangeInput describes an operator status change.
type StatusChangeInput struct {
	Status     domain.TicketStatus
	Resolution *string
}

// TicketQuery describes operator listing filters.
type TicketQuery struct {
	Statuses    []domain.TicketStatus
	Categories  []domain.TicketCategory
	Priorities  []domain.TicketPriority
	ReporterID  *string
	AssigneeID  *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketDetail is a ticket with its thread and audit trail.
type TicketDetail struct {
	Ticket   *domain.Ticket
	Messages []domain.TicketMessage
	History  []domain.TicketHistory
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Aggregator == nil {
		deps.Aggregator = NewErrorAggregator(AggregatorDependencies{
			TicketRepo: deps.TicketRepo,
			Dispatcher: deps.Dispatcher,
			Logger:     deps.Logger,
		})
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		history:    deps.HistoryRepo,
		aggregator: deps.Aggregator,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        deps.Clock.orDefault(),
		pages:      deps.Pages,
	}
}

// Report classifies and stores a ticket. Reports carrying an error message are
// fingerprinted and folded into the open ticket for that fingerprint when one exists.
func (s *TicketService) Report(ctx context.Context, input ReportInput) (*domain.Ticket, error) {
	return s.report(ctx, input, true)
}

func (s *TicketService) report(ctx context.Context, input ReportInput, aggregate bool) (*domain.Ticket, error) {
	ticket, err := s.buildTicket(input)
	if err != nil {
		return nil, err
	}

	if ticket.ErrorFingerprint == nil {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return nil, mapRepoError(err, "ticket", "")
		}
		s.publishCreated(ctx, ticket)
		return ticket, nil
	}

	stored, created, err := s.aggregator.OpenOrIncrement(ctx, ticket)
	if err != nil {
		return nil, mapRepoError(err, "ticket", "")
	}
	if aggregate {
		s.aggregator.Record(ctx, Occurrence{
			Fingerprint: *ticket.ErrorFingerprint,
			Message:     *ticket.ErrorMessage,
			Stack:       ticket.ErrorStack,
			Component:   input.ErrorComponent,
			Endpoint:    ticket.PageURL,
			UserID:      ticket.ReporterID,
		})
	}
	if created {
		s.publishCreated(ctx, stored)
	}
	return stored, nil
}

func (s *TicketService) buildTicket(input ReportInput) (*domain.Ticket, error) {
	email := strings.TrimSpace(input.ReporterEmail)
	if email == "" {
		return nil, apperrors.NewValidationError("reporter email required", map[string]any{"field": "reporter_email"})
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("reporter email is malformed", map[string]any{"field": "reporter_email"})
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", map[string]any{"field": "title"})
	}
	source := input.Source
	if source == "" {
		source = domain.SourceUser
	}
	if !source.Valid() {
		return nil, apperrors.NewValidationError("unknown source", map[string]any{"source": source})
	}
	if input.Category != nil && !input.Category.Valid() {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": *input.Category})
	}
	if input.Priority != nil && !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": *input.Priority})
	}

	errorMessage := trimmedOrNil(input.ErrorMessage)
	description := strings.TrimSpace(input.Description)
	classification := triage.Classify(triage.Input{
		Title:        title,
		Description:  description,
		ErrorMessage: derefOrEmpty(errorMessage),
	})

	name := strings.TrimSpace(input.ReporterName)
	if name == "" {
		name = email
	}

	ticket := &domain.Ticket{
		ReporterID:    trimmedOrNil(input.ReporterID),
		ReporterEmail: email,
		ReporterName:  name,
		Title:         truncateRunes(title, maxTitleLength),
		Description:   description,
		Category:      classification.Category,
		Priority:      classification.Priority,
		RiskScore:     classification.RiskScore,
		RiskRationale: classification.Rationale,
		Tags:          classification.Tags,
		Source:        source,
		PageURL:       trimmedOrNil(input.PageURL),
		Browser:       trimmedOrNil(input.Browser),
		UserAgent:     trimmedOrNil(input.UserAgent),
		IPAddress:     trimmedOrNil(input.IPAddress),
		Metadata:      input.Metadata,
		Status:        domain.TicketStatusOpen,
	}
	if input.Category != nil {
		ticket.Category = *input.Category
	}
	if input.Priority != nil {
		ticket.Priority = *input.Priority
	}

	if errorMessage != nil {
		stack := trimmedOrNil(input.ErrorStack)
		fingerprint := triage.Fingerprint(*errorMessage, derefOrEmpty(input.ErrorStack), derefOrEmpty(input.ErrorComponent))
		ticket.ErrorFingerprint = &fingerprint
		ticket.ErrorMessage = errorMessage
		ticket.ErrorStack = stack
		ticket.ErrorContext = input.ErrorContext
		ticket.ErrorCount = 1
	}
	return ticket, nil
}

// GetTicket returns a ticket with every message and its history.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID, true)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	return &TicketDetail{Ticket: ticket, Messages: msgs, History: history}, nil
}

// GetTicketForReporter returns a ticket and its public thread when email matches the
// reporter. A mismatch is reported as not found.
func (s *TicketService) GetTicketForReporter(ctx context.Context, ticketID, email string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	if !sameEmail(ticket.ReporterEmail, email) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID, false)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	return &TicketDetail{Ticket: ticket, Messages: msgs}, nil
}

// AddAdminMessage appends an operator message. The first one stamps the first
// response time and moves an aberto ticket into em_analise.
func (s *TicketService) AddAdminMessage(ctx context.Context, ticketID string, actor domain.Actor, body string, internal bool) (*domain.TicketMessage, *domain.Ticket, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil, apperrors.NewValidationError("body required", map[string]any{"field": "body"})
	}

	var (
		oldStatus     domain.TicketStatus
		firstResponse bool
	)
	ticket, mutation, err := s.modify(ctx, ticketID, func(t *domain.Ticket, now time.Time) (*repository.TicketMutation, error) {
		oldStatus = t.Status
		mutation := &repository.TicketMutation{
			Message: &domain.TicketMessage{
				AuthorType: domain.AuthorTypeAdmin,
				AuthorName: actor.Name,
				Body:       body,
				Internal:   internal,
			},
		}
		if t.FirstResponseAt == nil {
			t.FirstResponseAt = &now
			firstResponse = true
			if t.Status == domain.TicketStatusOpen {
				t.Status = domain.TicketStatusInAnalysis
				mutation.History = append(mutation.History, statusHistory(oldStatus, t.Status, actor))
			}
		}
		return mutation, nil
	})
	if err != nil {
		return nil, nil, mapRepoError(err, "ticket", ticketID)
	}

	s.publishMessage(ctx, ticket, mutation.Message, actor, firstResponse)
	if ticket.Status != oldStatus {
		s.publishStatus(ctx, ticket, oldStatus, actor)
	}
	return mutation.Message, ticket, nil
}

// AddReporterMessage appends a public reply from the ticket's reporter.
func (s *TicketService) AddReporterMessage(ctx context.Context, ticketID, email, body string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("body required", map[string]any{"field": "body"})
	}
	var actor domain.Actor
	ticket, mutation, err := s.modify(ctx, ticketID, func(t *domain.Ticket, now time.Time) (*repository.TicketMutation, error) {
		if !sameEmail(t.ReporterEmail, email) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		if isTerminal(t.Status) {
			return nil, apperrors.NewValidationError("ticket no longer accepts replies", map[string]any{"status": t.Status})
		}
		actor = domain.Actor{ID: t.ReporterID, Name: t.ReporterName, Type: domain.ActorTypeUser}
		reporterEmail := t.ReporterEmail
		return &repository.TicketMutation{
			Message: &domain.TicketMessage{
				AuthorType:  domain.AuthorTypeUser,
				AuthorName:  t.ReporterName,
				AuthorEmail: &reporterEmail,
				Body:        body,
			},
		}, nil
	})
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	s.publishMessage(ctx, ticket, mutation.Message, actor, false)
	return mutation.Message, nil
}

// ChangeStatus moves a ticket through its lifecycle and records the change.
func (s *TicketService) ChangeStatus(ctx context.Context, ticketID string, input StatusChangeInput, actor domain.Actor) (*domain.Ticket, error) {
	if !input.Status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": input.Status})
	}
	resolution := trimmedOrNil(input.Resolution)

	var oldStatus domain.TicketStatus
	ticket, _, err := s.modify(ctx, ticketID, func(t *domain.Ticket, now time.Time) (*repository.TicketMutation, error) {
		oldStatus = t.Status
		if t.Status == input.Status {
			return nil, apperrors.NewValidationError("ticket already has this status", map[string]any{"status": t.Status})
		}
		if !isValidTransition(t.Status, input.Status) {
			return nil, apperrors.NewValidationError("invalid status transition", map[string]any{"from": t.Status, "to": input.Status})
		}
		t.Status = input.Status
		if input.Status.IsFinished() {
			t.ClosedAt = &now
			if resolution != nil && actor.ID != nil {
				resolver := *actor.ID
				t.Resolution = resolution
				t.ResolvedBy = &resolver
				t.ResolvedAt = &now
			}
		} else if oldStatus.IsFinished() {
			t.ClosedAt = nil
		}
		return &repository.TicketMutation{
			History: []domain.TicketHistory{statusHistory(oldStatus, t.Status, actor)},
		}, nil
	})
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	s.publishStatus(ctx, ticket, oldStatus, actor)
	return ticket, nil
}

// Assign hands a ticket to an operator and puts it into em_analise.
func (s *TicketService) Assign(ctx context.Context, ticketID, assigneeID string, actor domain.Actor) (*domain.Ticket, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, apperrors.NewValidationError("assignee_id required", map[string]any{"field": "assignee_id"})
	}

	var (
		oldStatus   domain.TicketStatus
		oldAssignee *string
	)
	ticket, _, err := s.modify(ctx, ticketID, func(t *domain.Ticket, now time.Time) (*repository.TicketMutation, error) {
		if isTerminal(t.Status) {
			return nil, apperrors.NewValidationError("ticket can no longer be assigned", map[string]any{"status": t.Status})
		}
		oldStatus = t.Status
		oldAssignee = t.AssignedTo

		previous := domain.NotAssigned
		if t.AssignedTo != nil {
			previous = *t.AssignedTo
		}
		assignee := assigneeID
		t.AssignedTo = &assignee
		t.AssignedAt = &now

		mutation := &repository.TicketMutation{
			History: []domain.TicketHistory{fieldHistory(domain.FieldAssignedTo, &previous, &assignee, actor)},
		}
		if t.Status != domain.TicketStatusInAnalysis {
			if t.Status.IsFinished() {
				t.ClosedAt = nil
			}
			t.Status = domain.TicketStatusInAnalysis
			mutation.History = append(mutation.History, statusHistory(oldStatus, t.Status, actor))
		}
		return mutation, nil
	})
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}

	publish(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketAssignedPayload{AssigneeID: assigneeID, Previous: oldAssignee},
	})
	if ticket.Status != oldStatus {
		s.publishStatus(ctx, ticket, oldStatus, actor)
	}
	return ticket, nil
}

// ChangePriority overrides the classifier's priority.
func (s *TicketService) ChangePriority(ctx context.Context, ticketID string, priority domain.TicketPriority, actor domain.Actor) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	var oldPriority domain.TicketPriority
	ticket, _, err := s.modify(ctx, ticketID, func(t *domain.Ticket, now time.Time) (*repository.TicketMutation, error) {
		if t.Priority == priority {
			return nil, apperrors.NewValidationError("ticket already has this priority", map[string]any{"priority": priority})
		}
		oldPriority = t.Priority
		t.Priority = priority
		oldValue, newValue := string(oldPriority), string(priority)
		return &repository.TicketMutation{
			History: []domain.TicketHistory{fieldHistory(domain.FieldPriority, &oldValue, &newValue, actor)},
		}, nil
	})
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	publish(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketPriorityChangedPayload{OldPriority: oldPriority, NewPriority: priority},
	})
	return ticket, nil
}

// ListTickets returns a filtered page of tickets, newest first.
func (s *TicketService) ListTickets(ctx context.Context, query TicketQuery) (*Page[domain.Ticket], error) {
	for _, status := range query.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
		}
	}
	for _, category := range query.Categories {
		if !category.Valid() {
			return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": category})
		}
	}
	for _, priority := range query.Priorities {
		if !priority.Valid() {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
		}
	}
	if query.CreatedFrom != nil && query.CreatedTo != nil && query.CreatedTo.Before(*query.CreatedFrom) {
		return nil, apperrors.NewValidationError("created_to precedes created_from", nil)
	}

	limit, offset := s.pages.apply(query.Limit, query.Offset)
	items, total, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:    query.Statuses,
		Categories:  query.Categories,
		Priorities:  query.Priorities,
		ReporterID:  query.ReporterID,
		AssigneeID:  query.AssigneeID,
		SearchTerm:  query.SearchTerm,
		CreatedFrom: query.CreatedFrom,
		CreatedTo:   query.CreatedTo,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Page[domain.Ticket]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// ListHistory returns the audit trail of a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	history, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return history, nil
}

func (s *TicketService) publishCreated(ctx context.Context, ticket *domain.Ticket) {
	actor := domain.Actor{ID: ticket.ReporterID, Name: ticket.ReporterName, Type: domain.ActorTypeUser}
	if ticket.Source == domain.SourceSystem {
		actor = domain.SystemActor()
	}
	publish(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketCreatedPayload{
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			RiskScore:   ticket.RiskScore,
			Source:      ticket.Source,
			Fingerprint: ticket.ErrorFingerprint,
		},
	})
}

func (s *TicketService) publishStatus(ctx context.Context, ticket *domain.Ticket, oldStatus domain.TicketStatus, actor domain.Actor) {
	publish(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status},
	})
}

func (s *TicketService) publishMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, actor domain.Actor, firstResponse bool) {
	publish(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketMessageAddedPayload{
			MessageID:     msg.ID,
			AuthorType:    msg.AuthorType,
			Internal:      msg.Internal,
			FirstResponse: firstResponse,
		},
	})
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen: {
		domain.TicketStatusInAnalysis, domain.TicketStatusAwaitingUser, domain.TicketStatusAwaitingTech,
		domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusInAnalysis: {
		domain.TicketStatusAwaitingUser, domain.TicketStatusAwaitingTech,
		domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusAwaitingUser: {
		domain.TicketStatusInAnalysis, domain.TicketStatusAwaitingTech,
		domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusAwaitingTech: {
		domain.TicketStatusInAnalysis, domain.TicketStatusAwaitingUser,
		domain.TicketStatusResolved, domain.TicketStatusCancelled,
	},
	domain.TicketStatusResolved:  {domain.TicketStatusClosed, domain.TicketStatusInAnalysis, domain.TicketStatusOpen},
	domain.TicketStatusClosed:    {},
	domain.TicketStatusCancelled: {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// modify runs fn against the locked ticket with one timestamp shared by the
// ticket stamps and the message and history rows written alongside them.
func (s *TicketService) modify(ctx context.Context, ticketID string, fn func(t *domain.Ticket, now time.Time) (*repository.TicketMutation, error)) (*domain.Ticket, *repository.TicketMutation, error) {
	return s.tickets.Modify(ctx, ticketID, func(t *domain.Ticket) (*repository.TicketMutation, error) {
		now := s.now()
		mutation, err := fn(t, now)
		if err != nil || mutation == nil {
			return mutation, err
		}
		t.UpdatedAt = now
		if mutation.Message != nil {
			mutation.Message.CreatedAt = now
		}
		for i := range mutation.History {
			mutation.History[i].CreatedAt = now
		}
		return mutation, nil
	})
}

func isTerminal(status domain.TicketStatus) bool {
	return len(allowedTransitions[status]) == 0
}

func statusHistory(oldStatus, newStatus domain.TicketStatus, actor domain.Actor) domain.TicketHistory {
	oldValue, newValue := string(oldStatus), string(newStatus)
	return fieldHistory(domain.FieldStatus, &oldValue, &newValue, actor)
}

func fieldHistory(field string, oldValue, newValue *string, actor domain.Actor) domain.TicketHistory {
	return domain.TicketHistory{
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		ChangedByID:   actor.ID,
		ChangedByName: actor.Name,
		ChangedByType: actor.Type,
	}
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) && strings.TrimSpace(b) != ""
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
