package events

import (
	"time"

	"github.com/triagedesk/triage-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventErrorRecorded         EventType = "error_recorded"
)

// TicketEventTypes lists every event that changes ticket rollups.
var TicketEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketMessageAdded,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   *string          `json:"id,omitempty"`
	Name string           `json:"name"`
}

// ActorFrom converts a domain actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{Type: a.Type, ID: a.ID, Name: a.Name}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	RiskScore   int                   `json:"risk_score"`
	Source      domain.TicketSource   `json:"source"`
	Fingerprint *string               `json:"fingerprint,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID string  `json:"assignee_id"`
	Previous   *string `json:"previous,omitempty"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID     string                   `json:"message_id"`
	AuthorType    domain.MessageAuthorType `json:"author_type"`
	Internal      bool                     `json:"internal"`
	FirstResponse bool                     `json:"first_response"`
}

// ErrorRecordedPayload payload.
type ErrorRecordedPayload struct {
	Fingerprint      string  `json:"fingerprint"`
	Component        *string `json:"component,omitempty"`
	TotalOccurrences int64   `json:"total_occurrences"`
}
