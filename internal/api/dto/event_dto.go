package dto

import (
	"time"

	"github.com/triagedesk/triage-service/internal/domain"
)

// LogEventRequest is a telemetry event sent by an instrumented component.
type LogEventRequest struct {
	Level        domain.LogLevel `json:"level"`
	Message      string          `json:"message"`
	Component    *string         `json:"component"`
	ErrorMessage *string         `json:"error_message"`
	ErrorStack   *string         `json:"error_stack"`
	RequestID    *string         `json:"request_id"`
	SessionID    *string         `json:"session_id"`
	Endpoint     *string         `json:"endpoint"`
	Method       *string         `json:"method"`
	StatusCode   *int            `json:"status_code"`
	DurationMs   *int            `json:"duration_ms"`
	UserID       *string         `json:"user_id"`
	Context      map[string]any  `json:"context"`
	CreateTicket bool            `json:"create_ticket"`
}

// LogEventResponse reports the ticket opened or reused for the event.
type LogEventResponse struct {
	TicketID *string `json:"ticket_id"`
}

// ErrorAggregationResponse is the counter row of one fingerprint.
type ErrorAggregationResponse struct {
	Fingerprint      string    `json:"fingerprint"`
	SampleMessage    string    `json:"sample_message"`
	SampleStack      *string   `json:"sample_stack,omitempty"`
	Component        *string   `json:"component,omitempty"`
	Endpoint         *string   `json:"endpoint,omitempty"`
	TotalOccurrences int64     `json:"total_occurrences"`
	UniqueUsers      int64     `json:"unique_users"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Resolved         bool      `json:"resolved"`
}

// SystemLogResponse is one stored telemetry event.
type SystemLogResponse struct {
	ID           string          `json:"id"`
	Level        domain.LogLevel `json:"level"`
	Message      string          `json:"message"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ErrorStack   *string         `json:"error_stack,omitempty"`
	Fingerprint  *string         `json:"fingerprint,omitempty"`
	Component    *string         `json:"component,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	SessionID    *string         `json:"session_id,omitempty"`
	Endpoint     *string         `json:"endpoint,omitempty"`
	Method       *string         `json:"method,omitempty"`
	StatusCode   *int            `json:"status_code,omitempty"`
	DurationMs   *int            `json:"duration_ms,omitempty"`
	UserID       *string         `json:"user_id,omitempty"`
	IPAddress    *string         `json:"ip_address,omitempty"`
	UserAgent    *string         `json:"user_agent,omitempty"`
	Context      map[string]any  `json:"context,omitempty"`
	TicketID     *string         `json:"ticket_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
