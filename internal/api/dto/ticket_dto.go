package dto

import (
	"time"

	"github.com/triagedesk/triage-service/internal/domain"
)

// CreateTicketRequest is the public report payload.
type CreateTicketRequest struct {
	ReporterID    *string                `json:"reporter_id"`
	ReporterEmail string                 `json:"reporter_email"`
	ReporterName  string                 `json:"reporter_name"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Category      *domain.TicketCategory `json:"category"`
	Priority      *domain.TicketPriority `json:"priority"`
	Source        domain.TicketSource    `json:"source"`
	PageURL       *string                `json:"page_url"`
	Browser       *string                `json:"browser"`
	ErrorMessage  *string                `json:"error_message"`
	ErrorStack    *string                `json:"error_stack"`
	Component     *string                `json:"component"`
	ErrorContext  map[string]any         `json:"error_context"`
	Metadata      map[string]any         `json:"metadata"`
}

// TicketResponse is the full operator view of a ticket.
type TicketResponse struct {
	ID               string                `json:"id"`
	ReporterID       *string               `json:"reporter_id"`
	ReporterEmail    string                `json:"reporter_email"`
	ReporterName     string                `json:"reporter_name"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Category         domain.TicketCategory `json:"category"`
	Priority         domain.TicketPriority `json:"priority"`
	RiskScore        int                   `json:"risk_score"`
	RiskRationale    string                `json:"risk_rationale"`
	Tags             []string              `json:"tags"`
	Source           domain.TicketSource   `json:"source"`
	PageURL          *string               `json:"page_url,omitempty"`
	Browser          *string               `json:"browser,omitempty"`
	UserAgent        *string               `json:"user_agent,omitempty"`
	IPAddress        *string               `json:"ip_address,omitempty"`
	ErrorFingerprint *string               `json:"error_fingerprint,omitempty"`
	ErrorMessage     *string               `json:"error_message,omitempty"`
	ErrorStack       *string               `json:"error_stack,omitempty"`
	ErrorContext     map[string]any        `json:"error_context,omitempty"`
	ErrorCount       int                   `json:"error_count"`
	Metadata         map[string]any        `json:"metadata,omitempty"`
	Status           domain.TicketStatus   `json:"status"`
	AssignedTo       *string               `json:"assigned_to"`
	AssignedAt       *time.Time            `json:"assigned_at"`
	Resolution       *string               `json:"resolution"`
	ResolvedBy       *string               `json:"resolved_by"`
	ResolvedAt       *time.Time            `json:"resolved_at"`
	ClosedAt         *time.Time            `json:"closed_at"`
	FirstResponseAt  *time.Time            `json:"first_response_at"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// ReporterTicketResponse is what a reporter sees of their own ticket.
type ReporterTicketResponse struct {
	ID         string                  `json:"id"`
	Title      string                  `json:"title"`
	Category   domain.TicketCategory   `json:"category"`
	Priority   domain.TicketPriority   `json:"priority"`
	Status     domain.TicketStatus     `json:"status"`
	Resolution *string                 `json:"resolution"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
	Messages   []TicketMessageResponse `json:"messages"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	Ticket   TicketResponse          `json:"ticket"`
	Messages []TicketMessageResponse `json:"messages"`
	History  []TicketHistoryResponse `json:"history"`
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	ID          string                   `json:"id"`
	AuthorType  domain.MessageAuthorType `json:"author_type"`
	AuthorName  string                   `json:"author_name"`
	AuthorEmail *string                  `json:"author_email,omitempty"`
	Body        string                   `json:"body"`
	Internal    bool                     `json:"internal"`
	CreatedAt   time.Time                `json:"created_at"`
}

// TicketHistoryResponse is one audit trail row.
type TicketHistoryResponse struct {
	ID            string           `json:"id"`
	Field         string           `json:"field"`
	OldValue      *string          `json:"old_value"`
	NewValue      *string          `json:"new_value"`
	ChangedByID   *string          `json:"changed_by_id"`
	ChangedByName string           `json:"changed_by_name"`
	ChangedByType domain.ActorType `json:"changed_by_type"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ReporterMessageRequest is a reporter reply.
type ReporterMessageRequest struct {
	Email string `json:"email"`
	Body  string `json:"body"`
}

// AdminMessageRequest is an operator reply or note.
type AdminMessageRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// StatusChangeRequest payload.
type StatusChangeRequest struct {
	Status     domain.TicketStatus `json:"status"`
	Resolution *string             `json:"resolution"`
}

// PriorityChangeRequest payload.
type PriorityChangeRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// PageResponse wraps a listing.
type PageResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
