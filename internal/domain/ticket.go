package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "aberto"
	TicketStatusInAnalysis   TicketStatus = "em_analise"
	TicketStatusAwaitingUser TicketStatus = "aguardando_usuario"
	TicketStatusAwaitingTech TicketStatus = "aguardando_tecnico"
	TicketStatusResolved     TicketStatus = "resolvido"
	TicketStatusClosed       TicketStatus = "fechado"
	TicketStatusCancelled    TicketStatus = "cancelado"
)

// OpenStatuses are the states in which a ticket absorbs recurrences of its fingerprint.
var OpenStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInAnalysis}

// IsOpen reports whether recurrences of the ticket's fingerprint are folded into it.
func (s TicketStatus) IsOpen() bool {
	return s == TicketStatusOpen || s == TicketStatusInAnalysis
}

// IsFinished reports whether the status stamps closedAt.
func (s TicketStatus) IsFinished() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInAnalysis, TicketStatusAwaitingUser, TicketStatusAwaitingTech,
		TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

// TicketPriority enumerates operator urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "baixa"
	TicketPriorityMedium   TicketPriority = "media"
	TicketPriorityHigh     TicketPriority = "alta"
	TicketPriorityCritical TicketPriority = "critica"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// TicketCategory enumerates classifier output buckets.
type TicketCategory string

const (
	CategoryUser        TicketCategory = "usuario"
	CategorySystemic    TicketCategory = "sistemico"
	CategoryBilling     TicketCategory = "faturamento"
	CategoryPerformance TicketCategory = "performance"
	CategorySecurity    TicketCategory = "seguranca"
	CategoryIntegration TicketCategory = "integracao"
	CategorySuggestion  TicketCategory = "sugestao"
	CategoryOther       TicketCategory = "outro"
)

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	switch c {
	case CategoryUser, CategorySystemic, CategoryBilling, CategoryPerformance,
		CategorySecurity, CategoryIntegration, CategorySuggestion, CategoryOther:
		return true
	}
	return false
}

// TicketSource identifies the channel a ticket came in through.
type TicketSource string

const (
	SourceUser          TicketSource = "usuario"
	SourceSystem        TicketSource = "sistema"
	SourceAdmin         TicketSource = "admin"
	SourceErrorPage     TicketSource = "pagina_erro"
	SourceInvoicePage   TicketSource = "pagina_fatura"
	SourceSupportWidget TicketSource = "widget_suporte"
)

// Valid reports whether s is a known source channel.
func (s TicketSource) Valid() bool {
	switch s {
	case SourceUser, SourceSystem, SourceAdmin, SourceErrorPage, SourceInvoicePage, SourceSupportWidget:
		return true
	}
	return false
}

// MaxTags bounds the tag set carried by a ticket.
const MaxTags = 10

// Ticket is the aggregate for classified support requests and system errors.
type Ticket struct {
	ID string

	ReporterID    *string
	ReporterEmail string
	ReporterName  string

	Title       string
	Description string

	Category      TicketCategory
	Priority      TicketPriority
	RiskScore     int
	RiskRationale string
	Tags          []string

	Source    TicketSource
	PageURL   *string
	Browser   *string
	UserAgent *string
	IPAddress *string

	ErrorFingerprint *string
	ErrorMessage     *string
	ErrorStack       *string
	ErrorContext     map[string]any
	ErrorCount       int

	Metadata map[string]any

	Status          TicketStatus
	AssignedTo      *string
	AssignedAt      *time.Time
	Resolution      *string
	ResolvedBy      *string
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	FirstResponseAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
