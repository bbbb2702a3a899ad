package domain

import "time"

// ActorType identifies who made a change.
type ActorType string

const (
	ActorTypeUser   ActorType = "usuario"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "sistema"
)

// Fields tracked in ticket history.
const (
	FieldStatus     = "status"
	FieldAssignedTo = "assigned_to"
	FieldPriority   = "prioridade"
)

// NotAssigned is the old value recorded when a ticket is assigned for the first time.
const NotAssigned = "nao_atribuido"

// Actor describes the identity behind a change.
type Actor struct {
	ID   *string
	Name string
	Type ActorType
}

// SystemActor returns the actor used for automated changes.
func SystemActor() Actor {
	return Actor{Name: "sistema", Type: ActorTypeSystem}
}

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	Field         string
	OldValue      *string
	NewValue      *string
	ChangedByID   *string
	ChangedByName string
	ChangedByType ActorType
	CreatedAt     time.Time
}
