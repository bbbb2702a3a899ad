package domain

import "time"

// MessageAuthorType indicates who authored a message.
type MessageAuthorType string

const (
	AuthorTypeUser  MessageAuthorType = "usuario"
	AuthorTypeAdmin MessageAuthorType = "admin"
)

// Valid reports whether t is a known author type.
func (t MessageAuthorType) Valid() bool {
	return t == AuthorTypeUser || t == AuthorTypeAdmin
}

// TicketMessage captures communications in a ticket thread.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorType  MessageAuthorType
	AuthorName  string
	AuthorEmail *string
	Body        string
	Internal    bool
	CreatedAt   time.Time
}
