package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagedesk/triage-service/internal/domain"
)

// TicketMessageRepository reads ticket thread messages. Messages are written through
// TicketRepository.Modify together with the ticket they touch.
type TicketMessageRepository interface {
	ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func insertMessage(ctx context.Context, q querier, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, author_type, author_name, author_email, body, internal, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7::timestamptz, NOW()))
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		msg.TicketID,
		msg.AuthorType,
		msg.AuthorName,
		msg.AuthorEmail,
		msg.Body,
		msg.Internal,
		stampOrNil(msg.CreatedAt),
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, author_type, author_name, author_email, body, internal, created_at
        FROM ticket_messages WHERE ticket_id=$1 AND ($2 OR internal = FALSE)
        ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, includeInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketMessage{}
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorType,
			&msg.AuthorName,
			&msg.AuthorEmail,
			&msg.Body,
			&msg.Internal,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
