package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagedesk/triage-service/internal/domain"
)

// TicketHistoryRepository reads audit entries. Entries are only ever inserted, inside
// the transaction of the change they describe.
type TicketHistoryRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func insertHistory(ctx context.Context, q querier, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, field, old_value, new_value, changed_by_id, changed_by_name, changed_by_type, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8::timestamptz, NOW()))
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		history.TicketID,
		history.Field,
		history.OldValue,
		history.NewValue,
		history.ChangedByID,
		history.ChangedByName,
		history.ChangedByType,
		stampOrNil(history.CreatedAt),
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, field, old_value, new_value, changed_by_id, changed_by_name, changed_by_type, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketHistory{}
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.Field,
			&history.OldValue,
			&history.NewValue,
			&history.ChangedByID,
			&history.ChangedByName,
			&history.ChangedByType,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
