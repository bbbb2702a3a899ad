package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagedesk/triage-service/internal/domain"
)

// SystemLogFilter selects log entries.
type SystemLogFilter struct {
	Levels      []domain.LogLevel
	Component   *string
	Fingerprint *string
	Limit       int
	Offset      int
}

// SystemLogRepository is an insert-only store of telemetry events.
type SystemLogRepository interface {
	Create(ctx context.Context, entry *domain.SystemLogEntry) error
	List(ctx context.Context, filter SystemLogFilter) ([]domain.SystemLogEntry, int64, error)
}

const systemLogColumns = `id, level, message, error_message, error_stack, fingerprint, component,
        request_id, session_id, endpoint, method, status_code, duration_ms,
        user_id, ip_address, user_agent, context, ticket_id, created_at`

type systemLogRepository struct {
	pool *pgxpool.Pool
}

// NewSystemLogRepository builds repository.
func NewSystemLogRepository(pool *pgxpool.Pool) SystemLogRepository {
	return &systemLogRepository{pool: pool}
}

func (r *systemLogRepository) Create(ctx context.Context, entry *domain.SystemLogEntry) error {
	const query = `
        INSERT INTO system_logs (level, message, error_message, error_stack, fingerprint, component,
            request_id, session_id, endpoint, method, status_code, duration_ms,
            user_id, ip_address, user_agent, context, ticket_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		entry.Level,
		entry.Message,
		entry.ErrorMessage,
		entry.ErrorStack,
		entry.Fingerprint,
		entry.Component,
		entry.RequestID,
		entry.SessionID,
		entry.Endpoint,
		entry.Method,
		entry.StatusCode,
		entry.DurationMs,
		entry.UserID,
		entry.IPAddress,
		entry.UserAgent,
		entry.Context,
		entry.TicketID,
	).Scan(&entry.ID, &entry.CreatedAt)
	return mapPgError(err)
}

func (r *systemLogRepository) List(ctx context.Context, filter SystemLogFilter) ([]domain.SystemLogEntry, int64, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if len(filter.Levels) > 0 {
		placeholders := make([]string, len(filter.Levels))
		for i, level := range filter.Levels {
			args = append(args, level)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("level IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Component != nil {
		args = append(args, *filter.Component)
		clauses = append(clauses, fmt.Sprintf("component=$%d", len(args)))
	}
	if filter.Fingerprint != nil {
		args = append(args, *filter.Fingerprint)
		clauses = append(clauses, fmt.Sprintf("fingerprint=$%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM system_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM system_logs WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		systemLogColumns, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []domain.SystemLogEntry{}
	for rows.Next() {
		var entry domain.SystemLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Level,
			&entry.Message,
			&entry.ErrorMessage,
			&entry.ErrorStack,
			&entry.Fingerprint,
			&entry.Component,
			&entry.RequestID,
			&entry.SessionID,
			&entry.Endpoint,
			&entry.Method,
			&entry.StatusCode,
			&entry.DurationMs,
			&entry.UserID,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.Context,
			&entry.TicketID,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, entry)
	}
	return result, total, rows.Err()
}
