package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagedesk/triage-service/internal/domain"
)

// TicketFilter captures operator search parameters.
type TicketFilter struct {
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

// TicketMutation is persisted in the same transaction as the ticket it belongs to.
type TicketMutation struct {
	Message *domain.TicketMessage
	History []domain.TicketHistory
}

// TicketMutator edits a locked ticket in place and returns the rows to write with it.
// Returning an error aborts the whole change.
type TicketMutator func(ticket *domain.Ticket) (*TicketMutation, error)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// CreateOrIncrement inserts a fingerprinted ticket unless an open ticket already
	// holds the fingerprint, in which case that ticket's error count is bumped.
	CreateOrIncrement(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Modify(ctx context.Context, id string, fn TicketMutator) (*domain.Ticket, *TicketMutation, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int64, error)
	GroupCounts(ctx context.Context) ([]domain.TicketGroupCount, error)
	AverageFirstResponse(ctx context.Context) (domain.DurationAverage, error)
	AverageResolution(ctx context.Context) (domain.DurationAverage, error)
}

const ticketColumns = `id, reporter_id, reporter_email, reporter_name, title, description,
        category, priority, risk_score, risk_rationale, tags,
        source, page_url, browser, user_agent, ip_address,
        error_fingerprint, error_message, error_stack, error_context, error_count, metadata,
        status, assigned_to, assigned_at, resolution, resolved_by, resolved_at, closed_at, first_response_at,
        created_at, updated_at`

const ticketInsertColumns = `reporter_id, reporter_email, reporter_name, title, description,
        category, priority, risk_score, risk_rationale, tags,
        source, page_url, browser, user_agent, ip_address,
        error_fingerprint, error_message, error_stack, error_context, error_count, metadata, status`

const ticketInsertValues = `$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func insertArgs(ticket *domain.Ticket) []any {
	return []any{
		ticket.ReporterID,
		ticket.ReporterEmail,
		ticket.ReporterName,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.RiskScore,
		ticket.RiskRationale,
		ticket.Tags,
		ticket.Source,
		ticket.PageURL,
		ticket.Browser,
		ticket.UserAgent,
		ticket.IPAddress,
		ticket.ErrorFingerprint,
		ticket.ErrorMessage,
		ticket.ErrorStack,
		ticket.ErrorContext,
		ticket.ErrorCount,
		ticket.Metadata,
		ticket.Status,
	}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	query := `INSERT INTO tickets (` + ticketInsertColumns + `) VALUES (` + ticketInsertValues + `)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, insertArgs(ticket)...).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	return mapPgError(err)
}

func (r *ticketRepository) CreateOrIncrement(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	if ticket.ErrorFingerprint == nil {
		if err := r.Create(ctx, ticket); err != nil {
			return nil, false, err
		}
		return ticket, true, nil
	}
	query := `INSERT INTO tickets (` + ticketInsertColumns + `) VALUES (` + ticketInsertValues + `)
        ON CONFLICT (error_fingerprint) WHERE error_fingerprint IS NOT NULL AND status IN ('aberto','em_analise')
        DO UPDATE SET error_count = tickets.error_count + 1, updated_at = NOW()
        RETURNING ` + ticketColumns + `, (xmax = 0) AS inserted`

	var (
		stored   domain.Ticket
		inserted bool
	)
	dest := append(ticketScanTargets(&stored), &inserted)
	if err := r.pool.QueryRow(ctx, query, insertArgs(ticket)...).Scan(dest...); err != nil {
		return nil, false, mapPgError(err)
	}
	return &stored, inserted, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Modify(ctx context.Context, id string, fn TicketMutator) (*domain.Ticket, *TicketMutation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ticket, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, nil, mapPgError(err)
	}

	loadedAt := ticket.UpdatedAt
	mutation, err := fn(ticket)
	if err != nil {
		return nil, nil, err
	}
	// a mutator that stamped updated_at shares that clock with its rows
	var stamp any
	if !ticket.UpdatedAt.Equal(loadedAt) {
		stamp = ticket.UpdatedAt
	}

	const update = `
        UPDATE tickets SET title=$1, description=$2, category=$3, priority=$4, risk_score=$5, risk_rationale=$6,
            tags=$7, status=$8, assigned_to=$9, assigned_at=$10, resolution=$11, resolved_by=$12, resolved_at=$13,
            closed_at=$14, first_response_at=$15, error_count=$16, updated_at=COALESCE($17::timestamptz, NOW())
        WHERE id=$18
        RETURNING updated_at`
	if err := tx.QueryRow(ctx, update,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.RiskScore,
		ticket.RiskRationale,
		ticket.Tags,
		ticket.Status,
		ticket.AssignedTo,
		ticket.AssignedAt,
		ticket.Resolution,
		ticket.ResolvedBy,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.FirstResponseAt,
		ticket.ErrorCount,
		stamp,
		ticket.ID,
	).Scan(&ticket.UpdatedAt); err != nil {
		return nil, nil, mapPgError(err)
	}

	if mutation == nil {
		mutation = &TicketMutation{}
	}
	if mutation.Message != nil {
		mutation.Message.TicketID = ticket.ID
		if err := insertMessage(ctx, tx, mutation.Message); err != nil {
			return nil, nil, mapPgError(err)
		}
	}
	for i := range mutation.History {
		mutation.History[i].TicketID = ticket.ID
		if err := insertHistory(ctx, tx, &mutation.History[i]); err != nil {
			return nil, nil, mapPgError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, mapPgError(err)
	}
	return ticket, mutation, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int64, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ReporterID != nil {
		args = append(args, *filter.ReporterID)
		clauses = append(clauses, fmt.Sprintf("reporter_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	where := strings.Join(clauses, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *ticketRepository) GroupCounts(ctx context.Context) ([]domain.TicketGroupCount, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT status, priority, category, COUNT(*)
        FROM tickets GROUP BY status, priority, category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketGroupCount
	for rows.Next() {
		var group domain.TicketGroupCount
		if err := rows.Scan(&group.Status, &group.Priority, &group.Category, &group.Count); err != nil {
			return nil, err
		}
		result = append(result, group)
	}
	return result, rows.Err()
}

func (r *ticketRepository) AverageFirstResponse(ctx context.Context) (domain.DurationAverage, error) {
	return r.averageSince(ctx, "first_response_at")
}

func (r *ticketRepository) AverageResolution(ctx context.Context) (domain.DurationAverage, error) {
	return r.averageSince(ctx, "closed_at")
}

func (r *ticketRepository) averageSince(ctx context.Context, column string) (domain.DurationAverage, error) {
	query := fmt.Sprintf(`
        SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (%[1]s - created_at))), 0)::float8, COUNT(*)
        FROM tickets WHERE %[1]s IS NOT NULL AND created_at IS NOT NULL`, column)
	var avg domain.DurationAverage
	if err := r.pool.QueryRow(ctx, query).Scan(&avg.Seconds, &avg.Samples); err != nil {
		return domain.DurationAverage{}, err
	}
	return avg, nil
}

func ticketScanTargets(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.ReporterID,
		&ticket.ReporterEmail,
		&ticket.ReporterName,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.RiskScore,
		&ticket.RiskRationale,
		&ticket.Tags,
		&ticket.Source,
		&ticket.PageURL,
		&ticket.Browser,
		&ticket.UserAgent,
		&ticket.IPAddress,
		&ticket.ErrorFingerprint,
		&ticket.ErrorMessage,
		&ticket.ErrorStack,
		&ticket.ErrorContext,
		&ticket.ErrorCount,
		&ticket.Metadata,
		&ticket.Status,
		&ticket.AssignedTo,
		&ticket.AssignedAt,
		&ticket.Resolution,
		&ticket.ResolvedBy,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.FirstResponseAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	}
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(ticketScanTargets(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
