package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagedesk/triage-service/internal/domain"
)

// ErrorAggregationFilter selects aggregation rows.
type ErrorAggregationFilter struct {
	Resolved *bool
	Limit    int
	Offset   int
}

// ErrorAggregationRepository keeps one counter row per fingerprint.
type ErrorAggregationRepository interface {
	// Record inserts the first occurrence or bumps the counter of an existing row,
	// always leaving it unresolved.
	Record(ctx context.Context, sample domain.ErrorAggregation) (*domain.ErrorAggregation, error)
	Get(ctx context.Context, fingerprint string) (*domain.ErrorAggregation, error)
	List(ctx context.Context, filter ErrorAggregationFilter) ([]domain.ErrorAggregation, int64, error)
	MarkResolved(ctx context.Context, fingerprint string) (*domain.ErrorAggregation, error)
	SetUniqueUsers(ctx context.Context, fingerprint string, count int64) error
}

const aggregationColumns = `fingerprint, sample_message, sample_stack, component, endpoint,
        total_occurrences, unique_users, first_seen, last_seen, resolved`

type errorAggregationRepository struct {
	pool *pgxpool.Pool
}

// NewErrorAggregationRepository builds repository.
func NewErrorAggregationRepository(pool *pgxpool.Pool) ErrorAggregationRepository {
	return &errorAggregationRepository{pool: pool}
}

func (r *errorAggregationRepository) Record(ctx context.Context, sample domain.ErrorAggregation) (*domain.ErrorAggregation, error) {
	query := `
        INSERT INTO error_aggregations (fingerprint, sample_message, sample_stack, component, endpoint)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (fingerprint) DO UPDATE SET
            total_occurrences = error_aggregations.total_occurrences + 1,
            last_seen = NOW(),
            resolved = FALSE
        RETURNING ` + aggregationColumns
	agg, err := scanAggregation(r.pool.QueryRow(ctx, query,
		sample.Fingerprint,
		sample.SampleMessage,
		sample.SampleStack,
		sample.Component,
		sample.Endpoint,
	))
	if err != nil {
		return nil, mapPgError(err)
	}
	return agg, nil
}

func (r *errorAggregationRepository) Get(ctx context.Context, fingerprint string) (*domain.ErrorAggregation, error) {
	agg, err := scanAggregation(r.pool.QueryRow(ctx,
		`SELECT `+aggregationColumns+` FROM error_aggregations WHERE fingerprint=$1`, fingerprint))
	if err != nil {
		return nil, mapPgError(err)
	}
	return agg, nil
}

func (r *errorAggregationRepository) List(ctx context.Context, filter ErrorAggregationFilter) ([]domain.ErrorAggregation, int64, error) {
	where := "1=1"
	args := []any{}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		where = "resolved=$1"
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM error_aggregations WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM error_aggregations WHERE %s ORDER BY resolved ASC, last_seen DESC LIMIT $%d OFFSET $%d`,
		aggregationColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []domain.ErrorAggregation{}
	for rows.Next() {
		agg, err := scanAggregation(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *agg)
	}
	return result, total, rows.Err()
}

func (r *errorAggregationRepository) MarkResolved(ctx context.Context, fingerprint string) (*domain.ErrorAggregation, error) {
	agg, err := scanAggregation(r.pool.QueryRow(ctx,
		`UPDATE error_aggregations SET resolved = TRUE WHERE fingerprint=$1 RETURNING `+aggregationColumns, fingerprint))
	if err != nil {
		return nil, mapPgError(err)
	}
	return agg, nil
}

func (r *errorAggregationRepository) SetUniqueUsers(ctx context.Context, fingerprint string, count int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE error_aggregations SET unique_users=$1 WHERE fingerprint=$2`, count, fingerprint)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAggregation(row rowScanner) (*domain.ErrorAggregation, error) {
	var agg domain.ErrorAggregation
	if err := row.Scan(
		&agg.Fingerprint,
		&agg.SampleMessage,
		&agg.SampleStack,
		&agg.Component,
		&agg.Endpoint,
		&agg.TotalOccurrences,
		&agg.UniqueUsers,
		&agg.FirstSeen,
		&agg.LastSeen,
		&agg.Resolved,
	); err != nil {
		return nil, err
	}
	return &agg, nil
}
