package repository

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record conflicts with existing data")
)

const uniqueViolation = "23505"

// A malformed uuid in a lookup can never match a row.
const invalidTextRepresentation = "22P02"

type rowScanner interface {
	Scan(dest ...any) error
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return ErrConflict
		case invalidTextRepresentation:
			return ErrNotFound
		}
	}
	return err
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// stampOrNil lets a zero time fall back to the column default.
func stampOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
