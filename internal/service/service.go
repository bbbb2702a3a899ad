package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/triagedesk/triage-service/internal/events"
	"github.com/triagedesk/triage-service/internal/repository"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Clock returns the current time.
type Clock func() time.Time

func (c Clock) orDefault() Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Page is one window of a listing together with the size of the whole result.
type Page[T any] struct {
	Items  []T
	Total  int64
	Limit  int
	Offset int
}

// PageLimits bounds listing windows.
type PageLimits struct {
	Default int
	Max     int
}

func (p PageLimits) apply(limit, offset int) (int, int) {
	def, max := p.Default, p.Max
	if def <= 0 {
		def = defaultPageSize
	}
	if max <= 0 {
		max = maxPageSize
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func mapRepoError(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict(resource+" conflicts with an open ticket for the same error", map[string]any{"id": id})
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewInternalError(err)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	_ = dispatcher.Publish(ctx, event)
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func strPtr(s string) *string {
	return &s
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
