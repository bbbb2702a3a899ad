package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/events"
	"github.com/triagedesk/triage-service/internal/repository"
)

// UniqueUserCounter estimates how many distinct users hit a fingerprint.
type UniqueUserCounter interface {
	AddUniqueUser(ctx context.Context, fingerprint, userID string) (int64, error)
}

// Occurrence is one observation of a fingerprinted error.
type Occurrence struct {
	Fingerprint string
	Message     string
	Stack       *string
	Component   *string
	Endpoint    *string
	UserID      *string
}

// ErrorAggregator folds error occurrences into tickets and per-fingerprint counters.
type ErrorAggregator struct {
	tickets      repository.TicketRepository
	aggregations repository.ErrorAggregationRepository
	users        UniqueUserCounter
	dispatcher   events.Dispatcher
	logger       *zap.Logger
}

// AggregatorDependencies bundles collaborators for the aggregator.
type AggregatorDependencies struct {
	TicketRepo      repository.TicketRepository
	AggregationRepo repository.ErrorAggregationRepository
	UniqueUsers     UniqueUserCounter
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
}

// NewErrorAggregator constructs the aggregator.
func NewErrorAggregator(deps AggregatorDependencies) *ErrorAggregator {
	return &ErrorAggregator{
		tickets:      deps.TicketRepo,
		aggregations: deps.AggregationRepo,
		users:        deps.UniqueUsers,
		dispatcher:   deps.Dispatcher,
		logger:       loggerOrNop(deps.Logger),
	}
}

// OpenOrIncrement stores a fingerprinted ticket, or bumps the error count of the open
// ticket already holding the fingerprint. The boolean reports whether a new ticket
// was created.
func (a *ErrorAggregator) OpenOrIncrement(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	stored, created, err := a.tickets.CreateOrIncrement(ctx, ticket)
	if err != nil {
		return nil, false, err
	}
	if !created {
		a.logger.Info("error folded into open ticket",
			zap.String("ticket_id", stored.ID),
			zap.Stringp("fingerprint", stored.ErrorFingerprint),
			zap.Int("error_count", stored.ErrorCount),
		)
	}
	return stored, created, nil
}

// Record upserts the aggregation row for an occurrence. Failures are logged and
// never returned.
func (a *ErrorAggregator) Record(ctx context.Context, occ Occurrence) {
	if a.aggregations == nil || occ.Fingerprint == "" {
		return
	}
	agg, err := a.aggregations.Record(ctx, domain.ErrorAggregation{
		Fingerprint:   occ.Fingerprint,
		SampleMessage: occ.Message,
		SampleStack:   occ.Stack,
		Component:     occ.Component,
		Endpoint:      occ.Endpoint,
	})
	if err != nil {
		a.logger.Error("error aggregation upsert failed",
			zap.String("fingerprint", occ.Fingerprint),
			zap.Stringp("component", occ.Component),
			zap.Error(err),
		)
		return
	}

	if occ.UserID != nil && a.users != nil {
		a.countUser(ctx, occ.Fingerprint, *occ.UserID)
	}

	publish(ctx, a.dispatcher, events.Event{
		Type:  events.EventErrorRecorded,
		Actor: events.ActorFrom(domain.SystemActor()),
		Payload: events.ErrorRecordedPayload{
			Fingerprint:      agg.Fingerprint,
			Component:        agg.Component,
			TotalOccurrences: agg.TotalOccurrences,
		},
	})
}

func (a *ErrorAggregator) countUser(ctx context.Context, fingerprint, userID string) {
	count, err := a.users.AddUniqueUser(ctx, fingerprint, userID)
	if err != nil {
		a.logger.Warn("unique user counter unavailable", zap.String("fingerprint", fingerprint), zap.Error(err))
		return
	}
	if err := a.aggregations.SetUniqueUsers(ctx, fingerprint, count); err != nil {
		a.logger.Warn("unique user mirror failed", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
}
