package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/triagedesk/triage-service/internal/events"
)

// Invalidator drops a cached rollup.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// StatsInvalidator evicts the cached ticket rollup whenever a ticket changes.
type StatsInvalidator struct {
	dispatcher  events.Dispatcher
	invalidator Invalidator
	logger      *zap.Logger
}

// NewStatsInvalidator creates the worker.
func NewStatsInvalidator(dispatcher events.Dispatcher, invalidator Invalidator, logger *zap.Logger) *StatsInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsInvalidator{dispatcher: dispatcher, invalidator: invalidator, logger: logger}
}

// Start subscribes to ticket events.
func (w *StatsInvalidator) Start() {
	if w == nil || w.dispatcher == nil || w.invalidator == nil {
		return
	}
	for _, eventType := range events.TicketEventTypes {
		w.dispatcher.Subscribe(eventType, w.handle)
	}
	w.dispatcher.Subscribe(events.EventErrorRecorded, w.logErrorRecorded)
}

func (w *StatsInvalidator) handle(ctx context.Context, event events.Event) error {
	w.logger.Debug("ticket event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor", event.Actor.Name),
	)
	return w.invalidator.Invalidate(ctx)
}

func (w *StatsInvalidator) logErrorRecorded(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ErrorRecordedPayload)
	if !ok {
		return nil
	}
	w.logger.Debug("error recorded",
		zap.String("fingerprint", payload.Fingerprint),
		zap.Int64("total_occurrences", payload.TotalOccurrences),
	)
	return nil
}
