package worker

import (
	"context"
	"testing"

	"github.com/triagedesk/triage-service/internal/events"
)

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestStatsInvalidatorReactsToTicketEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	inv := &countingInvalidator{}
	NewStatsInvalidator(dispatcher, inv, nil).Start()

	ctx := context.Background()
	for _, eventType := range events.TicketEventTypes {
		_ = dispatcher.Publish(ctx, events.Event{Type: eventType, TicketID: "t-1"})
	}
	_ = dispatcher.Publish(ctx, events.Event{
		Type:    events.EventErrorRecorded,
		Payload: events.ErrorRecordedPayload{Fingerprint: "abcd1234", TotalOccurrences: 3},
	})

	if inv.calls != len(events.TicketEventTypes) {
		t.Fatalf("invalidations = %d, want %d", inv.calls, len(events.TicketEventTypes))
	}
}

func TestStatsInvalidatorWithoutCacheIsInert(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewStatsInvalidator(dispatcher, nil, nil).Start()
	if err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
