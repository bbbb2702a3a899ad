package service

import (
	"context"
	"testing"
	"time"

	"github.com/triagedesk/triage-service/internal/domain"
)

func TestStatsAveragesOnlyCountStampedTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tickets := make([]*domain.Ticket, 0, 10)
	for i := 0; i < 10; i++ {
		tickets = append(tickets, f.report(t, "dúvida sobre o relatório"))
	}

	f.clock.Advance(5 * time.Minute)
	for _, ticket := range tickets[:6] {
		if _, _, err := f.tickets.AddAdminMessage(ctx, ticket.ID, admin("ana"), "olá", false); err != nil {
			t.Fatalf("AddAdminMessage: %v", err)
		}
	}

	f.clock.Advance(2*time.Hour - 5*time.Minute)
	if _, err := f.tickets.ChangeStatus(ctx, tickets[0].ID, StatusChangeInput{Status: domain.TicketStatusResolved}, admin("ana")); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	f.clock.Advance(2 * time.Hour)
	if _, err := f.tickets.ChangeStatus(ctx, tickets[1].ID, StatusChangeInput{Status: domain.TicketStatusResolved}, admin("ana")); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stats, err := f.stats.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 10 || stats.Open != 4 || stats.InAnalysis != 4 || stats.Resolved != 2 {
		t.Errorf("counts = total %d open %d analysis %d resolved %d", stats.Total, stats.Open, stats.InAnalysis, stats.Resolved)
	}
	if stats.AvgFirstResponseMins != 5 || stats.FirstResponseSamples != 6 {
		t.Errorf("first response = %d min over %d", stats.AvgFirstResponseMins, stats.FirstResponseSamples)
	}
	if stats.AvgResolutionHours != 3 || stats.ResolutionSamples != 2 {
		t.Errorf("resolution = %.1f h over %d", stats.AvgResolutionHours, stats.ResolutionSamples)
	}
	if stats.ByCategory[domain.CategoryUser] != 10 {
		t.Errorf("by category = %v", stats.ByCategory)
	}
	if _, ok := stats.ByPriority[domain.TicketPriorityCritical]; !ok {
		t.Errorf("every priority should be reported, got %v", stats.ByPriority)
	}
}

func TestStatsEmptyStore(t *testing.T) {
	f := newFixture(t)
	stats, err := f.stats.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 0 || stats.AvgFirstResponseMins != 0 || stats.AvgResolutionHours != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.ByCategory) != 8 || len(stats.ByPriority) != 4 {
		t.Errorf("maps should be pre-seeded: %v %v", stats.ByCategory, stats.ByPriority)
	}
}

func TestStatsCacheServesUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "dúvida")

	first, err := f.stats.Stats(ctx)
	if err != nil || first.Total != 1 {
		t.Fatalf("first = %+v err=%v", first, err)
	}
	f.report(t, "outra dúvida")

	cached, _ := f.stats.Stats(ctx)
	if cached.Total != 1 || f.cache.hits != 1 {
		t.Fatalf("expected cached rollup, total=%d hits=%d", cached.Total, f.cache.hits)
	}

	if err := f.stats.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	fresh, _ := f.stats.Stats(ctx)
	if fresh.Total != 2 {
		t.Errorf("fresh total = %d, want 2", fresh.Total)
	}
}

func TestStatsWithoutCache(t *testing.T) {
	f := newFixture(t)
	svc := NewStatsService(StatsDependencies{TicketRepo: f.store.Tickets()})
	f.report(t, "dúvida")
	if err := svc.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	stats, err := svc.Stats(context.Background())
	if err != nil || stats.Total != 1 {
		t.Fatalf("stats = %+v err=%v", stats, err)
	}
}
