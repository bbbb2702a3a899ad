package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/events"
	"github.com/triagedesk/triage-service/internal/repository"
	"github.com/triagedesk/triage-service/internal/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store      *memory.Store
	clock      *testClock
	dispatcher events.Dispatcher
	tickets    *TicketService
	errors     *ErrorService
	stats      *StatsService
	cache      *mapCache
	users      *setCounter
}

type fixtureOptions struct {
	ticketRepo      repository.TicketRepository
	aggregationRepo repository.ErrorAggregationRepository
	systemLogRepo   repository.SystemLogRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, fixtureOptions{})
}

func newFixtureWith(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	store.SetClock(clock.Now)

	ticketRepo := opts.ticketRepo
	if ticketRepo == nil {
		ticketRepo = store.Tickets()
	}
	aggregationRepo := opts.aggregationRepo
	if aggregationRepo == nil {
		aggregationRepo = store.Aggregations()
	}
	systemLogRepo := opts.systemLogRepo
	if systemLogRepo == nil {
		systemLogRepo = store.SystemLogs()
	}

	dispatcher := events.NewInMemoryDispatcher(nil)
	users := &setCounter{seen: map[string]map[string]struct{}{}}
	aggregator := NewErrorAggregator(AggregatorDependencies{
		TicketRepo:      ticketRepo,
		AggregationRepo: aggregationRepo,
		UniqueUsers:     users,
		Dispatcher:      dispatcher,
	})
	tickets := NewTicketService(TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: store.Messages(),
		HistoryRepo: store.History(),
		Aggregator:  aggregator,
		Dispatcher:  dispatcher,
		Clock:       clock.Now,
		Pages:       PageLimits{Default: 20, Max: 50},
	})
	errs := NewErrorService(ErrorDependencies{
		SystemLogRepo:   systemLogRepo,
		AggregationRepo: aggregationRepo,
		Aggregator:      aggregator,
		Tickets:         tickets,
		Reporter:        SystemReporter{Email: "sistema@triage.local", Name: "Sistema"},
	})
	cache := &mapCache{values: map[string][]byte{}}
	stats := NewStatsService(StatsDependencies{
		TicketRepo: ticketRepo,
		Cache:      cache,
		CacheTTL:   time.Minute,
	})

	return &fixture{
		store:      store,
		clock:      clock,
		dispatcher: dispatcher,
		tickets:    tickets,
		errors:     errs,
		stats:      stats,
		cache:      cache,
		users:      users,
	}
}

func (f *fixture) report(t *testing.T, title string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.Report(context.Background(), ReportInput{
		ReporterEmail: "ana@example.com",
		ReporterName:  "Ana",
		Title:         title,
	})
	if err != nil {
		t.Fatalf("Report(%q): %v", title, err)
	}
	return ticket
}

func admin(name string) domain.Actor {
	id := "op-" + name
	return domain.Actor{ID: &id, Name: name, Type: domain.ActorTypeAdmin}
}

type mapCache struct {
	mu     sync.Mutex
	values map[string][]byte
	hits   int
}

func (c *mapCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

type setCounter struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func (c *setCounter) AddUniqueUser(_ context.Context, fingerprint, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[fingerprint] == nil {
		c.seen[fingerprint] = map[string]struct{}{}
	}
	c.seen[fingerprint][userID] = struct{}{}
	return int64(len(c.seen[fingerprint])), nil
}
