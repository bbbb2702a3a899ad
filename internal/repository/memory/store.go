// Package memory provides process-local implementations of the repository
// interfaces. It backs the service when no Postgres DSN is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/repository"
)

// Store holds every table behind one lock so multi-table changes stay atomic.
type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	tickets      map[string]*domain.Ticket
	messages     map[string][]domain.TicketMessage
	history      map[string][]domain.TicketHistory
	aggregations map[string]*domain.ErrorAggregation
	logs         []domain.SystemLogEntry
}

// NewStore returns an empty store using the wall clock.
func NewStore() *Store {
	return &Store{
		now:          time.Now,
		tickets:      make(map[string]*domain.Ticket),
		messages:     make(map[string][]domain.TicketMessage),
		history:      make(map[string][]domain.TicketHistory),
		aggregations: make(map[string]*domain.ErrorAggregation),
	}
}

// SetClock replaces the time source used for generated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Tickets exposes the ticket table.
func (s *Store) Tickets() repository.TicketRepository { return &ticketTable{s} }

// Messages exposes the message table.
func (s *Store) Messages() repository.TicketMessageRepository { return &messageTable{s} }

// History exposes the history table.
func (s *Store) History() repository.TicketHistoryRepository { return &historyTable{s} }

// Aggregations exposes the error aggregation table.
func (s *Store) Aggregations() repository.ErrorAggregationRepository { return &aggregationTable{s} }

// SystemLogs exposes the system log table.
func (s *Store) SystemLogs() repository.SystemLogRepository { return &systemLogTable{s} }

func (s *Store) openTicketFor(fingerprint string, exceptID string) *domain.Ticket {
	for _, t := range s.tickets {
		if t.ID == exceptID || t.ErrorFingerprint == nil || *t.ErrorFingerprint != fingerprint {
			continue
		}
		if t.Status.IsOpen() {
			return t
		}
	}
	return nil
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	if t.Tags != nil {
		c.Tags = append([]string{}, t.Tags...)
	}
	return &c
}

// detachTicket copies string fields so stored rows never share memory with
// caller-owned buffers.
func detachTicket(t *domain.Ticket) *domain.Ticket {
	t.ReporterEmail = strings.Clone(t.ReporterEmail)
	t.ReporterName = strings.Clone(t.ReporterName)
	t.Title = strings.Clone(t.Title)
	t.Description = strings.Clone(t.Description)
	for i, tag := range t.Tags {
		t.Tags[i] = strings.Clone(tag)
	}
	for _, field := range []**string{
		&t.ReporterID, &t.PageURL, &t.Browser, &t.UserAgent, &t.IPAddress,
		&t.ErrorFingerprint, &t.ErrorMessage, &t.ErrorStack, &t.AssignedTo,
		&t.Resolution, &t.ResolvedBy,
	} {
		*field = cloneOptional(*field)
	}
	return t
}

func detachLog(entry domain.SystemLogEntry) domain.SystemLogEntry {
	entry.Message = strings.Clone(entry.Message)
	for _, field := range []**string{
		&entry.Component, &entry.UserID, &entry.RequestID, &entry.SessionID,
		&entry.Endpoint, &entry.Method, &entry.IPAddress,
		&entry.UserAgent, &entry.ErrorMessage, &entry.ErrorStack,
		&entry.Fingerprint, &entry.TicketID,
	} {
		*field = cloneOptional(*field)
	}
	return entry
}

func cloneOptional(v *string) *string {
	if v == nil {
		return nil
	}
	c := strings.Clone(*v)
	return &c
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]T{}, items[offset:end]...)
}

type ticketTable struct{ s *Store }

func (r *ticketTable) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insertLocked(ticket)
}

func (r *ticketTable) insertLocked(ticket *domain.Ticket) error {
	if ticket.ErrorFingerprint != nil && ticket.Status.IsOpen() && r.s.openTicketFor(*ticket.ErrorFingerprint, "") != nil {
		return repository.ErrConflict
	}
	now := r.s.now()
	ticket.ID = uuid.NewString()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	r.s.tickets[ticket.ID] = detachTicket(cloneTicket(ticket))
	return nil
}

func (r *ticketTable) CreateOrIncrement(_ context.Context, ticket *domain.Ticket) (*domain.Ticket, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ticket.ErrorFingerprint != nil {
		if existing := r.s.openTicketFor(*ticket.ErrorFingerprint, ""); existing != nil {
			existing.ErrorCount++
			existing.UpdatedAt = r.s.now()
			return cloneTicket(existing), false, nil
		}
	}
	if err := r.insertLocked(ticket); err != nil {
		return nil, false, err
	}
	return cloneTicket(ticket), true, nil
}

func (r *ticketTable) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTicket(t), nil
}

func (r *ticketTable) Modify(_ context.Context, id string, fn repository.TicketMutator) (*domain.Ticket, *repository.TicketMutation, error) {
	// id may alias a transport buffer; it becomes a map key below.
	id = strings.Clone(id)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.tickets[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	working := cloneTicket(current)
	mutation, err := fn(working)
	if err != nil {
		return nil, nil, err
	}
	if working.ErrorFingerprint != nil && working.Status.IsOpen() && r.s.openTicketFor(*working.ErrorFingerprint, id) != nil {
		return nil, nil, repository.ErrConflict
	}

	now := r.s.now()
	working.ID = id
	working.UpdatedAt = now
	if mutation == nil {
		mutation = &repository.TicketMutation{}
	}
	if mutation.Message != nil {
		mutation.Message.ID = uuid.NewString()
		mutation.Message.TicketID = id
		if mutation.Message.CreatedAt.IsZero() {
			mutation.Message.CreatedAt = now
		}
		r.s.messages[id] = append(r.s.messages[id], *mutation.Message)
	}
	for i := range mutation.History {
		mutation.History[i].ID = uuid.NewString()
		mutation.History[i].TicketID = id
		if mutation.History[i].CreatedAt.IsZero() {
			mutation.History[i].CreatedAt = now
		}
		r.s.history[id] = append(r.s.history[id], mutation.History[i])
	}
	r.s.tickets[id] = detachTicket(working)
	return cloneTicket(working), mutation, nil
}

func (r *ticketTable) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	matched := []domain.Ticket{}
	for _, t := range r.s.tickets {
		if matchesTicket(t, filter) {
			matched = append(matched, *cloneTicket(t))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func matchesTicket(t *domain.Ticket, f repository.TicketFilter) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, t.Category) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, t.Priority) {
		return false
	}
	if f.ReporterID != nil && (t.ReporterID == nil || *t.ReporterID != *f.ReporterID) {
		return false
	}
	if f.AssigneeID != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssigneeID) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil && strings.TrimSpace(*f.SearchTerm) != "" {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if !strings.Contains(strings.ToLower(t.Title), term) && !strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (r *ticketTable) GroupCounts(_ context.Context) ([]domain.TicketGroupCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	type key struct {
		status   domain.TicketStatus
		priority domain.TicketPriority
		category domain.TicketCategory
	}
	counts := map[key]int64{}
	for _, t := range r.s.tickets {
		counts[key{t.Status, t.Priority, t.Category}]++
	}
	result := make([]domain.TicketGroupCount, 0, len(counts))
	for k, n := range counts {
		result = append(result, domain.TicketGroupCount{Status: k.status, Priority: k.priority, Category: k.category, Count: n})
	}
	return result, nil
}

func (r *ticketTable) AverageFirstResponse(_ context.Context) (domain.DurationAverage, error) {
	return r.average(func(t *domain.Ticket) *time.Time { return t.FirstResponseAt }), nil
}

func (r *ticketTable) AverageResolution(_ context.Context) (domain.DurationAverage, error) {
	return r.average(func(t *domain.Ticket) *time.Time { return t.ClosedAt }), nil
}

func (r *ticketTable) average(end func(*domain.Ticket) *time.Time) domain.DurationAverage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var (
		sum float64
		n   int64
	)
	for _, t := range r.s.tickets {
		stamp := end(t)
		if stamp == nil || t.CreatedAt.IsZero() {
			continue
		}
		sum += stamp.Sub(t.CreatedAt).Seconds()
		n++
	}
	if n == 0 {
		return domain.DurationAverage{}
	}
	return domain.DurationAverage{Seconds: sum / float64(n), Samples: n}
}

type messageTable struct{ s *Store }

func (r *messageTable) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := []domain.TicketMessage{}
	for _, msg := range r.s.messages[ticketID] {
		if msg.Internal && !includeInternal {
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}

type historyTable struct{ s *Store }

func (r *historyTable) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.TicketHistory{}, r.s.history[ticketID]...), nil
}

type aggregationTable struct{ s *Store }

func (r *aggregationTable) Record(_ context.Context, sample domain.ErrorAggregation) (*domain.ErrorAggregation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if agg, ok := r.s.aggregations[sample.Fingerprint]; ok {
		agg.TotalOccurrences++
		agg.LastSeen = now
		agg.Resolved = false
		copied := *agg
		return &copied, nil
	}
	agg := sample
	agg.TotalOccurrences = 1
	agg.UniqueUsers = 0
	agg.FirstSeen = now
	agg.LastSeen = now
	agg.Resolved = false
	r.s.aggregations[sample.Fingerprint] = &agg
	copied := agg
	return &copied, nil
}

func (r *aggregationTable) Get(_ context.Context, fingerprint string) (*domain.ErrorAggregation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	agg, ok := r.s.aggregations[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *agg
	return &copied, nil
}

func (r *aggregationTable) List(_ context.Context, filter repository.ErrorAggregationFilter) ([]domain.ErrorAggregation, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	matched := []domain.ErrorAggregation{}
	for _, agg := range r.s.aggregations {
		if filter.Resolved != nil && agg.Resolved != *filter.Resolved {
			continue
		}
		matched = append(matched, *agg)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Resolved != matched[j].Resolved {
			return !matched[i].Resolved
		}
		if matched[i].LastSeen.Equal(matched[j].LastSeen) {
			return matched[i].Fingerprint < matched[j].Fingerprint
		}
		return matched[i].LastSeen.After(matched[j].LastSeen)
	})
	return page(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (r *aggregationTable) MarkResolved(_ context.Context, fingerprint string) (*domain.ErrorAggregation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	agg, ok := r.s.aggregations[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	agg.Resolved = true
	copied := *agg
	return &copied, nil
}

func (r *aggregationTable) SetUniqueUsers(_ context.Context, fingerprint string, count int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	agg, ok := r.s.aggregations[fingerprint]
	if !ok {
		return repository.ErrNotFound
	}
	agg.UniqueUsers = count
	return nil
}

type systemLogTable struct{ s *Store }

func (r *systemLogTable) Create(_ context.Context, entry *domain.SystemLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = r.s.now()
	r.s.logs = append(r.s.logs, detachLog(*entry))
	return nil
}

func (r *systemLogTable) List(_ context.Context, filter repository.SystemLogFilter) ([]domain.SystemLogEntry, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	matched := []domain.SystemLogEntry{}
	// newest first; logs are appended in creation order
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		entry := r.s.logs[i]
		if len(filter.Levels) > 0 && !contains(filter.Levels, entry.Level) {
			continue
		}
		if filter.Component != nil && (entry.Component == nil || *entry.Component != *filter.Component) {
			continue
		}
		if filter.Fingerprint != nil && (entry.Fingerprint == nil || *entry.Fingerprint != *filter.Fingerprint) {
			continue
		}
		matched = append(matched, entry)
	}
	return page(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}
