package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/triagedesk/triage-service/internal/domain"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

func TestReportErrorReportIsSystemicAndFingerprinted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	errMsg := "TypeError: cannot read property 'valor' of undefined"

	ticket, err := f.tickets.Report(ctx, ReportInput{
		ReporterEmail: "ana@example.com",
		Title:         "Erro ao carregar fatura",
		Source:        domain.SourceInvoicePage,
		ErrorMessage:  &errMsg,
	})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if ticket.Category != domain.CategorySystemic {
		t.Errorf("category = %s, want sistemico", ticket.Category)
	}
	if ticket.RiskScore < 45 {
		t.Errorf("risk = %d, want >= 45", ticket.RiskScore)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Errorf("status = %s, want aberto", ticket.Status)
	}
	if ticket.ErrorFingerprint == nil || ticket.ErrorCount != 1 {
		t.Fatalf("fingerprint = %v count = %d", ticket.ErrorFingerprint, ticket.ErrorCount)
	}
	if ticket.ReporterName != "ana@example.com" {
		t.Errorf("reporter name should default to the email, got %q", ticket.ReporterName)
	}

	agg, err := f.errors.GetAggregation(ctx, *ticket.ErrorFingerprint)
	if err != nil {
		t.Fatalf("aggregation: %v", err)
	}
	if agg.TotalOccurrences != 1 || agg.Resolved {
		t.Errorf("aggregation = %+v", agg)
	}
}

func TestReportValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	badCategory := domain.TicketCategory("misc")

	cases := map[string]ReportInput{
		"missing email":   {Title: "x"},
		"malformed email": {ReporterEmail: "not-an-email", Title: "x"},
		"missing title":   {ReporterEmail: "ana@example.com", Title: "   "},
		"bad source":      {ReporterEmail: "ana@example.com", Title: "x", Source: "fax"},
		"bad category":    {ReporterEmail: "ana@example.com", Title: "x", Category: &badCategory},
	}
	for name, input := range cases {
		if _, err := f.tickets.Report(ctx, input); !apperrors.IsCode(err, "VALIDATION_FAILED") {
			t.Errorf("%s: err = %v, want validation failure", name, err)
		}
	}

	page, err := f.tickets.ListTickets(ctx, TicketQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("rejected reports must not be stored, total = %d", page.Total)
	}
}

func TestReportOverridesKeepClassifierRisk(t *testing.T) {
	f := newFixture(t)
	category := domain.CategoryBilling
	priority := domain.TicketPriorityLow
	ticket, err := f.tickets.Report(context.Background(), ReportInput{
		ReporterEmail: "ana@example.com",
		Title:         "sugestão de melhoria",
		Category:      &category,
		Priority:      &priority,
	})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if ticket.Category != category || ticket.Priority != priority {
		t.Errorf("got %s/%s", ticket.Category, ticket.Priority)
	}
}

func TestAdminMessageAndResolutionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "Não consigo acessar meu perfil")

	f.clock.Advance(10 * time.Minute)
	_, updated, err := f.tickets.AddAdminMessage(ctx, ticket.ID, admin("bruno"), "Estamos verificando", false)
	if err != nil {
		t.Fatalf("AddAdminMessage: %v", err)
	}
	if updated.Status != domain.TicketStatusInAnalysis {
		t.Fatalf("status = %s, want em_analise", updated.Status)
	}
	if updated.FirstResponseAt == nil || !updated.FirstResponseAt.Equal(f.clock.Now()) {
		t.Fatalf("firstResponseAt = %v", updated.FirstResponseAt)
	}
	firstResponse := *updated.FirstResponseAt

	f.clock.Advance(time.Hour)
	_, again, err := f.tickets.AddAdminMessage(ctx, ticket.ID, admin("bruno"), "nota interna", true)
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	if !again.FirstResponseAt.Equal(firstResponse) {
		t.Errorf("firstResponseAt moved from %v to %v", firstResponse, again.FirstResponseAt)
	}

	resolution := "Cache do navegador limpo"
	resolved, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{
		Status:     domain.TicketStatusResolved,
		Resolution: &resolution,
	}, admin("bruno"))
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if resolved.ClosedAt == nil || resolved.ResolvedAt == nil {
		t.Fatalf("closedAt/resolvedAt not stamped: %+v", resolved)
	}
	if resolved.Resolution == nil || *resolved.Resolution != resolution {
		t.Errorf("resolution = %v", resolved.Resolution)
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != "op-bruno" {
		t.Errorf("resolvedBy = %v", resolved.ResolvedBy)
	}

	history, err := f.tickets.ListHistory(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
	last := history[len(history)-1]
	if last.Field != domain.FieldStatus || *last.OldValue != "em_analise" || *last.NewValue != "resolvido" {
		t.Errorf("last history = %s %v -> %v", last.Field, *last.OldValue, *last.NewValue)
	}
	if last.ChangedByType != domain.ActorTypeAdmin || last.ChangedByName != "bruno" {
		t.Errorf("history actor = %s/%s", last.ChangedByType, last.ChangedByName)
	}

	detail, err := f.tickets.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Errorf("admin view messages = %d, want 2", len(detail.Messages))
	}
}

func TestChangeStatusRejectsInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "dúvida")

	if _, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: domain.TicketStatusOpen}, admin("ana")); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Errorf("same status: err = %v", err)
	}
	if _, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: domain.TicketStatusClosed}, admin("ana")); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Errorf("aberto -> fechado: err = %v", err)
	}
	if _, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: "arquivado"}, admin("ana")); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Errorf("unknown status: err = %v", err)
	}
	if _, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: domain.TicketStatusCancelled}, admin("ana")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: domain.TicketStatusInAnalysis}, admin("ana")); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Errorf("cancelled is terminal: err = %v", err)
	}

	history, _ := f.tickets.ListHistory(ctx, ticket.ID)
	if len(history) != 1 {
		t.Errorf("history = %d entries, want only the cancellation", len(history))
	}
}

func TestReopenClearsClosedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "dúvida")
	if _, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: domain.TicketStatusResolved}, admin("ana")); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	reopened, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: domain.TicketStatusInAnalysis}, admin("ana"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ClosedAt != nil {
		t.Errorf("closedAt should be cleared on reopen")
	}
}

func TestMissingTicketWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const missing = "00000000-0000-0000-0000-000000000000"

	if _, _, err := f.tickets.AddAdminMessage(ctx, missing, admin("ana"), "oi", false); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Errorf("message: err = %v", err)
	}
	if _, err := f.tickets.ChangeStatus(ctx, missing, StatusChangeInput{Status: domain.TicketStatusResolved}, admin("ana")); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Errorf("status: err = %v", err)
	}
	if _, err := f.tickets.Assign(ctx, missing, "op-1", admin("ana")); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Errorf("assign: err = %v", err)
	}
	msgs, _ := f.store.Messages().ListByTicket(ctx, missing, true)
	history, _ := f.store.History().ListByTicket(ctx, missing)
	if len(msgs) != 0 || len(history) != 0 {
		t.Errorf("partial writes: %d messages, %d history", len(msgs), len(history))
	}
}

func TestAssignRecordsPlaceholderAndMovesToAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "relatório lento")

	assigned, err := f.tickets.Assign(ctx, ticket.ID, "op-carla", admin("ana"))
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if assigned.Status != domain.TicketStatusInAnalysis || assigned.AssignedTo == nil || *assigned.AssignedTo != "op-carla" {
		t.Fatalf("assigned = %s / %v", assigned.Status, assigned.AssignedTo)
	}
	if assigned.AssignedAt == nil {
		t.Errorf("assignedAt not stamped")
	}

	history, _ := f.tickets.ListHistory(ctx, ticket.ID)
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want assignment + status", len(history))
	}
	if history[0].Field != domain.FieldAssignedTo || *history[0].OldValue != domain.NotAssigned {
		t.Errorf("assignment history = %s %v", history[0].Field, *history[0].OldValue)
	}
	if history[1].Field != domain.FieldStatus || !history[0].CreatedAt.Equal(history[1].CreatedAt) {
		t.Errorf("rows of one change share a stamp and keep write order: %s@%s, %s@%s",
			history[0].Field, history[0].CreatedAt, history[1].Field, history[1].CreatedAt)
	}

	if _, err := f.tickets.Assign(ctx, ticket.ID, "op-davi", admin("ana")); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	history, _ = f.tickets.ListHistory(ctx, ticket.ID)
	if len(history) != 3 || *history[2].OldValue != "op-carla" {
		t.Errorf("reassignment should record the previous assignee, got %d entries", len(history))
	}
}

func TestChangePriorityRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "dúvida sobre relatório")

	updated, err := f.tickets.ChangePriority(ctx, ticket.ID, domain.TicketPriorityCritical, admin("ana"))
	if err != nil {
		t.Fatalf("ChangePriority: %v", err)
	}
	if updated.Priority != domain.TicketPriorityCritical {
		t.Fatalf("priority = %s", updated.Priority)
	}
	history, _ := f.tickets.ListHistory(ctx, ticket.ID)
	if len(history) != 1 || history[0].Field != domain.FieldPriority || *history[0].NewValue != "critica" {
		t.Errorf("history = %+v", history)
	}
	if _, err := f.tickets.ChangePriority(ctx, ticket.ID, "altissima", admin("ana")); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Errorf("unknown priority: err = %v", err)
	}
}

func TestReporterViewHidesInternalNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "cobrança duplicada")

	if _, _, err := f.tickets.AddAdminMessage(ctx, ticket.ID, admin("ana"), "verificar gateway", true); err != nil {
		t.Fatalf("internal note: %v", err)
	}
	if _, _, err := f.tickets.AddAdminMessage(ctx, ticket.ID, admin("ana"), "Olá! Estamos verificando.", false); err != nil {
		t.Fatalf("public reply: %v", err)
	}
	if _, err := f.tickets.AddReporterMessage(ctx, ticket.ID, "ANA@example.com", "Obrigada"); err != nil {
		t.Fatalf("reporter reply: %v", err)
	}

	view, err := f.tickets.GetTicketForReporter(ctx, ticket.ID, "ana@example.com")
	if err != nil {
		t.Fatalf("GetTicketForReporter: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("reporter sees %d messages, want 2", len(view.Messages))
	}
	for _, msg := range view.Messages {
		if msg.Internal {
			t.Errorf("internal message leaked: %q", msg.Body)
		}
	}
	if view.Messages[1].AuthorType != domain.AuthorTypeUser {
		t.Errorf("reply author = %s", view.Messages[1].AuthorType)
	}

	if _, err := f.tickets.GetTicketForReporter(ctx, ticket.ID, "outra@example.com"); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Errorf("foreign email: err = %v", err)
	}
	if _, err := f.tickets.AddReporterMessage(ctx, ticket.ID, "outra@example.com", "oi"); !apperrors.IsCode(err, "NOT_FOUND") {
		t.Errorf("foreign reply: err = %v", err)
	}
}

func TestReporterReplyDoesNotStampFirstResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "dúvida")
	if _, err := f.tickets.AddReporterMessage(ctx, ticket.ID, "ana@example.com", "mais detalhes"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	got, _ := f.tickets.GetTicket(ctx, ticket.ID)
	if got.Ticket.FirstResponseAt != nil || got.Ticket.Status != domain.TicketStatusOpen {
		t.Errorf("reporter reply changed lifecycle: %+v", got.Ticket)
	}
}

func TestListTicketsFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.report(t, "fatura com valor errado")
		f.clock.Advance(time.Minute)
	}
	f.report(t, "sugestão: modo escuro")

	billing, err := f.tickets.ListTickets(ctx, TicketQuery{Categories: []domain.TicketCategory{domain.CategoryBilling}, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if billing.Total != 5 || len(billing.Items) != 2 {
		t.Fatalf("billing total=%d items=%d", billing.Total, len(billing.Items))
	}
	if !billing.Items[0].CreatedAt.After(billing.Items[1].CreatedAt) {
		t.Errorf("listing should be newest first")
	}

	term := "ESCURO"
	search, _ := f.tickets.ListTickets(ctx, TicketQuery{SearchTerm: &term})
	if search.Total != 1 || !strings.Contains(search.Items[0].Title, "escuro") {
		t.Errorf("search = %+v", search)
	}

	clamped, _ := f.tickets.ListTickets(ctx, TicketQuery{Limit: 1000, Offset: -3})
	if clamped.Limit != 50 || clamped.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want 50/0", clamped.Limit, clamped.Offset)
	}

	if _, err := f.tickets.ListTickets(ctx, TicketQuery{Statuses: []domain.TicketStatus{"zzz"}}); !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Errorf("unknown status filter: err = %v", err)
	}
}

func TestReopeningDuplicateFingerprintConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	component := "billing"
	event := LogEventInput{Level: domain.LogLevelCritical, Message: "Connection timeout to payment gateway", Component: &component}

	firstID, err := f.errors.LogEvent(ctx, event)
	if err != nil || firstID == nil {
		t.Fatalf("first event: %v", err)
	}
	if _, err := f.tickets.ChangeStatus(ctx, *firstID, StatusChangeInput{Status: domain.TicketStatusResolved}, admin("ana")); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	secondID, err := f.errors.LogEvent(ctx, event)
	if err != nil || secondID == nil {
		t.Fatalf("second event: %v", err)
	}
	if *secondID == *firstID {
		t.Fatalf("a resolved ticket must not absorb new occurrences")
	}

	_, err = f.tickets.ChangeStatus(ctx, *firstID, StatusChangeInput{Status: domain.TicketStatusInAnalysis}, admin("ana"))
	if !apperrors.IsCode(err, "CONFLICT") {
		t.Errorf("reopen with an open duplicate: err = %v, want CONFLICT", err)
	}
}

func TestMutationRowsShareTicketStamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.report(t, "erro ao salvar")

	// the store clock lags behind, like a transaction's start time
	f.store.SetClock(func() time.Time { return f.clock.Now().Add(-time.Second) })
	f.clock.Advance(10 * time.Minute)

	msg, updated, err := f.tickets.AddAdminMessage(ctx, ticket.ID, admin("ana"), "verificando", false)
	if err != nil {
		t.Fatalf("AddAdminMessage: %v", err)
	}
	if updated.FirstResponseAt == nil || !msg.CreatedAt.Equal(*updated.FirstResponseAt) {
		t.Fatalf("first response %v, message at %s", updated.FirstResponseAt, msg.CreatedAt)
	}
	stored, _ := f.store.Messages().ListByTicket(ctx, ticket.ID, true)
	if len(stored) != 1 || stored[0].CreatedAt.Before(*updated.FirstResponseAt) {
		t.Errorf("stored message predates first response: %+v", stored)
	}

	f.clock.Advance(time.Hour)
	resolved, err := f.tickets.ChangeStatus(ctx, ticket.ID, StatusChangeInput{Status: domain.TicketStatusResolved}, admin("ana"))
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	history, _ := f.tickets.ListHistory(ctx, ticket.ID)
	last := history[len(history)-1]
	if resolved.ClosedAt == nil || !last.CreatedAt.Equal(*resolved.ClosedAt) {
		t.Errorf("closedAt %v, history at %s", resolved.ClosedAt, last.CreatedAt)
	}
}
