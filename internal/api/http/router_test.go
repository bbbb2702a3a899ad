package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/triagedesk/triage-service/internal/api/http/handlers"
	"github.com/triagedesk/triage-service/internal/auth"
	"github.com/triagedesk/triage-service/internal/events"
	"github.com/triagedesk/triage-service/internal/observability"
	"github.com/triagedesk/triage-service/internal/repository/memory"
	"github.com/triagedesk/triage-service/internal/service"
)

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

type stubDependency struct {
	enabled bool
	err     error
}

func (d stubDependency) Enabled() bool { return d.enabled }
func (d stubDependency) Ping(context.Context) error { return d.err }

func newTestServer(t *testing.T, redis handlers.Dependency) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher(logger)
	pages := service.PageLimits{Default: 20, Max: 100}

	aggregator := service.NewErrorAggregator(service.AggregatorDependencies{
		TicketRepo:      store.Tickets(),
		AggregationRepo: store.Aggregations(),
		Dispatcher:      dispatcher,
		Logger:          logger,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store.Tickets(),
		MessageRepo: store.Messages(),
		HistoryRepo: store.History(),
		Aggregator:  aggregator,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Pages:       pages,
	})
	errs := service.NewErrorService(service.ErrorDependencies{
		SystemLogRepo:   store.SystemLogs(),
		AggregationRepo: store.Aggregations(),
		Aggregator:      aggregator,
		Tickets:         tickets,
		Logger:          logger,
		Pages:           pages,
	})
	stats := service.NewStatsService(service.StatsDependencies{TicketRepo: store.Tickets(), Logger: logger})

	tokens := auth.NewTokenManager("test-secret", "triage-service", time.Hour)
	metrics := observability.NewMetrics()
	app := NewApp("triage-service")
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("triage-service", "test", nil, redis),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Events:         handlers.NewEventsHandler(errs),
		AdminTickets:   handlers.NewAdminTicketsHandler(tickets),
		Errors:         handlers.NewErrorsHandler(errs),
		Stats:          handlers.NewStatsHandler(stats, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens, metrics: metrics}
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken("op-ana", "Ana", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

type ticketView struct {
	ID              string     `json:"id"`
	Category        string     `json:"category"`
	Priority        string     `json:"priority"`
	RiskScore       int        `json:"risk_score"`
	Status          string     `json:"status"`
	ErrorCount      int        `json:"error_count"`
	FirstResponseAt *time.Time `json:"first_response_at"`
	ResolvedAt      *time.Time `json:"resolved_at"`
}

func TestReportAndOperatorWorkflow(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.adminToken(t)

	status, env := s.do(t, "POST", "/api/v1/tickets", "", map[string]any{
		"reporter_email": "ana@example.com",
		"reporter_name":  "Ana",
		"title":          "Cobrança duplicada na fatura",
		"description":    "fui cobrada duas vezes, preciso de reembolso",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("report status = %d (%+v)", status, env.Error)
	}
	created := decode[ticketView](t, env.Data)
	if created.Category != "faturamento" || created.Status != "aberto" {
		t.Errorf("classification = %+v", created)
	}

	status, env = s.do(t, "POST", "/api/v1/admin/tickets/"+created.ID+"/messages", admin, map[string]any{"body": "Estamos verificando."})
	if status != fiber.StatusCreated {
		t.Fatalf("admin message status = %d (%+v)", status, env.Error)
	}
	reply := decode[struct {
		Ticket ticketView `json:"ticket"`
	}](t, env.Data)
	if reply.Ticket.Status != "em_analise" || reply.Ticket.FirstResponseAt == nil {
		t.Errorf("after first response = %+v", reply.Ticket)
	}

	status, env = s.do(t, "PATCH", "/api/v1/admin/tickets/"+created.ID+"/status", admin, map[string]any{
		"status":     "resolvido",
		"resolution": "Estorno efetuado",
	})
	if status != fiber.StatusOK {
		t.Fatalf("resolve status = %d (%+v)", status, env.Error)
	}
	if resolved := decode[ticketView](t, env.Data); resolved.ResolvedAt == nil {
		t.Errorf("resolvedAt not stamped: %+v", resolved)
	}

	status, env = s.do(t, "GET", "/api/v1/admin/tickets/"+created.ID+"/history", admin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	history := decode[[]struct {
		Field    string  `json:"field"`
		OldValue *string `json:"old_value"`
		NewValue *string `json:"new_value"`
	}](t, env.Data)
	if len(history) != 2 || *history[1].OldValue != "em_analise" || *history[1].NewValue != "resolvido" {
		t.Errorf("history = %+v", history)
	}

	status, env = s.do(t, "GET", "/api/v1/tickets/"+created.ID+"?email=ANA@example.com", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("reporter view status = %d (%+v)", status, env.Error)
	}
	status, _ = s.do(t, "GET", "/api/v1/tickets/"+created.ID+"?email=bia@example.com", "", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("foreign reporter status = %d, want 404", status)
	}
}

func TestReportValidationEnvelope(t *testing.T) {
	s := newTestServer(t, nil)
	status, env := s.do(t, "POST", "/api/v1/tickets", "", map[string]any{"title": "sem email"})
	if status != fiber.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("status=%d error=%+v", status, env.Error)
	}
	if env.Error.Details["field"] != "reporter_email" {
		t.Errorf("details = %v", env.Error.Details)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)
	status, env := s.do(t, "GET", "/api/v1/admin/tickets", "", nil)
	if status != fiber.StatusUnauthorized || env.Error.Code != "UNAUTHORIZED" {
		t.Errorf("status=%d error=%+v", status, env.Error)
	}
	viewer, _, _ := s.tokens.GenerateToken("op-bia", "Bia", "viewer")
	status, _ = s.do(t, "GET", "/api/v1/admin/stats", viewer, nil)
	if status != fiber.StatusForbidden {
		t.Errorf("viewer status = %d, want 403", status)
	}
}

func TestEventsOpenAndReuseTicket(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.adminToken(t)
	event := map[string]any{
		"level":       "critical",
		"message":     "Connection timeout to payment gateway",
		"component":   "billing",
		"error_stack": "Error: timeout\n    at charge (gateway.js:42:7)",
	}

	status, env := s.do(t, "POST", "/api/v1/events", "", event)
	if status != fiber.StatusCreated {
		t.Fatalf("first event status = %d (%+v)", status, env.Error)
	}
	first := decode[struct {
		TicketID *string `json:"ticket_id"`
	}](t, env.Data)
	status, env = s.do(t, "POST", "/api/v1/events", "", event)
	if status != fiber.StatusCreated {
		t.Fatalf("second event status = %d", status)
	}
	second := decode[struct {
		TicketID *string `json:"ticket_id"`
	}](t, env.Data)
	if first.TicketID == nil || second.TicketID == nil || *first.TicketID != *second.TicketID {
		t.Fatalf("ticket ids = %v / %v", first.TicketID, second.TicketID)
	}

	status, env = s.do(t, "POST", "/api/v1/events", "", map[string]any{"level": "info", "message": "job done"})
	if status != fiber.StatusAccepted {
		t.Errorf("info event status = %d, want 202", status)
	}

	status, env = s.do(t, "GET", "/api/v1/admin/tickets?category=sistemico", admin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("list status = %d (%+v)", status, env.Error)
	}
	page := decode[struct {
		Items []ticketView `json:"items"`
		Total int64        `json:"total"`
	}](t, env.Data)
	if page.Total != 1 || page.Items[0].ErrorCount != 2 {
		t.Errorf("tickets page = %+v", page)
	}

	status, env = s.do(t, "GET", "/api/v1/admin/errors", admin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("errors status = %d", status)
	}
	aggs := decode[struct {
		Items []struct {
			Fingerprint      string `json:"fingerprint"`
			TotalOccurrences int64  `json:"total_occurrences"`
		} `json:"items"`
	}](t, env.Data)
	if len(aggs.Items) != 1 || aggs.Items[0].TotalOccurrences != 2 {
		t.Fatalf("aggregations = %+v", aggs)
	}

	status, env = s.do(t, "POST", "/api/v1/admin/errors/"+aggs.Items[0].Fingerprint+"/resolve", admin, nil)
	if status != fiber.StatusOK {
		t.Errorf("resolve status = %d (%+v)", status, env.Error)
	}

	status, env = s.do(t, "GET", "/api/v1/admin/logs?level=critical", admin, nil)
	logs := decode[struct {
		Total int64 `json:"total"`
	}](t, env.Data)
	if status != fiber.StatusOK || logs.Total != 2 {
		t.Errorf("logs status=%d total=%d", status, logs.Total)
	}
}

func TestStatsAndMetricsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.adminToken(t)
	s.do(t, "POST", "/api/v1/tickets", "", map[string]any{"reporter_email": "ana@example.com", "title": "dúvida"})

	status, env := s.do(t, "GET", "/api/v1/admin/stats", admin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	stats := decode[struct {
		Total      int64            `json:"total"`
		Open       int64            `json:"open"`
		ByPriority map[string]int64 `json:"by_priority"`
	}](t, env.Data)
	if stats.Total != 1 || stats.Open != 1 || len(stats.ByPriority) != 4 {
		t.Errorf("stats = %+v", stats)
	}

	status, env = s.do(t, "GET", "/api/v1/admin/metrics", admin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	snap := decode[observability.Snapshot](t, env.Data)
	if snap.TotalRequests < 2 {
		t.Errorf("metrics should count earlier requests, got %+v", snap)
	}
}

func TestInvalidQueryAndUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.adminToken(t)

	status, env := s.do(t, "GET", "/api/v1/admin/tickets?created_from=yesterday", admin, nil)
	if status != fiber.StatusBadRequest || env.Error.Code != "VALIDATION_FAILED" {
		t.Errorf("bad timestamp: status=%d error=%+v", status, env.Error)
	}
	status, env = s.do(t, "GET", "/api/v1/admin/tickets?status=perdido", admin, nil)
	if status != fiber.StatusBadRequest {
		t.Errorf("unknown status filter: status=%d", status)
	}
	status, env = s.do(t, "GET", "/api/v1/nope", "", nil)
	if status != fiber.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("unknown route: status=%d error=%+v", status, env.Error)
	}
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, nil)
	status, env := s.do(t, "GET", "/health/ready", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("memory mode should be ready, got %d (%+v)", status, env.Error)
	}

	down := newTestServer(t, stubDependency{enabled: true, err: errors.New("connection refused")})
	status, env = down.do(t, "GET", "/health/ready", "", nil)
	if status != fiber.StatusServiceUnavailable || env.Error.Code != "DEPENDENCY_UNAVAILABLE" {
		t.Errorf("status=%d error=%+v", status, env.Error)
	}
	if env.Error.Details["redis"] != "connection refused" || env.Error.Details["postgres"] != "memory" {
		t.Errorf("details = %v", env.Error.Details)
	}
}
