package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/triagedesk/triage-service/internal/api/http"
	"github.com/triagedesk/triage-service/internal/api/http/handlers"
	"github.com/triagedesk/triage-service/internal/auth"
	"github.com/triagedesk/triage-service/internal/config"
	"github.com/triagedesk/triage-service/internal/events"
	"github.com/triagedesk/triage-service/internal/observability"
	"github.com/triagedesk/triage-service/internal/persistence"
	"github.com/triagedesk/triage-service/internal/repository"
	"github.com/triagedesk/triage-service/internal/repository/memory"
	"github.com/triagedesk/triage-service/internal/service"
	"github.com/triagedesk/triage-service/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

type repositories struct {
	tickets      repository.TicketRepository
	messages     repository.TicketMessageRepository
	history      repository.TicketHistoryRepository
	aggregations repository.ErrorAggregationRepository
	logs         repository.SystemLogRepository
}

func buildRepositories(pg *persistence.Postgres) repositories {
	if !pg.Enabled() {
		store := memory.NewStore()
		return repositories{
			tickets:      store.Tickets(),
			messages:     store.Messages(),
			history:      store.History(),
			aggregations: store.Aggregations(),
			logs:         store.SystemLogs(),
		}
	}
	pool := pg.PoolHandle()
	return repositories{
		tickets:      repository.NewTicketRepository(pool),
		messages:     repository.NewTicketMessageRepository(pool),
		history:      repository.NewTicketHistoryRepository(pool),
		aggregations: repository.NewErrorAggregationRepository(pool),
		logs:         repository.NewSystemLogRepository(pool),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		statsCache  service.StatsCache
		uniqueUsers service.UniqueUserCounter
	)
	if redis.Enabled() {
		statsCache = redis
		uniqueUsers = redis
	}

	repos := buildRepositories(pg)
	dispatcher := events.NewInMemoryDispatcher(logger)
	pages := service.PageLimits{Default: cfg.Triage.DefaultPageSize, Max: cfg.Triage.MaxPageSize}

	aggregator := service.NewErrorAggregator(service.AggregatorDependencies{
		TicketRepo:      repos.tickets,
		AggregationRepo: repos.aggregations,
		UniqueUsers:     uniqueUsers,
		Dispatcher:      dispatcher,
		Logger:          logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repos.tickets,
		MessageRepo: repos.messages,
		HistoryRepo: repos.history,
		Aggregator:  aggregator,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Pages:       pages,
	})
	errorService := service.NewErrorService(service.ErrorDependencies{
		SystemLogRepo:   repos.logs,
		AggregationRepo: repos.aggregations,
		Aggregator:      aggregator,
		Tickets:         ticketService,
		Reporter: service.SystemReporter{
			Email: cfg.Triage.SystemReporterEmail,
			Name:  cfg.Triage.SystemReporterName,
		},
		Logger: logger,
		Pages:  pages,
	})
	statsService := service.NewStatsService(service.StatsDependencies{
		TicketRepo: repos.tickets,
		Cache:      statsCache,
		CacheTTL:   cfg.Triage.StatsCacheTTL(),
		Logger:     logger,
	})
	worker.NewStatsInvalidator(dispatcher, statsService, logger).Start()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())
	metrics := observability.NewMetrics()

	app := httptransport.NewApp(cfg.App.Name)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Events:         handlers.NewEventsHandler(errorService),
		AdminTickets:   handlers.NewAdminTicketsHandler(ticketService),
		Errors:         handlers.NewErrorsHandler(errorService),
		Stats:          handlers.NewStatsHandler(statsService, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
