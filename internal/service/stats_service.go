package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/triagedesk/triage-service/internal/domain"
	"github.com/triagedesk/triage-service/internal/repository"
	apperrors "github.com/triagedesk/triage-service/pkg/util/errorutil"
)

const statsCacheKey = "triage:stats"

// StatsCache stores the computed rollup between ticket changes.
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// StatsService computes read-time rollups over the ticket store.
type StatsService struct {
	tickets repository.TicketRepository
	cache   StatsCache
	ttl     time.Duration
	logger  *zap.Logger
}

// StatsDependencies bundles collaborators for the stats service.
type StatsDependencies struct {
	TicketRepo repository.TicketRepository
	Cache      StatsCache
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// NewStatsService constructs the service.
func NewStatsService(deps StatsDependencies) *StatsService {
	return &StatsService{
		tickets: deps.TicketRepo,
		cache:   deps.Cache,
		ttl:     deps.CacheTTL,
		logger:  loggerOrNop(deps.Logger),
	}
}

// Stats returns the ticket rollup, served from cache while it is fresh.
func (s *StatsService) Stats(ctx context.Context) (*domain.TicketStats, error) {
	if s.cacheEnabled() {
		var cached domain.TicketStats
		hit, err := s.cache.GetJSON(ctx, statsCacheKey, &cached)
		if err != nil {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if s.cacheEnabled() {
		if err := s.cache.SetJSON(ctx, statsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Invalidate drops the cached rollup.
func (s *StatsService) Invalidate(ctx context.Context) error {
	if !s.cacheEnabled() {
		return nil
	}
	return s.cache.Delete(ctx, statsCacheKey)
}

func (s *StatsService) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *StatsService) compute(ctx context.Context) (*domain.TicketStats, error) {
	groups, err := s.tickets.GroupCounts(ctx)
	if err != nil {
		return nil, err
	}
	stats := foldGroups(groups)

	firstResponse, err := s.tickets.AverageFirstResponse(ctx)
	if err != nil {
		return nil, err
	}
	resolution, err := s.tickets.AverageResolution(ctx)
	if err != nil {
		return nil, err
	}

	stats.FirstResponseSamples = firstResponse.Samples
	stats.ResolutionSamples = resolution.Samples
	if firstResponse.Samples > 0 {
		stats.AvgFirstResponseMins = int64(math.Round(firstResponse.Seconds / 60))
	}
	if resolution.Samples > 0 {
		stats.AvgResolutionHours = math.Round(resolution.Seconds/3600*10) / 10
	}
	return stats, nil
}

func foldGroups(groups []domain.TicketGroupCount) *domain.TicketStats {
	stats := &domain.TicketStats{
		ByPriority: map[domain.TicketPriority]int64{
			domain.TicketPriorityLow:      0,
			domain.TicketPriorityMedium:   0,
			domain.TicketPriorityHigh:     0,
			domain.TicketPriorityCritical: 0,
		},
		ByCategory: map[domain.TicketCategory]int64{
			domain.CategoryUser:        0,
			domain.CategorySystemic:    0,
			domain.CategoryBilling:     0,
			domain.CategoryPerformance: 0,
			domain.CategorySecurity:    0,
			domain.CategoryIntegration: 0,
			domain.CategorySuggestion:  0,
			domain.CategoryOther:       0,
		},
	}
	for _, group := range groups {
		stats.Total += group.Count
		switch group.Status {
		case domain.TicketStatusOpen:
			stats.Open += group.Count
		case domain.TicketStatusInAnalysis:
			stats.InAnalysis += group.Count
		case domain.TicketStatusResolved, domain.TicketStatusClosed:
			stats.Resolved += group.Count
		}
		stats.ByPriority[group.Priority] += group.Count
		stats.ByCategory[group.Category] += group.Count
	}
	return stats
}
