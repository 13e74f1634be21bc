// Package application orchestrates the trending engine: live updates,
// leaderboard snapshots and rehydration from the mention log.
package application

import (
	"context"
	"time"

	entitydomain "github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
)

// TrendingService exposes trending updates and ranked reads.
type TrendingService struct {
	engine       *domain.Engine
	mentions     entitydomain.MentionRepository
	leaderboards domain.LeaderboardRepository
	metrics      *metrics.Metrics
	snapshotSize int
}

// NewTrendingService creates a TrendingService.
func NewTrendingService(
	engine *domain.Engine,
	mentions entitydomain.MentionRepository,
	leaderboards domain.LeaderboardRepository,
	m *metrics.Metrics,
	snapshotSize int,
) *TrendingService {
	return &TrendingService{
		engine:       engine,
		mentions:     mentions,
		leaderboards: leaderboards,
		metrics:      m,
		snapshotSize: snapshotSize,
	}
}

// Record folds one weighted contribution into the live engine.
func (s *TrendingService) Record(metric domain.Metric, entityID uint64, weight float64, at time.Time) {
	s.engine.Record(metric, entityID, weight, at)
}

// RankTop returns the ranked top entities for metric as of asOf.
func (s *TrendingService) RankTop(metric domain.Metric, limit int, asOf time.Time) []domain.RankedEntity {
	return s.engine.RankTop(metric, limit, asOf)
}

// TopSnapshot reads the last published leaderboard snapshot. Cheaper than a
// live ranking and stable between snapshot ticks, at the cost of staleness
// up to one snapshot interval.
func (s *TrendingService) TopSnapshot(ctx context.Context, metric domain.Metric, limit int) ([]domain.RankedEntity, error) {
	return s.leaderboards.Top(ctx, metric, limit)
}

// Rehydrate rebuilds the live cells by replaying mentions within the
// retention window. The mention log is ground truth; the cells are a
// materialized view.
func (s *TrendingService) Rehydrate(ctx context.Context) error {
	defer logger.LogDuration(ctx, "Trending rehydration completed")()

	since := time.Now().Add(-s.engine.Retention())
	contributions, err := s.mentions.ListContributionsSince(ctx, since)
	if err != nil {
		return err
	}

	s.engine.Reset()
	for _, c := range contributions {
		s.engine.Record(domain.MetricMentions, c.EntityID, 1, c.MentionedAt)
		if c.CompositeScore != nil {
			s.engine.Record(domain.MetricRisk, c.EntityID, *c.CompositeScore/100, c.MentionedAt)
		}
		if c.SanctionsHit != nil && *c.SanctionsHit {
			s.engine.Record(domain.MetricSanctions, c.EntityID, 1, c.MentionedAt)
		}
	}

	logger.Info(ctx, "Trending cells rebuilt from mention log",
		"contributions", len(contributions),
		"since", since,
	)
	return nil
}

// StartSnapshots publishes leaderboard snapshots every interval until ctx
// is cancelled. Pruning of expired cells rides along with each snapshot.
func (s *TrendingService) StartSnapshots(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.publishSnapshots(ctx)
			}
		}
	}()
}

func (s *TrendingService) publishSnapshots(ctx context.Context) {
	start := time.Now()
	now := time.Now()

	live := s.engine.Prune(now)
	s.metrics.TrendingEntities.Set(float64(live))

	for _, metric := range domain.Metrics() {
		entries := s.engine.RankTop(metric, s.snapshotSize, now)
		if err := s.leaderboards.Publish(ctx, metric, entries); err != nil {
			logger.Error(ctx, "Failed to publish leaderboard snapshot",
				"metric", metric,
				"error", err,
			)
		}
	}

	s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
}
