package application

import (
	"context"
	"fmt"
	"time"

	"github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	trendingapp "github.com/stdin/venezuelawatch-sub000/internal/trending/application"
	trendingdomain "github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
)

// RecorderService appends mentions to the log and applies their immediate
// trending weight. Mention volume feeds trending at record time; the risk
// and sanctions metrics wait until the event is scored.
type RecorderService struct {
	mentions domain.MentionRepository
	entities domain.EntityRepository
	trending *trendingapp.TrendingService
	idGen    *utils.SnowflakeID
	metrics  *metrics.Metrics
}

// NewRecorderService creates a RecorderService.
func NewRecorderService(
	mentions domain.MentionRepository,
	entities domain.EntityRepository,
	trending *trendingapp.TrendingService,
	idGen *utils.SnowflakeID,
	m *metrics.Metrics,
) *RecorderService {
	return &RecorderService{
		mentions: mentions,
		entities: entities,
		trending: trending,
		idGen:    idGen,
		metrics:  m,
	}
}

// RecordMention appends one mention and bumps the entity's aggregates.
// Recording the same (event, entity) pair again is a no-op, so reprocessing
// an event never inflates the log, the mention count or the trend.
func (s *RecorderService) RecordMention(
	ctx context.Context,
	entityID uint64,
	eventID string,
	mentionedAt time.Time,
	matchScore float64,
) (*domain.Mention, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if mentionedAt.IsZero() {
		mentionedAt = time.Now()
	}

	mention := &domain.Mention{
		ID:          s.idGen.Generate(),
		EntityID:    entityID,
		EventID:     eventID,
		MentionedAt: mentionedAt,
		MatchScore:  matchScore,
	}
	duplicate, err := s.mentions.Create(ctx, mention)
	if err != nil {
		return nil, fmt.Errorf("append mention: %w", err)
	}
	if duplicate {
		return mention, nil
	}
	if err := s.entities.RecordMentionSeen(ctx, entityID, mentionedAt); err != nil {
		return nil, fmt.Errorf("bump mention aggregates: %w", err)
	}

	s.trending.Record(trendingdomain.MetricMentions, entityID, 1, mentionedAt)
	s.metrics.MentionsRecorded.Inc()
	return mention, nil
}

// ListMentions returns a page of an entity's mentions within [from, to],
// newest first, plus the total count.
func (s *RecorderService) ListMentions(
	ctx context.Context,
	entityID uint64,
	from, to time.Time,
	page *utils.Pagination,
) ([]*domain.Mention, int64, error) {
	if to.IsZero() {
		to = time.Now()
	}
	return s.mentions.ListByEntity(ctx, entityID, from, to, page.Offset(), page.Limit())
}
