package mysql

import (
	"context"
	"time"

	"github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/db"
)

type mentionRepository struct {
	db *db.DB
}

// NewMentionRepository creates the GORM-backed append-only mention log.
func NewMentionRepository(database *db.DB) domain.MentionRepository {
	return &mentionRepository{db: database}
}

func (r *mentionRepository) Create(ctx context.Context, mention *domain.Mention) (bool, error) {
	err := r.db.WithContext(ctx).Create(mention).Error
	if err == nil {
		return false, nil
	}
	if isDuplicateKey(err) {
		return true, nil
	}
	return false, err
}

func (r *mentionRepository) ListByEntity(ctx context.Context, entityID uint64, from, to time.Time, offset, limit int) ([]*domain.Mention, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&domain.Mention{}).
		Where("entity_id = ? AND mentioned_at >= ? AND mentioned_at <= ?", entityID, from, to)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var mentions []*domain.Mention
	err := query.
		Order("mentioned_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&mentions).Error
	if err != nil {
		return nil, 0, err
	}
	return mentions, total, nil
}

func (r *mentionRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Mention, error) {
	var mentions []*domain.Mention
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Find(&mentions).Error
	if err != nil {
		return nil, err
	}
	return mentions, nil
}

func (r *mentionRepository) ListContributionsSince(ctx context.Context, since time.Time) ([]*domain.MentionContribution, error) {
	var rows []*domain.MentionContribution
	err := r.db.WithContext(ctx).
		Table("mentions AS m").
		Select("m.entity_id, m.mentioned_at, ra.composite_score, ra.sanctions_hit").
		Joins("LEFT JOIN risk_assessments ra ON ra.event_id = m.event_id").
		Where("m.mentioned_at >= ?", since).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
