package application

import (
	"context"
	"fmt"

	"github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/config"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
)

// ReconcilerService merges duplicate entities: explicitly on request, and in
// batch by sweeping alias overlaps under the stricter batch threshold.
type ReconcilerService struct {
	entities  domain.EntityRepository
	matcher   *domain.Matcher
	metrics   *metrics.Metrics
	threshold float64
}

// NewReconcilerService creates a ReconcilerService using the batch matching
// threshold.
func NewReconcilerService(
	entities domain.EntityRepository,
	matcher *domain.Matcher,
	cfg config.MatchingConfig,
	m *metrics.Metrics,
) *ReconcilerService {
	return &ReconcilerService{
		entities:  entities,
		matcher:   matcher,
		metrics:   m,
		threshold: cfg.BatchThreshold,
	}
}

// ReconcileReport summarizes one batch reconciliation sweep.
type ReconcileReport struct {
	OverlapsFound int `json:"overlaps_found"`
	Merged        int `json:"merged"`
	// Flagged counts overlaps left unmerged because the entities did not
	// clear the batch threshold; they need human review.
	Flagged int `json:"flagged"`
}

// MergeEntities folds loser into winner. The loser's mentions, aliases and
// name claims move to the winner; the loser stays behind as a redirect so
// stale references keep resolving.
func (s *ReconcilerService) MergeEntities(ctx context.Context, winnerID, loserID uint64) error {
	if winnerID == loserID {
		return domain.ErrMergeSelf
	}

	winner, err := s.entities.FindByID(ctx, winnerID)
	if err != nil {
		return err
	}
	loser, err := s.entities.FindByID(ctx, loserID)
	if err != nil {
		return err
	}
	if winner == nil || loser == nil {
		return domain.ErrEntityNotFound
	}
	if winner.Merged() || loser.Merged() {
		return domain.ErrAlreadyMerged
	}
	if winner.EntityType != loser.EntityType {
		return fmt.Errorf("%w: cannot merge %s into %s",
			domain.ErrUnknownEntityType, loser.EntityType, winner.EntityType)
	}

	if err := s.entities.Merge(ctx, winnerID, loserID); err != nil {
		return fmt.Errorf("merge entity %d into %d: %w", loserID, winnerID, err)
	}

	s.metrics.EntityMerges.Inc()
	logger.Info(ctx, "Entities merged",
		"winner_id", winnerID,
		"loser_id", loserID,
		"entity_type", winner.EntityType,
	)
	return nil
}

// Reconcile sweeps alias overlaps left behind by concurrent resolution.
// Overlapping entities that clear the batch threshold merge automatically,
// winner chosen by mention count then lower id; the rest are flagged and
// logged for review.
func (s *ReconcilerService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	defer logger.LogDuration(ctx, "Alias reconciliation completed")()

	overlaps, err := s.entities.FindAliasOverlaps(ctx)
	if err != nil {
		return nil, fmt.Errorf("find alias overlaps: %w", err)
	}

	report := &ReconcileReport{OverlapsFound: len(overlaps)}
	for _, overlap := range overlaps {
		merged, err := s.reconcileOverlap(ctx, overlap)
		if err != nil {
			logger.Error(ctx, "Overlap reconciliation failed",
				"entity_type", overlap.EntityType,
				"normalized_name", overlap.NormalizedName,
				"error", err,
			)
			report.Flagged++
			continue
		}
		if merged {
			report.Merged++
		} else {
			report.Flagged++
		}
	}
	return report, nil
}

func (s *ReconcilerService) reconcileOverlap(ctx context.Context, overlap domain.AliasOverlap) (bool, error) {
	entities := make([]*domain.Entity, 0, len(overlap.EntityIDs))
	for _, id := range overlap.EntityIDs {
		entity, err := s.entities.FindByID(ctx, id)
		if err != nil {
			return false, err
		}
		if entity != nil && !entity.Merged() {
			entities = append(entities, entity)
		}
	}
	if len(entities) < 2 {
		return false, nil
	}

	winner := entities[0]
	for _, e := range entities[1:] {
		if e.MentionCount > winner.MentionCount ||
			(e.MentionCount == winner.MentionCount && e.ID < winner.ID) {
			winner = e
		}
	}

	merged := false
	for _, loser := range entities {
		if loser.ID == winner.ID {
			continue
		}
		score := domain.Similarity(winner.NormalizedName, loser.NormalizedName)
		if score < s.threshold {
			logger.Warn(ctx, "Alias overlap below batch threshold, flagged for review",
				"entity_type", overlap.EntityType,
				"normalized_name", overlap.NormalizedName,
				"winner_id", winner.ID,
				"loser_id", loser.ID,
				"score", score,
			)
			continue
		}
		if err := s.MergeEntities(ctx, winner.ID, loser.ID); err != nil {
			return merged, err
		}
		merged = true
	}
	return merged, nil
}
