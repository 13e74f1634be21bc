// Package application implements entity resolution, mention recording and
// the batch alias reconciliation over the domain model.
package application

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/config"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
)

// lockStripes is the size of the per-name lock table. Power of two so the
// stripe index is a cheap mask.
const lockStripes = 256

// createRetryBase is the backoff unit between create-race retries; the
// actual delay is jittered below this value.
const createRetryBase = 25 * time.Millisecond

// Resolution is the outcome of resolving one raw mention string.
type Resolution struct {
	Entity *domain.Entity
	// Score is the similarity that produced the link: 1.0 for exact alias
	// hits and for newly created entities.
	Score float64
	// Created reports whether this resolution created a new entity.
	Created bool
}

// ResolverService maps raw name strings to canonical entities. Concurrent
// resolutions of the same normalized name are serialized on a striped lock
// so at most one of them creates; the database name-key unique index backs
// the same guarantee across processes.
type ResolverService struct {
	entities   domain.EntityRepository
	matcher    *domain.Matcher
	metrics    *metrics.Metrics
	threshold  float64
	maxRetries int

	locks [lockStripes]sync.Mutex
}

// NewResolverService creates a ResolverService using the realtime matching
// threshold.
func NewResolverService(
	entities domain.EntityRepository,
	matcher *domain.Matcher,
	cfg config.MatchingConfig,
	m *metrics.Metrics,
) *ResolverService {
	return &ResolverService{
		entities:   entities,
		matcher:    matcher,
		metrics:    m,
		threshold:  cfg.RealtimeThreshold,
		maxRetries: cfg.MaxCreateRetries,
	}
}

// Resolve maps one raw mention string of a known type to its canonical
// entity, creating the entity when nothing matches. The raw spelling is
// recorded as an alias of whichever entity wins.
func (s *ResolverService) Resolve(ctx context.Context, rawName string, entityType domain.EntityType) (*Resolution, error) {
	normalized := domain.Normalize(rawName)
	if normalized == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrEmptyName, rawName)
	}
	raw := strings.Join(strings.Fields(rawName), " ")

	unlock := s.lockName(entityType, normalized)
	defer unlock()

	// Exact fast path over the normalized-name index.
	entity, err := s.entities.FindByNormalizedName(ctx, entityType, normalized)
	if err != nil {
		return nil, fmt.Errorf("lookup normalized name: %w", err)
	}
	if entity != nil {
		if err := s.ensureAlias(ctx, entity, raw, normalized); err != nil {
			return nil, err
		}
		s.metrics.ResolutionsExact.Inc()
		return &Resolution{Entity: entity, Score: 1.0}, nil
	}

	// Fuzzy pass over same-type candidates.
	candidates, err := s.entities.ListCandidates(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if match, score := s.matcher.FindBestMatch(normalized, candidates, s.threshold); match != nil {
		if err := s.ensureAlias(ctx, match, raw, normalized); err != nil {
			return nil, err
		}
		s.metrics.ResolutionsFuzzy.Inc()
		s.metrics.MatchScore.Observe(score)
		logger.Debug(ctx, "Fuzzy match accepted",
			"raw_name", raw,
			"entity_id", match.ID,
			"score", score,
		)
		return &Resolution{Entity: match, Score: score}, nil
	}

	return s.create(ctx, raw, normalized, entityType)
}

// create inserts a new entity, retrying as a lookup when a concurrent
// writer claims the name first. The new-entity path and the lookup path
// converge on the same winner, so N concurrent resolutions of a never-seen
// name produce exactly one entity.
func (s *ResolverService) create(ctx context.Context, raw, normalized string, entityType domain.EntityType) (*Resolution, error) {
	for attempt := 0; ; attempt++ {
		now := time.Now()
		entity := &domain.Entity{
			CanonicalName:  raw,
			NormalizedName: normalized,
			EntityType:     entityType,
			LastSeenAt:     now,
		}

		err := s.entities.Create(ctx, entity, raw)
		if err == nil {
			s.metrics.ResolutionsCreated.Inc()
			logger.Info(ctx, "Entity created",
				"entity_id", entity.ID,
				"entity_type", entityType,
				"canonical_name", raw,
			)
			return &Resolution{Entity: entity, Score: 1.0, Created: true}, nil
		}
		if !errors.Is(err, domain.ErrNameKeyConflict) {
			return nil, fmt.Errorf("create entity: %w", err)
		}

		// Lost the create race: the winner's row exists, so the lookup
		// should now succeed.
		s.metrics.ResolutionRetries.Inc()
		winner, lookupErr := s.entities.FindByNormalizedName(ctx, entityType, normalized)
		if lookupErr != nil {
			return nil, fmt.Errorf("lookup after create conflict: %w", lookupErr)
		}
		if winner != nil {
			if aliasErr := s.ensureAlias(ctx, winner, raw, normalized); aliasErr != nil {
				return nil, aliasErr
			}
			return &Resolution{Entity: winner, Score: 1.0}, nil
		}

		if attempt >= s.maxRetries {
			return nil, fmt.Errorf("%w: gave up resolving %q after %d retries",
				domain.ErrNameKeyConflict, normalized, attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(utils.JitteredDelay(createRetryBase)):
		}
	}
}

// ensureAlias records a newly observed raw spelling on the resolved entity.
func (s *ResolverService) ensureAlias(ctx context.Context, entity *domain.Entity, raw, normalized string) error {
	if entity.HasRawAlias(raw) {
		return nil
	}
	if err := s.entities.AddAlias(ctx, entity.ID, entity.EntityType, raw, normalized); err != nil {
		return fmt.Errorf("record alias %q: %w", raw, err)
	}
	entity.Aliases = append(entity.Aliases, domain.EntityAlias{
		EntityID:       entity.ID,
		EntityType:     entity.EntityType,
		RawName:        raw,
		NormalizedName: normalized,
	})
	return nil
}

// GetEntity returns one entity with aliases, following a merge redirect.
func (s *ResolverService) GetEntity(ctx context.Context, id uint64) (*domain.Entity, error) {
	entity, err := s.entities.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, domain.ErrEntityNotFound
	}
	if entity.Merged() {
		winner, err := s.entities.FindByID(ctx, *entity.MergedIntoID)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			return winner, nil
		}
	}
	return entity, nil
}

func (s *ResolverService) lockName(entityType domain.EntityType, normalized string) func() {
	h := fnv.New32a()
	h.Write([]byte(entityType))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	mu := &s.locks[h.Sum32()&(lockStripes-1)]
	mu.Lock()
	return mu.Unlock
}
