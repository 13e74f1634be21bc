package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/config"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEntityRepository is an in-memory EntityRepository with the same
// uniqueness semantics as the MySQL implementation: one entity per
// (type, normalized name) enforced at Create.
type fakeEntityRepository struct {
	mu       sync.Mutex
	nextID   uint64
	entities map[uint64]*domain.Entity
	nameKeys map[string]uint64
}

func newFakeEntityRepository() *fakeEntityRepository {
	return &fakeEntityRepository{
		entities: make(map[uint64]*domain.Entity),
		nameKeys: make(map[string]uint64),
	}
}

func nameKey(entityType domain.EntityType, normalized string) string {
	return string(entityType) + "\x00" + normalized
}

func (r *fakeEntityRepository) FindByID(_ context.Context, id uint64) (*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return nil, nil
	}
	clone := *e
	clone.Aliases = append([]domain.EntityAlias(nil), e.Aliases...)
	return &clone, nil
}

func (r *fakeEntityRepository) FindByNormalizedName(ctx context.Context, entityType domain.EntityType, normalized string) (*domain.Entity, error) {
	r.mu.Lock()
	id, ok := r.nameKeys[nameKey(entityType, normalized)]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

func (r *fakeEntityRepository) ListCandidates(_ context.Context, entityType domain.EntityType) ([]*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Entity
	for _, e := range r.entities {
		if e.EntityType == entityType && !e.Merged() {
			clone := *e
			clone.Aliases = append([]domain.EntityAlias(nil), e.Aliases...)
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeEntityRepository) Create(_ context.Context, entity *domain.Entity, rawName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nameKey(entity.EntityType, entity.NormalizedName)
	if _, taken := r.nameKeys[key]; taken {
		return domain.ErrNameKeyConflict
	}
	r.nextID++
	entity.ID = r.nextID
	entity.Aliases = []domain.EntityAlias{{
		EntityID:       entity.ID,
		EntityType:     entity.EntityType,
		RawName:        rawName,
		NormalizedName: entity.NormalizedName,
	}}
	stored := *entity
	stored.Aliases = append([]domain.EntityAlias(nil), entity.Aliases...)
	r.entities[entity.ID] = &stored
	r.nameKeys[key] = entity.ID
	return nil
}

func (r *fakeEntityRepository) AddAlias(_ context.Context, entityID uint64, entityType domain.EntityType, rawName, normalized string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityID]
	if !ok {
		return domain.ErrEntityNotFound
	}
	for _, a := range e.Aliases {
		if a.RawName == rawName {
			return nil
		}
	}
	e.Aliases = append(e.Aliases, domain.EntityAlias{
		EntityID:       entityID,
		EntityType:     entityType,
		RawName:        rawName,
		NormalizedName: normalized,
	})
	key := nameKey(entityType, normalized)
	if _, taken := r.nameKeys[key]; !taken {
		r.nameKeys[key] = entityID
	}
	return nil
}

func (r *fakeEntityRepository) RecordMentionSeen(_ context.Context, entityID uint64, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityID]
	if !ok {
		return domain.ErrEntityNotFound
	}
	e.MentionCount++
	if seenAt.After(e.LastSeenAt) {
		e.LastSeenAt = seenAt
	}
	return nil
}

func (r *fakeEntityRepository) Merge(_ context.Context, winnerID, loserID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	winner, ok := r.entities[winnerID]
	if !ok {
		return domain.ErrEntityNotFound
	}
	loser, ok := r.entities[loserID]
	if !ok {
		return domain.ErrEntityNotFound
	}
	for _, a := range loser.Aliases {
		exists := false
		for _, w := range winner.Aliases {
			if w.RawName == a.RawName {
				exists = true
				break
			}
		}
		if !exists {
			a.EntityID = winnerID
			winner.Aliases = append(winner.Aliases, a)
		}
	}
	loser.Aliases = nil
	for key, id := range r.nameKeys {
		if id == loserID {
			r.nameKeys[key] = winnerID
		}
	}
	winner.MentionCount += loser.MentionCount
	loser.MergedIntoID = &winnerID
	return nil
}

func (r *fakeEntityRepository) FindAliasOverlaps(context.Context) ([]domain.AliasOverlap, error) {
	return nil, nil
}

func (r *fakeEntityRepository) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entities {
		if !e.Merged() {
			n++
		}
	}
	return n
}

func newTestResolver(repo domain.EntityRepository) *ResolverService {
	cfg := config.MatchingConfig{RealtimeThreshold: 0.85, BatchThreshold: 0.90, MaxCreateRetries: 3}
	return NewResolverService(repo, domain.NewMatcher(), cfg, metrics.New("test"))
}

func TestResolveCreatesNewEntity(t *testing.T) {
	repo := newFakeEntityRepository()
	resolver := newTestResolver(repo)

	res, err := resolver.Resolve(context.Background(), "Nicolás Maduro", domain.EntityTypePerson)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Nicolás Maduro", res.Entity.CanonicalName)
	assert.Equal(t, "nicolas maduro", res.Entity.NormalizedName)
	assert.InDelta(t, 1.0, res.Score, 1e-12)
}

func TestResolveVariantSpellingsShareEntity(t *testing.T) {
	repo := newFakeEntityRepository()
	resolver := newTestResolver(repo)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "Nicolás Maduro", domain.EntityTypePerson)
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, "Nicolas Maduro", domain.EntityTypePerson)
	require.NoError(t, err)

	assert.Equal(t, first.Entity.ID, second.Entity.ID)
	assert.False(t, second.Created)

	stored, err := repo.FindByID(ctx, first.Entity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.HasRawAlias("Nicolás Maduro"))
	assert.True(t, stored.HasRawAlias("Nicolas Maduro"))
}

func TestResolveRejectsEmptyName(t *testing.T) {
	resolver := newTestResolver(newFakeEntityRepository())

	_, err := resolver.Resolve(context.Background(), "   ", domain.EntityTypePerson)
	assert.ErrorIs(t, err, domain.ErrEmptyName)
}

func TestResolveTypeScoping(t *testing.T) {
	repo := newFakeEntityRepository()
	resolver := newTestResolver(repo)
	ctx := context.Background()

	person, err := resolver.Resolve(ctx, "Miraflores", domain.EntityTypePerson)
	require.NoError(t, err)
	location, err := resolver.Resolve(ctx, "Miraflores", domain.EntityTypeLocation)
	require.NoError(t, err)

	assert.NotEqual(t, person.Entity.ID, location.Entity.ID)
}

func TestResolveFuzzyMatchRecordsAlias(t *testing.T) {
	repo := newFakeEntityRepository()
	resolver := newTestResolver(repo)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "Diosdado Cabello", domain.EntityTypePerson)
	require.NoError(t, err)

	// A close misspelling clears the realtime threshold and attaches to the
	// existing entity instead of creating a duplicate.
	second, err := resolver.Resolve(ctx, "Diosdado Cabelo", domain.EntityTypePerson)
	require.NoError(t, err)

	assert.Equal(t, first.Entity.ID, second.Entity.ID)
	assert.False(t, second.Created)
	assert.GreaterOrEqual(t, second.Score, 0.85)
	assert.Less(t, second.Score, 1.0)
	assert.Equal(t, 1, repo.liveCount())
}

func TestConcurrentResolveCreatesOneEntity(t *testing.T) {
	repo := newFakeEntityRepository()
	resolver := newTestResolver(repo)

	const goroutines = 16
	ids := make([]uint64, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "Vladimir Padrino López"
			if i%2 == 1 {
				name = "Vladimir Padrino Lopez"
			}
			res, err := resolver.Resolve(context.Background(), name, domain.EntityTypePerson)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = res.Entity.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < goroutines; i++ {
		assert.Equal(t, ids[0], ids[i], "goroutine %d resolved a different entity", i)
	}
	assert.Equal(t, 1, repo.liveCount())
}

func TestResolveRetriesAfterCreateConflict(t *testing.T) {
	repo := newFakeEntityRepository()
	conflicting := &conflictOnceRepository{fakeEntityRepository: repo}
	resolver := newTestResolver(conflicting)
	ctx := context.Background()

	// The first create attempt loses a simulated race; the retry lookup
	// must converge on the winner written by the "other" process.
	res, err := resolver.Resolve(ctx, "Tareck El Aissami", domain.EntityTypePerson)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, uint64(1), res.Entity.ID)
}

// conflictOnceRepository rejects the first Create and inserts the entity as
// if a concurrent process had won the race.
type conflictOnceRepository struct {
	*fakeEntityRepository
	conflicted bool
}

func (r *conflictOnceRepository) Create(ctx context.Context, entity *domain.Entity, rawName string) error {
	if !r.conflicted {
		r.conflicted = true
		winner := *entity
		if err := r.fakeEntityRepository.Create(ctx, &winner, rawName); err != nil {
			return fmt.Errorf("seed race winner: %w", err)
		}
		return domain.ErrNameKeyConflict
	}
	return r.fakeEntityRepository.Create(ctx, entity, rawName)
}
