package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	entityapp "github.com/stdin/venezuelawatch-sub000/internal/entity/application"
	entitydomain "github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	riskapp "github.com/stdin/venezuelawatch-sub000/internal/risk/application"
	riskdomain "github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
	trendingapp "github.com/stdin/venezuelawatch-sub000/internal/trending/application"
	trendingdomain "github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/config"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPayloadValidate(t *testing.T) {
	valid := EventPayload{
		EventID: "evt-1",
		Mentions: []MentionPayload{
			{RawName: "Nicolás Maduro", Type: "PERSON"},
		},
	}
	require.NoError(t, valid.Validate())

	missingID := valid
	missingID.EventID = ""
	assert.ErrorIs(t, missingID.Validate(), ErrInvalidPayload)

	noMentions := valid
	noMentions.Mentions = nil
	assert.ErrorIs(t, noMentions.Validate(), ErrInvalidPayload)

	emptyName := valid
	emptyName.Mentions = []MentionPayload{{RawName: "", Type: "PERSON"}}
	assert.ErrorIs(t, emptyName.Validate(), ErrInvalidPayload)

	badType := valid
	badType.Mentions = []MentionPayload{{RawName: "PDVSA", Type: "COMPANY"}}
	assert.ErrorIs(t, badType.Validate(), ErrInvalidPayload)
}

func TestEventPayloadDecodesMissingSignalsAsNil(t *testing.T) {
	raw := `{
		"event_id": "evt-9",
		"mentions": [{"raw_name": "PDVSA", "type": "ORGANIZATION"}],
		"signals": {"goldstein": -9, "theme_count": 6}
	}`

	var payload EventPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	require.NotNil(t, payload.Signals.Goldstein)
	assert.Equal(t, -9.0, *payload.Signals.Goldstein)
	assert.Nil(t, payload.Signals.Tone)
	assert.Nil(t, payload.Signals.Themes)
	require.NotNil(t, payload.Signals.ThemeCount)
	assert.Equal(t, 6, *payload.Signals.ThemeCount)
}

type memEntityRepository struct {
	mu       sync.Mutex
	nextID   uint64
	entities map[uint64]*entitydomain.Entity
	nameKeys map[string]uint64
}

func newMemEntityRepository() *memEntityRepository {
	return &memEntityRepository{
		entities: make(map[uint64]*entitydomain.Entity),
		nameKeys: make(map[string]uint64),
	}
}

func entityNameKey(entityType entitydomain.EntityType, normalized string) string {
	return string(entityType) + "\x00" + normalized
}

func (r *memEntityRepository) FindByID(_ context.Context, id uint64) (*entitydomain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return nil, nil
	}
	clone := *e
	return &clone, nil
}

func (r *memEntityRepository) FindByNormalizedName(ctx context.Context, entityType entitydomain.EntityType, normalized string) (*entitydomain.Entity, error) {
	r.mu.Lock()
	id, ok := r.nameKeys[entityNameKey(entityType, normalized)]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

func (r *memEntityRepository) ListCandidates(_ context.Context, entityType entitydomain.EntityType) ([]*entitydomain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entitydomain.Entity
	for _, e := range r.entities {
		if e.EntityType == entityType && !e.Merged() {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memEntityRepository) Create(_ context.Context, entity *entitydomain.Entity, rawName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityNameKey(entity.EntityType, entity.NormalizedName)
	if _, taken := r.nameKeys[key]; taken {
		return entitydomain.ErrNameKeyConflict
	}
	r.nextID++
	entity.ID = r.nextID
	entity.Aliases = []entitydomain.EntityAlias{{
		EntityID:       entity.ID,
		EntityType:     entity.EntityType,
		RawName:        rawName,
		NormalizedName: entity.NormalizedName,
	}}
	stored := *entity
	r.entities[entity.ID] = &stored
	r.nameKeys[key] = entity.ID
	return nil
}

func (r *memEntityRepository) AddAlias(_ context.Context, entityID uint64, entityType entitydomain.EntityType, rawName, normalized string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityID]
	if !ok {
		return entitydomain.ErrEntityNotFound
	}
	for _, a := range e.Aliases {
		if a.RawName == rawName {
			return nil
		}
	}
	e.Aliases = append(e.Aliases, entitydomain.EntityAlias{
		EntityID:       entityID,
		EntityType:     entityType,
		RawName:        rawName,
		NormalizedName: normalized,
	})
	key := entityNameKey(entityType, normalized)
	if _, taken := r.nameKeys[key]; !taken {
		r.nameKeys[key] = entityID
	}
	return nil
}

func (r *memEntityRepository) RecordMentionSeen(_ context.Context, entityID uint64, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityID]
	if !ok {
		return entitydomain.ErrEntityNotFound
	}
	e.MentionCount++
	if seenAt.After(e.LastSeenAt) {
		e.LastSeenAt = seenAt
	}
	return nil
}

func (r *memEntityRepository) Merge(context.Context, uint64, uint64) error { return nil }

func (r *memEntityRepository) FindAliasOverlaps(context.Context) ([]entitydomain.AliasOverlap, error) {
	return nil, nil
}

func (r *memEntityRepository) mentionCount(id uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entities[id]; ok {
		return e.MentionCount
	}
	return 0
}

// memMentionRepository enforces the (event, entity) unique key like the
// MySQL mention log does.
type memMentionRepository struct {
	mu       sync.Mutex
	mentions []*entitydomain.Mention
}

func (r *memMentionRepository) Create(_ context.Context, mention *entitydomain.Mention) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mentions {
		if m.EventID == mention.EventID && m.EntityID == mention.EntityID {
			return true, nil
		}
	}
	clone := *mention
	r.mentions = append(r.mentions, &clone)
	return false, nil
}

func (r *memMentionRepository) ListByEntity(context.Context, uint64, time.Time, time.Time, int, int) ([]*entitydomain.Mention, int64, error) {
	return nil, 0, nil
}

func (r *memMentionRepository) ListByEvent(_ context.Context, eventID string) ([]*entitydomain.Mention, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entitydomain.Mention
	for _, m := range r.mentions {
		if m.EventID == eventID {
			clone := *m
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memMentionRepository) ListContributionsSince(context.Context, time.Time) ([]*entitydomain.MentionContribution, error) {
	return nil, nil
}

// failOnceAssessmentRepository rejects the first Create with a transient
// error, simulating a database hiccup mid-event.
type failOnceAssessmentRepository struct {
	mu      sync.Mutex
	failed  bool
	byEvent map[string]*riskdomain.RiskAssessment
}

func (r *failOnceAssessmentRepository) Create(_ context.Context, a *riskdomain.RiskAssessment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.failed {
		r.failed = true
		return false, errors.New("connection reset")
	}
	if _, exists := r.byEvent[a.EventID]; exists {
		return true, nil
	}
	clone := *a
	r.byEvent[a.EventID] = &clone
	return false, nil
}

func (r *failOnceAssessmentRepository) FindByEventID(_ context.Context, eventID string) (*riskdomain.RiskAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byEvent[eventID]
	if !ok {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}

func (r *failOnceAssessmentRepository) Replace(_ context.Context, a *riskdomain.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *a
	r.byEvent[a.EventID] = &clone
	return nil
}

type memLeaderboards struct{}

func (memLeaderboards) Publish(context.Context, trendingdomain.Metric, []trendingdomain.RankedEntity) error {
	return nil
}

func (memLeaderboards) Top(context.Context, trendingdomain.Metric, int) ([]trendingdomain.RankedEntity, error) {
	return nil, nil
}

func newTestPipeline(assessments riskdomain.AssessmentRepository) (*Pipeline, *memEntityRepository, *memMentionRepository, *trendingdomain.Engine) {
	entityRepo := newMemEntityRepository()
	mentionRepo := &memMentionRepository{}
	engine := trendingdomain.NewEngine(168*time.Hour, 30*24*time.Hour)
	m := metrics.New("test")
	idGen := utils.NewSnowflakeID(1)

	trending := trendingapp.NewTrendingService(engine, mentionRepo, memLeaderboards{}, m, 100)
	matchCfg := config.MatchingConfig{RealtimeThreshold: 0.85, BatchThreshold: 0.90, MaxCreateRetries: 3}
	resolver := entityapp.NewResolverService(entityRepo, entitydomain.NewMatcher(), matchCfg, m)
	recorder := entityapp.NewRecorderService(mentionRepo, entityRepo, trending, idGen, m)

	scorer := riskdomain.NewScorer(riskdomain.ScorerConfig{
		SignalWeights: riskdomain.SignalWeights{
			Conflict: 0.25, Tone: 0.25, ThemePresence: 0.25, ThemeIntensity: 0.25,
		},
		CompositeWeights: riskdomain.CompositeWeights{Quantitative: 0.6, Qualitative: 0.4},
		SeverityCutoffs:  [4]float64{80, 60, 40, 20},
	})
	risk := riskapp.NewRiskService(scorer, assessments, mentionRepo, nil, trending, idGen, m)

	return NewPipeline(resolver, recorder, risk), entityRepo, mentionRepo, engine
}

func TestProcessRetryDoesNotDuplicateMentions(t *testing.T) {
	assessments := &failOnceAssessmentRepository{byEvent: make(map[string]*riskdomain.RiskAssessment)}
	pipeline, entityRepo, mentionRepo, engine := newTestPipeline(assessments)

	occurredAt := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	payload := &EventPayload{
		EventID:    "evt-retry",
		OccurredAt: occurredAt,
		Text:       "coverage",
		Mentions: []MentionPayload{
			{RawName: "Nicolás Maduro", Type: "PERSON"},
		},
	}

	// First pass records the mention, then fails persisting the assessment.
	err := pipeline.Process(context.Background(), payload)
	require.Error(t, err)

	mentions, listErr := mentionRepo.ListByEvent(context.Background(), "evt-retry")
	require.NoError(t, listErr)
	require.Len(t, mentions, 1)
	entityID := mentions[0].EntityID

	// Reprocessing must converge, not append a second mention or re-count.
	require.NoError(t, pipeline.Process(context.Background(), payload))

	mentions, listErr = mentionRepo.ListByEvent(context.Background(), "evt-retry")
	require.NoError(t, listErr)
	assert.Len(t, mentions, 1)
	assert.Equal(t, uint64(1), entityRepo.mentionCount(entityID))
	assert.InDelta(t, 1.0, engine.ScoreAt(trendingdomain.MetricMentions, entityID, occurredAt), 1e-9)
}

func TestProcessIdempotentAfterSuccess(t *testing.T) {
	assessments := &failOnceAssessmentRepository{failed: true, byEvent: make(map[string]*riskdomain.RiskAssessment)}
	pipeline, entityRepo, mentionRepo, engine := newTestPipeline(assessments)

	occurredAt := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	payload := &EventPayload{
		EventID:    "evt-redeliver",
		OccurredAt: occurredAt,
		Mentions: []MentionPayload{
			{RawName: "PDVSA", Type: "ORGANIZATION"},
		},
	}

	require.NoError(t, pipeline.Process(context.Background(), payload))
	// A redelivered message replays the whole event.
	require.NoError(t, pipeline.Process(context.Background(), payload))

	mentions, err := mentionRepo.ListByEvent(context.Background(), "evt-redeliver")
	require.NoError(t, err)
	assert.Len(t, mentions, 1)
	entityID := mentions[0].EntityID
	assert.Equal(t, uint64(1), entityRepo.mentionCount(entityID))
	assert.InDelta(t, 1.0, engine.ScoreAt(trendingdomain.MetricMentions, entityID, occurredAt), 1e-9)
}
