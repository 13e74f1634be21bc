package application

import (
	"context"
	"sync"
	"testing"
	"time"

	entitydomain "github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
	trendingapp "github.com/stdin/venezuelawatch-sub000/internal/trending/application"
	trendingdomain "github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssessmentRepository struct {
	mu      sync.Mutex
	byEvent map[string]*domain.RiskAssessment
	creates int
}

func newFakeAssessmentRepository() *fakeAssessmentRepository {
	return &fakeAssessmentRepository{byEvent: make(map[string]*domain.RiskAssessment)}
}

func (r *fakeAssessmentRepository) Create(_ context.Context, a *domain.RiskAssessment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if _, exists := r.byEvent[a.EventID]; exists {
		return true, nil
	}
	clone := *a
	r.byEvent[a.EventID] = &clone
	return false, nil
}

func (r *fakeAssessmentRepository) FindByEventID(_ context.Context, eventID string) (*domain.RiskAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byEvent[eventID]
	if !ok {
		return nil, nil
	}
	clone := *a
	return &clone, nil
}

func (r *fakeAssessmentRepository) Replace(_ context.Context, a *domain.RiskAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *a
	r.byEvent[a.EventID] = &clone
	return nil
}

type fakeMentionRepository struct {
	byEvent map[string][]*entitydomain.Mention
}

func (r *fakeMentionRepository) Create(context.Context, *entitydomain.Mention) (bool, error) {
	return false, nil
}

func (r *fakeMentionRepository) ListByEntity(context.Context, uint64, time.Time, time.Time, int, int) ([]*entitydomain.Mention, int64, error) {
	return nil, 0, nil
}

func (r *fakeMentionRepository) ListByEvent(_ context.Context, eventID string) ([]*entitydomain.Mention, error) {
	return r.byEvent[eventID], nil
}

func (r *fakeMentionRepository) ListContributionsSince(context.Context, time.Time) ([]*entitydomain.MentionContribution, error) {
	return nil, nil
}

type noopLeaderboards struct{}

func (noopLeaderboards) Publish(context.Context, trendingdomain.Metric, []trendingdomain.RankedEntity) error {
	return nil
}

func (noopLeaderboards) Top(context.Context, trendingdomain.Metric, int) ([]trendingdomain.RankedEntity, error) {
	return nil, nil
}

// unavailableScorer simulates a qualitative endpoint that always times out.
type unavailableScorer struct{ calls int }

func (s *unavailableScorer) GetQualitativeScore(context.Context, string) (float64, string, error) {
	s.calls++
	return 0, "", domain.ErrQualitativeUnavailable
}

type fixedScorer struct {
	score       float64
	explanation string
}

func (s fixedScorer) GetQualitativeScore(context.Context, string) (float64, string, error) {
	return s.score, s.explanation, nil
}

func testScorer() *domain.Scorer {
	return domain.NewScorer(domain.ScorerConfig{
		SignalWeights: domain.SignalWeights{
			Conflict: 0.25, Tone: 0.25, ThemePresence: 0.25, ThemeIntensity: 0.25,
		},
		CompositeWeights: domain.CompositeWeights{Quantitative: 0.6, Qualitative: 0.4},
		SeverityCutoffs:  [4]float64{80, 60, 40, 20},
	})
}

func newTestRiskService(
	assessments domain.AssessmentRepository,
	mentions entitydomain.MentionRepository,
	qualitative domain.QualitativeScorer,
) (*RiskService, *trendingdomain.Engine) {
	engine := trendingdomain.NewEngine(168*time.Hour, 30*24*time.Hour)
	trending := trendingapp.NewTrendingService(engine, mentions, noopLeaderboards{}, metrics.New("test"), 100)
	svc := NewRiskService(testScorer(), assessments, mentions, qualitative, trending, utils.NewSnowflakeID(1), metrics.New("test"))
	return svc, engine
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestScoreEventDegradesOnQualitativeFailure(t *testing.T) {
	repo := newFakeAssessmentRepository()
	mentions := &fakeMentionRepository{byEvent: map[string][]*entitydomain.Mention{}}
	svc, _ := newTestRiskService(repo, mentions, &unavailableScorer{})

	signals := domain.Signals{Conflict: fptr(-9), Tone: fptr(-80)}
	assessment, err := svc.ScoreEvent(context.Background(), "evt-1", "some coverage", signals, false, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.MethodQuantitativeOnly, assessment.ScoringMethod)
	assert.Nil(t, assessment.QualitativeScore)
	assert.Equal(t, assessment.QuantitativeScore, assessment.CompositeScore)
}

func TestScoreEventHybrid(t *testing.T) {
	repo := newFakeAssessmentRepository()
	mentions := &fakeMentionRepository{byEvent: map[string][]*entitydomain.Mention{}}
	svc, _ := newTestRiskService(repo, mentions, fixedScorer{score: 90, explanation: "credible escalation"})

	signals := domain.Signals{Conflict: fptr(-9), Tone: fptr(-80), Themes: []string{"A", "B", "C"}, ThemeCount: iptr(6)}
	assessment, err := svc.ScoreEvent(context.Background(), "evt-2", "some coverage", signals, false, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.MethodHybrid, assessment.ScoringMethod)
	require.NotNil(t, assessment.QualitativeScore)
	assert.Equal(t, 90.0, *assessment.QualitativeScore)
	assert.Equal(t, "credible escalation", assessment.Explanation)
	assert.InDelta(t, 0.6*assessment.QuantitativeScore+0.4*90, assessment.CompositeScore, 1e-9)
}

func TestScoreEventIdempotent(t *testing.T) {
	repo := newFakeAssessmentRepository()
	mentions := &fakeMentionRepository{byEvent: map[string][]*entitydomain.Mention{}}
	scorer := &unavailableScorer{}
	svc, _ := newTestRiskService(repo, mentions, scorer)

	signals := domain.Signals{Conflict: fptr(-5)}
	first, err := svc.ScoreEvent(context.Background(), "evt-3", "text", signals, false, time.Now())
	require.NoError(t, err)
	second, err := svc.ScoreEvent(context.Background(), "evt-3", "text", signals, false, time.Now())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CompositeScore, second.CompositeScore)
	assert.Equal(t, 1, repo.creates)
	assert.Equal(t, 1, scorer.calls)
}

func TestScoreEventRecordsTrendingContributions(t *testing.T) {
	occurredAt := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	repo := newFakeAssessmentRepository()
	mentions := &fakeMentionRepository{byEvent: map[string][]*entitydomain.Mention{
		"evt-4": {
			{EntityID: 11, EventID: "evt-4", MentionedAt: occurredAt},
			{EntityID: 12, EventID: "evt-4", MentionedAt: occurredAt},
		},
	}}
	svc, engine := newTestRiskService(repo, mentions, &unavailableScorer{})

	signals := domain.Signals{Conflict: fptr(-9), Tone: fptr(-80), Themes: []string{"A", "B", "C"}, ThemeCount: iptr(6)}
	assessment, err := svc.ScoreEvent(context.Background(), "evt-4", "text", signals, true, occurredAt)
	require.NoError(t, err)

	for _, entityID := range []uint64{11, 12} {
		assert.InDelta(t, assessment.CompositeScore/100,
			engine.ScoreAt(trendingdomain.MetricRisk, entityID, occurredAt), 1e-9)
		assert.InDelta(t, 1.0,
			engine.ScoreAt(trendingdomain.MetricSanctions, entityID, occurredAt), 1e-9)
	}
}

func TestRecomputeUsesStoredSignals(t *testing.T) {
	repo := newFakeAssessmentRepository()
	mentions := &fakeMentionRepository{byEvent: map[string][]*entitydomain.Mention{}}
	svc, _ := newTestRiskService(repo, mentions, fixedScorer{score: 70})

	signals := domain.Signals{Conflict: fptr(-9), Tone: fptr(-80)}
	original, err := svc.ScoreEvent(context.Background(), "evt-5", "text", signals, false, time.Now())
	require.NoError(t, err)

	recomputed, err := svc.Recompute(context.Background(), "evt-5")
	require.NoError(t, err)

	assert.Equal(t, original.QuantitativeScore, recomputed.QuantitativeScore)
	assert.Equal(t, original.CompositeScore, recomputed.CompositeScore)
	assert.Equal(t, original.Severity, recomputed.Severity)
}

func TestRecomputeUnknownEvent(t *testing.T) {
	svc, _ := newTestRiskService(newFakeAssessmentRepository(), &fakeMentionRepository{byEvent: map[string][]*entitydomain.Mention{}}, nil)

	_, err := svc.Recompute(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAssessmentNotFound)
}

func TestGetAssessmentNotFound(t *testing.T) {
	svc, _ := newTestRiskService(newFakeAssessmentRepository(), &fakeMentionRepository{byEvent: map[string][]*entitydomain.Mention{}}, nil)

	_, err := svc.GetAssessment(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAssessmentNotFound)
}
