// Package application orchestrates event risk scoring: quantitative
// sub-scores, the optional qualitative call, persistence and the deferred
// trending contributions.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	entitydomain "github.com/stdin/venezuelawatch-sub000/internal/entity/domain"
	"github.com/stdin/venezuelawatch-sub000/internal/risk/domain"
	trendingapp "github.com/stdin/venezuelawatch-sub000/internal/trending/application"
	trendingdomain "github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
	"github.com/stdin/venezuelawatch-sub000/pkg/metrics"
	"github.com/stdin/venezuelawatch-sub000/pkg/utils"
)

// RiskService scores events exactly once and feeds the score-dependent
// trending metrics once the assessment exists.
type RiskService struct {
	scorer      *domain.Scorer
	assessments domain.AssessmentRepository
	mentions    entitydomain.MentionRepository
	qualitative domain.QualitativeScorer
	trending    *trendingapp.TrendingService
	idGen       *utils.SnowflakeID
	metrics     *metrics.Metrics
}

// NewRiskService creates a RiskService. qualitative may be nil when the
// external scorer is disabled; every event then scores quantitative-only.
func NewRiskService(
	scorer *domain.Scorer,
	assessments domain.AssessmentRepository,
	mentions entitydomain.MentionRepository,
	qualitative domain.QualitativeScorer,
	trending *trendingapp.TrendingService,
	idGen *utils.SnowflakeID,
	m *metrics.Metrics,
) *RiskService {
	return &RiskService{
		scorer:      scorer,
		assessments: assessments,
		mentions:    mentions,
		qualitative: qualitative,
		trending:    trending,
		idGen:       idGen,
		metrics:     m,
	}
}

// ScoreEvent produces the assessment for one event. Scoring the same event
// again returns the stored assessment unchanged. The qualitative call runs
// under its own deadline; on timeout or failure the event degrades to
// quantitative-only scoring rather than blocking the pipeline.
func (s *RiskService) ScoreEvent(
	ctx context.Context,
	eventID string,
	eventText string,
	signals domain.Signals,
	sanctionsFlag bool,
	occurredAt time.Time,
) (*domain.RiskAssessment, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}

	existing, err := s.assessments.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	qualitative, explanation := s.qualitativeScore(ctx, eventID, eventText)

	assessment := s.scorer.Score(signals, qualitative)
	assessment.ID = s.idGen.Generate()
	assessment.EventID = eventID
	assessment.SanctionsHit = sanctionsFlag
	assessment.Explanation = explanation

	rawSignals, err := json.Marshal(signals)
	if err != nil {
		return nil, fmt.Errorf("encode signals: %w", err)
	}
	assessment.RawSignals = string(rawSignals)

	duplicate, err := s.assessments.Create(ctx, &assessment)
	if err != nil {
		return nil, fmt.Errorf("store assessment: %w", err)
	}
	if duplicate {
		// Lost the race to a concurrent scorer of the same event. The stored
		// row wins; this computation is discarded.
		stored, err := s.assessments.FindByEventID(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("reload assessment: %w", err)
		}
		if stored == nil {
			return nil, fmt.Errorf("assessment for event %s vanished after duplicate create", eventID)
		}
		return stored, nil
	}

	switch assessment.ScoringMethod {
	case domain.MethodHybrid:
		s.metrics.AssessmentsHybrid.Inc()
	case domain.MethodQuantitativeOnly:
		s.metrics.AssessmentsQuantOnly.Inc()
	}

	s.recordTrendingContributions(ctx, &assessment, occurredAt)

	logger.Info(ctx, "Event scored",
		"event_id", eventID,
		"composite_score", assessment.CompositeScore,
		"severity", assessment.Severity,
		"method", assessment.ScoringMethod,
	)
	return &assessment, nil
}

// GetAssessment returns the stored assessment for eventID.
func (s *RiskService) GetAssessment(ctx context.Context, eventID string) (*domain.RiskAssessment, error) {
	assessment, err := s.assessments.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		return nil, domain.ErrAssessmentNotFound
	}
	return assessment, nil
}

// Recompute re-derives an event's scores from the signals captured at
// ingest time, under the current scoring configuration. The stored
// qualitative score is reused; the external scorer is not called again.
// Trending contributions are not replayed; a full rebuild handles that.
func (s *RiskService) Recompute(ctx context.Context, eventID string) (*domain.RiskAssessment, error) {
	existing, err := s.assessments.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrAssessmentNotFound
	}

	var signals domain.Signals
	if existing.RawSignals != "" {
		if err := json.Unmarshal([]byte(existing.RawSignals), &signals); err != nil {
			return nil, fmt.Errorf("decode stored signals for event %s: %w", eventID, err)
		}
	}

	rescored := s.scorer.Score(signals, existing.QualitativeScore)
	existing.QuantitativeScore = rescored.QuantitativeScore
	existing.QualitativeScore = rescored.QualitativeScore
	existing.CompositeScore = rescored.CompositeScore
	existing.Severity = rescored.Severity
	existing.ScoringMethod = rescored.ScoringMethod

	if err := s.assessments.Replace(ctx, existing); err != nil {
		return nil, fmt.Errorf("store recomputed assessment: %w", err)
	}

	logger.Info(ctx, "Assessment recomputed",
		"event_id", eventID,
		"composite_score", existing.CompositeScore,
		"severity", existing.Severity,
	)
	return existing, nil
}

func (s *RiskService) qualitativeScore(ctx context.Context, eventID, eventText string) (*float64, string) {
	if s.qualitative == nil || eventText == "" {
		return nil, ""
	}

	start := time.Now()
	score, explanation, err := s.qualitative.GetQualitativeScore(ctx, eventText)
	s.metrics.QualitativeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.QualitativeTimeouts.Inc()
		logger.Warn(ctx, "Qualitative scoring unavailable, degrading to quantitative-only",
			"event_id", eventID,
			"error", err,
		)
		return nil, ""
	}
	return &score, explanation
}

// recordTrendingContributions applies the score-dependent weights that were
// deferred until the assessment existed. Mention rows carry the event link,
// so every entity resolved from this event picks up its contribution.
func (s *RiskService) recordTrendingContributions(ctx context.Context, assessment *domain.RiskAssessment, occurredAt time.Time) {
	eventMentions, err := s.mentions.ListByEvent(ctx, assessment.EventID)
	if err != nil {
		logger.Error(ctx, "Failed to load mentions for trending contributions",
			"event_id", assessment.EventID,
			"error", err,
		)
		return
	}

	for _, mention := range eventMentions {
		s.trending.Record(trendingdomain.MetricRisk, mention.EntityID, assessment.CompositeScore/100, occurredAt)
		if assessment.SanctionsHit {
			s.trending.Record(trendingdomain.MetricSanctions, mention.EntityID, 1, occurredAt)
		}
	}
}
