package domain

import "context"

// AssessmentRepository stores one immutable assessment per event.
type AssessmentRepository interface {
	// Create inserts the assessment. The unique event key makes scoring
	// exactly-once: a concurrent duplicate fails and the caller reloads.
	Create(ctx context.Context, assessment *RiskAssessment) (duplicate bool, err error)
	// FindByEventID returns (nil, nil) when the event has not been scored.
	FindByEventID(ctx context.Context, eventID string) (*RiskAssessment, error)
	// Replace overwrites an existing assessment during an explicit,
	// separately authorized recomputation.
	Replace(ctx context.Context, assessment *RiskAssessment) error
}

// QualitativeScorer is the external scoring capability. Implementations
// must respect ctx deadlines; failures map to ErrQualitativeUnavailable.
type QualitativeScorer interface {
	GetQualitativeScore(ctx context.Context, eventText string) (score float64, explanation string, err error)
}
