// Package domain implements hybrid risk scoring: deterministic quantitative
// sub-scores combined with an externally supplied qualitative score, mapped
// to a discrete severity tier.
package domain

import (
	"errors"
	"time"
)

// Severity is one of five ordered tiers derived from the composite score.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityMinimal  Severity = "MINIMAL"
)

// ScoringMethod records whether qualitative input was available.
type ScoringMethod string

const (
	MethodHybrid           ScoringMethod = "HYBRID"
	MethodQuantitativeOnly ScoringMethod = "QUANTITATIVE_ONLY"
)

var (
	// ErrQualitativeUnavailable marks a qualitative call timeout or failure.
	// It is recovered by degrading to quantitative-only scoring, never
	// surfaced to callers of Score.
	ErrQualitativeUnavailable = errors.New("qualitative score unavailable")
	// ErrAssessmentNotFound is returned for lookups of unscored events.
	ErrAssessmentNotFound = errors.New("risk assessment not found")
)

// RiskAssessment is the scoring outcome for one event. Created exactly once
// per event and immutable thereafter; recomputation is an explicit
// administrative operation.
type RiskAssessment struct {
	ID      int64  `gorm:"primaryKey;column:id" json:"id"`
	EventID string `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex" json:"event_id"`

	QuantitativeScore float64  `gorm:"column:quantitative_score;not null" json:"quantitative_score"`
	QualitativeScore  *float64 `gorm:"column:qualitative_score" json:"qualitative_score,omitempty"`
	CompositeScore    float64  `gorm:"column:composite_score;not null" json:"composite_score"`

	Severity      Severity      `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	ScoringMethod ScoringMethod `gorm:"column:scoring_method;type:varchar(24);not null" json:"scoring_method"`

	// SanctionsHit is the event's sanctions flag, denormalized for trending.
	SanctionsHit bool `gorm:"column:sanctions_hit;not null;default:false" json:"sanctions_hit"`

	// RawSignals preserves the scoring inputs as JSON so recomputation uses
	// exactly what was observed at ingest time.
	RawSignals  string `gorm:"column:raw_signals;type:text" json:"-"`
	Explanation string `gorm:"column:explanation;type:text" json:"explanation,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName maps RiskAssessment to its table.
func (RiskAssessment) TableName() string {
	return "risk_assessments"
}
