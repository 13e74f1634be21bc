package domain

// Signal domains are fixed by the upstream feed, never fit from observed
// data, so scores cannot drift as the input distribution shifts.
const (
	conflictMin = -10.0
	conflictMax = 10.0
	toneMin     = -100.0
	toneMax     = 100.0

	// neutralScore is used when a signal is absent: absence of signal is not
	// evidence of absence of risk.
	neutralScore = 50.0
)

// Signals carries the raw quantitative inputs of one event. Nil pointers
// (and a nil Themes slice) mean the signal was not available; an empty
// Themes slice means theme data was present with zero high-risk tags.
type Signals struct {
	// Conflict is the conflict/cooperation scale value in [-10, +10]; more
	// negative means more conflictual.
	Conflict *float64 `json:"conflict,omitempty"`
	// Tone is the average document tone in [-100, +100]; more negative
	// means more negative coverage.
	Tone *float64 `json:"tone,omitempty"`
	// Themes are the high-risk theme tags present on the event.
	Themes []string `json:"themes,omitempty"`
	// ThemeCount is the total number of high-risk theme occurrences.
	ThemeCount *int `json:"theme_count,omitempty"`
}

// SignalWeights weights the four sub-scores; validated to sum to 1.0 at
// configuration load time, not here.
type SignalWeights struct {
	Conflict       float64
	Tone           float64
	ThemePresence  float64
	ThemeIntensity float64
}

// CompositeWeights combines quantitative and qualitative scores; validated
// to sum to 1.0 at configuration load time.
type CompositeWeights struct {
	Quantitative float64
	Qualitative  float64
}

// ScorerConfig is the validated scoring configuration.
type ScorerConfig struct {
	SignalWeights    SignalWeights
	CompositeWeights CompositeWeights
	// SeverityCutoffs are four strictly descending composite thresholds
	// splitting 0-100 into five tiers.
	SeverityCutoffs [4]float64
}

// Scorer computes risk assessments. Pure and deterministic: identical
// inputs under identical configuration yield identical assessments, with no
// hidden clock or randomness.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a Scorer from already-validated configuration.
func NewScorer(cfg ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score combines the quantitative sub-scores and, when supplied, the
// qualitative score into a composite with a derived severity. A nil
// qualitative score degrades to quantitative-only; it is never an error.
func (s *Scorer) Score(signals Signals, qualitative *float64) RiskAssessment {
	quant := s.QuantitativeScore(signals)

	assessment := RiskAssessment{
		QuantitativeScore: quant,
	}

	if qualitative != nil {
		q := clamp(*qualitative, 0, 100)
		assessment.QualitativeScore = &q
		assessment.CompositeScore = s.cfg.CompositeWeights.Quantitative*quant +
			s.cfg.CompositeWeights.Qualitative*q
		assessment.ScoringMethod = MethodHybrid
	} else {
		assessment.CompositeScore = quant
		assessment.ScoringMethod = MethodQuantitativeOnly
	}

	assessment.Severity = s.SeverityFor(assessment.CompositeScore)
	return assessment
}

// QuantitativeScore is the weighted average of the four normalized
// sub-scores, each on a fixed 0-100 scale.
func (s *Scorer) QuantitativeScore(signals Signals) float64 {
	w := s.cfg.SignalWeights
	score := w.Conflict*conflictScore(signals.Conflict) +
		w.Tone*toneScore(signals.Tone) +
		w.ThemePresence*themePresenceScore(signals.Themes) +
		w.ThemeIntensity*themeIntensityScore(signals.ThemeCount)
	return clamp(score, 0, 100)
}

// SeverityFor maps a composite score to its tier.
func (s *Scorer) SeverityFor(composite float64) Severity {
	cuts := s.cfg.SeverityCutoffs
	switch {
	case composite >= cuts[0]:
		return SeverityCritical
	case composite >= cuts[1]:
		return SeverityHigh
	case composite >= cuts[2]:
		return SeverityMedium
	case composite >= cuts[3]:
		return SeverityLow
	default:
		return SeverityMinimal
	}
}

// conflictScore inverts and rescales the conflict signal: -10 maps to 100,
// +10 maps to 0.
func conflictScore(v *float64) float64 {
	if v == nil {
		return neutralScore
	}
	c := clamp(*v, conflictMin, conflictMax)
	return (conflictMax - c) / (conflictMax - conflictMin) * 100
}

// toneScore inverts and rescales the tone signal: -100 maps to 100, +100
// maps to 0.
func toneScore(v *float64) float64 {
	if v == nil {
		return neutralScore
	}
	t := clamp(*v, toneMin, toneMax)
	return (toneMax - t) / (toneMax - toneMin) * 100
}

// themePresenceScore is categorical: fixed tiers per number of distinct
// high-risk tags, not proportional.
func themePresenceScore(themes []string) float64 {
	if themes == nil {
		return neutralScore
	}
	switch len(themes) {
	case 0:
		return 0
	case 1:
		return 60
	case 2:
		return 80
	default:
		return 100
	}
}

// themeIntensityScore is frequency-bucketed so one repeated low-signal
// theme cannot dominate the score.
func themeIntensityScore(count *int) float64 {
	if count == nil {
		return neutralScore
	}
	switch {
	case *count <= 0:
		return 25
	case *count <= 2:
		return 50
	case *count <= 5:
		return 75
	default:
		return 100
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
