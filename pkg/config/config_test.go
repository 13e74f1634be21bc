package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScoring() ScoringConfig {
	return ScoringConfig{
		SignalWeights: SignalWeights{
			Conflict: 0.25, Tone: 0.25, ThemePresence: 0.25, ThemeIntensity: 0.25,
		},
		CompositeWeights: CompositeWeights{Quantitative: 0.6, Qualitative: 0.4},
		SeverityCutoffs:  []float64{80, 60, 40, 20},
	}
}

func TestScoringConfigValid(t *testing.T) {
	cfg := validScoring()
	require.NoError(t, cfg.Validate())
}

func TestScoringConfigRejectsBadSignalWeightSum(t *testing.T) {
	cfg := validScoring()
	cfg.SignalWeights.Conflict = 0.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal weights")
}

func TestScoringConfigRejectsBadCompositeWeightSum(t *testing.T) {
	cfg := validScoring()
	cfg.CompositeWeights.Qualitative = 0.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "composite weights")
}

func TestScoringConfigRejectsWrongCutoffCount(t *testing.T) {
	cfg := validScoring()
	cfg.SeverityCutoffs = []float64{80, 60, 40}
	assert.Error(t, cfg.Validate())
}

func TestScoringConfigRejectsUnorderedCutoffs(t *testing.T) {
	cfg := validScoring()
	cfg.SeverityCutoffs = []float64{80, 85, 40, 20}
	assert.Error(t, cfg.Validate())

	cfg.SeverityCutoffs = []float64{80, 80, 40, 20}
	assert.Error(t, cfg.Validate())
}

func TestScoringConfigRejectsOutOfRangeCutoffs(t *testing.T) {
	cfg := validScoring()
	cfg.SeverityCutoffs = []float64{100, 60, 40, 20}
	assert.Error(t, cfg.Validate())

	cfg.SeverityCutoffs = []float64{80, 60, 40, 0}
	assert.Error(t, cfg.Validate())
}

func TestMatchingConfigValidation(t *testing.T) {
	cfg := MatchingConfig{RealtimeThreshold: 0.85, BatchThreshold: 0.90, MaxCreateRetries: 3}
	require.NoError(t, cfg.Validate())

	cfg.BatchThreshold = 0.80
	assert.Error(t, cfg.Validate(), "batch threshold below realtime threshold")

	cfg = MatchingConfig{RealtimeThreshold: 0, BatchThreshold: 0.9, MaxCreateRetries: 3}
	assert.Error(t, cfg.Validate())

	cfg = MatchingConfig{RealtimeThreshold: 0.85, BatchThreshold: 0.9, MaxCreateRetries: 0}
	assert.Error(t, cfg.Validate())
}

func TestTrendingConfigValidation(t *testing.T) {
	cfg := TrendingConfig{HalfLifeHours: 168, RetentionDays: 30, SnapshotInterval: 60, SnapshotSize: 100}
	require.NoError(t, cfg.Validate())

	cfg.HalfLifeHours = 0
	assert.Error(t, cfg.Validate())

	cfg = TrendingConfig{HalfLifeHours: 168, RetentionDays: 0, SnapshotInterval: 60, SnapshotSize: 100}
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateEnvironment(t *testing.T) {
	base := func() *Config {
		return &Config{
			ServiceName: "engine",
			HTTP:        HTTPConfig{Port: 8080},
			Database:    DatabaseConfig{Driver: "mysql", DSN: "dsn"},
			Matching:    MatchingConfig{RealtimeThreshold: 0.85, BatchThreshold: 0.90, MaxCreateRetries: 3},
			Trending:    TrendingConfig{HalfLifeHours: 168, RetentionDays: 30, SnapshotInterval: 60, SnapshotSize: 100},
			Scoring:     validScoring(),
			Qualitative: QualitativeConfig{Enabled: false, TimeoutMS: 3000},
		}
	}

	for _, env := range []string{"dev", "staging", "prod"} {
		cfg := base()
		cfg.Environment = env
		assert.NoError(t, cfg.Validate(), "environment %q", env)
	}

	cfg := base()
	cfg.Environment = "production"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Environment = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dev", cfg.Environment)
}
