// Package config loads the engine's TOML configuration with environment
// variable overrides and validates it at load time. Tunable scoring and
// matching parameters are configuration, never hardcoded in the domain
// packages.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// weightSumTolerance bounds the accepted deviation of weight sums from 1.0.
const weightSumTolerance = 1e-9

// Config is the root configuration of the engine service.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	// Environment is one of dev, staging, prod.
	Environment string `mapstructure:"environment"`

	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Matching    MatchingConfig    `mapstructure:"matching"`
	Trending    TrendingConfig    `mapstructure:"trending"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Qualitative QualitativeConfig `mapstructure:"qualitative"`
}

// HTTPConfig configures the gin HTTP server.
type HTTPConfig struct {
	Host         string `mapstructure:"host" default:"0.0.0.0"`
	Port         int    `mapstructure:"port" default:"8080"`
	ReadTimeout  int    `mapstructure:"read_timeout" default:"30"`
	WriteTimeout int    `mapstructure:"write_timeout" default:"30"`
}

// DatabaseConfig configures the MySQL connection pool.
type DatabaseConfig struct {
	Driver             string `mapstructure:"driver" default:"mysql"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns" default:"25"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime" default:"300"`
	LogEnabled         bool   `mapstructure:"log_enabled" default:"false"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold" default:"1000"`
}

// RedisConfig configures the redis client used for leaderboard snapshots and
// rate limiting.
type RedisConfig struct {
	Host         string `mapstructure:"host" default:"localhost"`
	Port         int    `mapstructure:"port" default:"6379"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db" default:"0"`
	MaxPoolSize  int    `mapstructure:"max_pool_size" default:"10"`
	ConnTimeout  int    `mapstructure:"conn_timeout" default:"5"`
	ReadTimeout  int    `mapstructure:"read_timeout" default:"3"`
	WriteTimeout int    `mapstructure:"write_timeout" default:"3"`
}

// KafkaConfig configures the event feed consumer and the dead letter
// producer.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	EventTopic      string   `mapstructure:"event_topic" default:"engine.events"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic" default:"engine.events.dlq"`
	SessionTimeout  int      `mapstructure:"session_timeout" default:"10"`
}

// LoggerConfig mirrors logger.Config; see pkg/logger.
type LoggerConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	Output     string `mapstructure:"output" default:"stdout"`
	FilePath   string `mapstructure:"file_path" default:"logs/engine.log"`
	MaxSize    int    `mapstructure:"max_size" default:"100"`
	MaxBackups int    `mapstructure:"max_backups" default:"10"`
	MaxAge     int    `mapstructure:"max_age" default:"30"`
	Compress   bool   `mapstructure:"compress" default:"true"`
	WithCaller bool   `mapstructure:"with_caller" default:"true"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Port    int    `mapstructure:"port" default:"9090"`
	Path    string `mapstructure:"path" default:"/metrics"`
}

// RateLimitConfig configures per-client HTTP rate limiting.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled" default:"true"`
	QPS     int  `mapstructure:"qps" default:"50"`
	Burst   int  `mapstructure:"burst" default:"100"`
}

// MatchingConfig holds the entity matching thresholds. The realtime
// threshold is used on the ingestion path; the batch threshold is stricter
// because batch merges are hard to undo.
type MatchingConfig struct {
	RealtimeThreshold float64 `mapstructure:"realtime_threshold" default:"0.85"`
	BatchThreshold    float64 `mapstructure:"batch_threshold" default:"0.90"`
	// MaxCreateRetries bounds the create-race retry loop in the resolver.
	MaxCreateRetries int `mapstructure:"max_create_retries" default:"3"`
}

// TrendingConfig holds the decay parameters of the trending engine.
type TrendingConfig struct {
	// HalfLifeHours is the time after which a mention's contribution halves.
	HalfLifeHours float64 `mapstructure:"half_life_hours" default:"168"`
	// RetentionDays bounds the lookback window; older mentions contribute 0.
	RetentionDays int `mapstructure:"retention_days" default:"30"`
	// SnapshotInterval is the leaderboard snapshot publish period in seconds.
	SnapshotInterval int `mapstructure:"snapshot_interval" default:"60"`
	// SnapshotSize is the number of entries published per metric.
	SnapshotSize int `mapstructure:"snapshot_size" default:"100"`
}

// ScoringConfig holds the risk scoring weights and severity cut points.
type ScoringConfig struct {
	SignalWeights    SignalWeights    `mapstructure:"signal_weights"`
	CompositeWeights CompositeWeights `mapstructure:"composite_weights"`
	// SeverityCutoffs are four descending composite-score thresholds that
	// split 0-100 into five ordered severity tiers.
	SeverityCutoffs []float64 `mapstructure:"severity_cutoffs"`
}

// SignalWeights weights the four quantitative sub-scores. Must sum to 1.0.
type SignalWeights struct {
	Conflict       float64 `mapstructure:"conflict" default:"0.25"`
	Tone           float64 `mapstructure:"tone" default:"0.25"`
	ThemePresence  float64 `mapstructure:"theme_presence" default:"0.25"`
	ThemeIntensity float64 `mapstructure:"theme_intensity" default:"0.25"`
}

// CompositeWeights combines the quantitative and qualitative scores. Must
// sum to 1.0.
type CompositeWeights struct {
	Quantitative float64 `mapstructure:"quantitative" default:"0.6"`
	Qualitative  float64 `mapstructure:"qualitative" default:"0.4"`
}

// QualitativeConfig configures the external qualitative scoring call.
type QualitativeConfig struct {
	Enabled  bool   `mapstructure:"enabled" default:"true"`
	Endpoint string `mapstructure:"endpoint"`
	// TimeoutMS is the hard timeout; on expiry the scorer degrades to
	// quantitative-only instead of blocking event processing.
	TimeoutMS int `mapstructure:"timeout_ms" default:"3000"`
}

// Load reads the TOML file at configPath, applies APP_-prefixed environment
// overrides, fills defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate rejects invalid configuration at load time. Weight sums and
// cutoff ordering are checked here so the scorer never revalidates per call.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	switch c.Environment {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod, got %q", c.Environment)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if err := c.Trending.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if c.Qualitative.Enabled && c.Qualitative.Endpoint == "" {
		return fmt.Errorf("qualitative endpoint is required when qualitative scoring is enabled")
	}
	if c.Qualitative.TimeoutMS <= 0 {
		return fmt.Errorf("qualitative timeout must be positive, got %d", c.Qualitative.TimeoutMS)
	}
	return nil
}

// Validate checks the matching thresholds.
func (m *MatchingConfig) Validate() error {
	if m.RealtimeThreshold <= 0 || m.RealtimeThreshold > 1 {
		return fmt.Errorf("realtime_threshold must be in (0, 1], got %v", m.RealtimeThreshold)
	}
	if m.BatchThreshold <= 0 || m.BatchThreshold > 1 {
		return fmt.Errorf("batch_threshold must be in (0, 1], got %v", m.BatchThreshold)
	}
	if m.BatchThreshold < m.RealtimeThreshold {
		return fmt.Errorf("batch_threshold %v must not be below realtime_threshold %v", m.BatchThreshold, m.RealtimeThreshold)
	}
	if m.MaxCreateRetries < 1 {
		return fmt.Errorf("max_create_retries must be at least 1, got %d", m.MaxCreateRetries)
	}
	return nil
}

// Validate checks the decay parameters.
func (t *TrendingConfig) Validate() error {
	if t.HalfLifeHours <= 0 {
		return fmt.Errorf("half_life_hours must be positive, got %v", t.HalfLifeHours)
	}
	if t.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", t.RetentionDays)
	}
	if t.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot_interval must be positive, got %d", t.SnapshotInterval)
	}
	if t.SnapshotSize <= 0 {
		return fmt.Errorf("snapshot_size must be positive, got %d", t.SnapshotSize)
	}
	return nil
}

// Validate checks weight sums and severity cutoff ordering.
func (s *ScoringConfig) Validate() error {
	signalSum := s.SignalWeights.Conflict + s.SignalWeights.Tone +
		s.SignalWeights.ThemePresence + s.SignalWeights.ThemeIntensity
	if math.Abs(signalSum-1.0) > weightSumTolerance {
		return fmt.Errorf("signal weights must sum to 1.0, got %v", signalSum)
	}
	compositeSum := s.CompositeWeights.Quantitative + s.CompositeWeights.Qualitative
	if math.Abs(compositeSum-1.0) > weightSumTolerance {
		return fmt.Errorf("composite weights must sum to 1.0, got %v", compositeSum)
	}
	if len(s.SeverityCutoffs) != 4 {
		return fmt.Errorf("severity_cutoffs must have exactly 4 entries, got %d", len(s.SeverityCutoffs))
	}
	for i, cut := range s.SeverityCutoffs {
		if cut <= 0 || cut >= 100 {
			return fmt.Errorf("severity cutoff %v out of range (0, 100)", cut)
		}
		if i > 0 && cut >= s.SeverityCutoffs[i-1] {
			return fmt.Errorf("severity_cutoffs must be strictly descending")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.event_topic", "engine.events")
	v.SetDefault("kafka.dead_letter_topic", "engine.events.dlq")
	v.SetDefault("kafka.session_timeout", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/engine.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.qps", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("matching.realtime_threshold", 0.85)
	v.SetDefault("matching.batch_threshold", 0.90)
	v.SetDefault("matching.max_create_retries", 3)

	v.SetDefault("trending.half_life_hours", 168.0)
	v.SetDefault("trending.retention_days", 30)
	v.SetDefault("trending.snapshot_interval", 60)
	v.SetDefault("trending.snapshot_size", 100)

	v.SetDefault("scoring.signal_weights.conflict", 0.25)
	v.SetDefault("scoring.signal_weights.tone", 0.25)
	v.SetDefault("scoring.signal_weights.theme_presence", 0.25)
	v.SetDefault("scoring.signal_weights.theme_intensity", 0.25)
	v.SetDefault("scoring.composite_weights.quantitative", 0.6)
	v.SetDefault("scoring.composite_weights.qualitative", 0.4)
	v.SetDefault("scoring.severity_cutoffs", []float64{80, 60, 40, 20})

	v.SetDefault("qualitative.enabled", true)
	v.SetDefault("qualitative.timeout_ms", 3000)
}

// GetEnv returns the environment variable for key, or defaultValue when
// unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
