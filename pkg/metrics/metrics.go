// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stdin/venezuelawatch-sub000/pkg/logger"
)

// Metrics holds every collector of the engine.
type Metrics struct {
	HTTPRequestsTotal   prometheus.Counter
	HTTPRequestDuration prometheus.Histogram

	// Entity resolution outcomes.
	ResolutionsExact   prometheus.Counter
	ResolutionsFuzzy   prometheus.Counter
	ResolutionsCreated prometheus.Counter
	ResolutionRetries  prometheus.Counter
	EntityMerges       prometheus.Counter
	MatchScore         prometheus.Histogram

	// Mention stream.
	MentionsRecorded prometheus.Counter

	// Risk scoring.
	AssessmentsHybrid    prometheus.Counter
	AssessmentsQuantOnly prometheus.Counter
	QualitativeTimeouts  prometheus.Counter
	QualitativeDuration  prometheus.Histogram

	// Trending.
	TrendingEntities prometheus.Gauge
	SnapshotDuration prometheus.Histogram
}

// New creates the engine metric set under the "engine" namespace.
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		ResolutionsExact: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "resolutions_exact_total",
			Help:      "Resolutions served by the exact normalized-alias fast path",
		}),
		ResolutionsFuzzy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "resolutions_fuzzy_total",
			Help:      "Resolutions matched by fuzzy similarity",
		}),
		ResolutionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "resolutions_created_total",
			Help:      "Resolutions that created a new entity",
		}),
		ResolutionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "resolution_retries_total",
			Help:      "Create-race retries in the resolver",
		}),
		EntityMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "entity_merges_total",
			Help:      "Explicit entity merges",
		}),
		MatchScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "match_score",
			Help:      "Similarity score of accepted fuzzy matches",
			Buckets:   []float64{0.85, 0.88, 0.90, 0.92, 0.95, 0.98, 1.0},
		}),

		MentionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "mentions_recorded_total",
			Help:      "Mentions appended to the mention log",
		}),

		AssessmentsHybrid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "assessments_hybrid_total",
			Help:      "Risk assessments scored with a qualitative component",
		}),
		AssessmentsQuantOnly: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "assessments_quantitative_only_total",
			Help:      "Risk assessments degraded to quantitative-only scoring",
		}),
		QualitativeTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "qualitative_timeouts_total",
			Help:      "Qualitative scoring calls that timed out or failed",
		}),
		QualitativeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "qualitative_duration_seconds",
			Help:      "Qualitative scoring call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		TrendingEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "trending_entities",
			Help:      "Entities currently tracked by the trending engine",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "engine",
			Subsystem: serviceName,
			Name:      "snapshot_duration_seconds",
			Help:      "Leaderboard snapshot publish duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register registers every collector with the default registerer.
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ResolutionsExact,
		m.ResolutionsFuzzy,
		m.ResolutionsCreated,
		m.ResolutionRetries,
		m.EntityMerges,
		m.MatchScore,
		m.MentionsRecorded,
		m.AssessmentsHybrid,
		m.AssessmentsQuantOnly,
		m.QualitativeTimeouts,
		m.QualitativeDuration,
		m.TrendingEntities,
		m.SnapshotDuration,
	}

	for _, collector := range collectors {
		if err := prometheus.DefaultRegisterer.Register(collector); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer serves the Prometheus endpoint on its own port.
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
