package domain

import "context"

// LeaderboardRepository persists periodically rebuilt, read-optimized
// ranking snapshots. The in-memory Engine stays the source of truth; the
// snapshots give dashboards cheap reads.
type LeaderboardRepository interface {
	// Publish atomically replaces the snapshot for metric.
	Publish(ctx context.Context, metric Metric, entries []RankedEntity) error
	// Top reads the latest published snapshot for metric.
	Top(ctx context.Context, metric Metric, limit int) ([]RankedEntity, error)
}
