// Package redis persists trending leaderboard snapshots in sorted sets.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stdin/venezuelawatch-sub000/internal/trending/domain"
	"github.com/stdin/venezuelawatch-sub000/pkg/cache"
)

type leaderboardRepository struct {
	cache  *cache.RedisCache
	prefix string
	ttl    time.Duration
}

// NewLeaderboardRepository creates the redis-backed snapshot store.
func NewLeaderboardRepository(redisCache *cache.RedisCache) domain.LeaderboardRepository {
	return &leaderboardRepository{
		cache:  redisCache,
		prefix: "trending:",
		ttl:    24 * time.Hour,
	}
}

func (r *leaderboardRepository) Publish(ctx context.Context, metric domain.Metric, entries []domain.RankedEntity) error {
	members := make([]goredis.Z, 0, len(entries))
	for _, entry := range entries {
		members = append(members, goredis.Z{
			Score:  entry.Score,
			Member: strconv.FormatUint(entry.EntityID, 10),
		})
	}
	return r.cache.ReplaceSortedSet(ctx, r.key(metric), members, r.ttl)
}

func (r *leaderboardRepository) Top(ctx context.Context, metric domain.Metric, limit int) ([]domain.RankedEntity, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := r.cache.ZRevRangeWithScores(ctx, r.key(metric), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}

	entries := make([]domain.RankedEntity, 0, len(members))
	for i, member := range members {
		id, err := strconv.ParseUint(fmt.Sprint(member.Member), 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, domain.RankedEntity{
			EntityID: id,
			Score:    member.Score,
			Rank:     i + 1,
		})
	}
	return entries, nil
}

func (r *leaderboardRepository) key(metric domain.Metric) string {
	return r.prefix + "leaderboard:" + string(metric)
}
