package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/domain"
)

type backend interface {
	ListQueueItems(ctx context.Context) ([]QueueItemEntity, error)
}

const (
	statsCacheKey     = "queue:stats"
	statsCacheVersion = 1
)

// cachedStats is the versioned payload stored under the stats key.
type cachedStats struct {
	Version                 int            `json:"version"`
	CachedAt                time.Time      `json:"cachedAt"`
	Total                   int            `json:"total"`
	Unread                  int            `json:"unread"`
	Snacks                  int            `json:"snacks"`
	ByPriority              map[string]int `json:"byPriority"`
	ByType                  map[string]int `json:"byType"`
	EstimatedBacklogMinutes int            `json:"estimatedBacklogMinutes"`
}

func (p cachedStats) stats() domain.QueueStats {
	s := domain.QueueStats{
		Total:                   p.Total,
		Unread:                  p.Unread,
		Snacks:                  p.Snacks,
		ByPriority:              p.ByPriority,
		ByType:                  p.ByType,
		EstimatedBacklogMinutes: p.EstimatedBacklogMinutes,
	}
	if s.ByPriority == nil {
		s.ByPriority = map[string]int{}
	}
	if s.ByType == nil {
		s.ByType = map[string]int{}
	}
	return s
}

// StatsCache maintains the review-queue statistics: read-through for the
// API, refreshed by the route worker after every applied event.
type StatsCache struct {
	base   backend
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewStatsCache creates a stats cache over the given read model. A nil
// Redis client disables caching; every read then scans the table.
func NewStatsCache(base backend, client *redis.Client, ttl time.Duration, logger *log.Logger) *StatsCache {
	if base == nil {
		panic("storage.NewStatsCache: base storage is nil")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StatsCache{base: base, redis: client, ttl: ttl, logger: logger, now: time.Now}
}

// Stats serves the queue statistics: cache hit, else table scan plus cache
// fill. The returned time is when the statistics were computed.
func (c *StatsCache) Stats(ctx context.Context) (domain.QueueStats, time.Time, error) {
	if payload, ok := c.load(ctx); ok {
		return payload.stats(), payload.CachedAt, nil
	}

	items, err := c.base.ListQueueItems(ctx)
	if err != nil {
		return domain.QueueStats{}, time.Time{}, err
	}
	stats := computeStats(items)
	asOf := c.now().UTC()
	c.store(ctx, stats, asOf)
	return stats, asOf, nil
}

// Refresh recomputes the statistics from the read model and rewrites the
// cache entry. Failures are logged; a stale entry simply ages out.
func (c *StatsCache) Refresh(ctx context.Context) {
	if c == nil || c.redis == nil {
		return
	}
	items, err := c.base.ListQueueItems(ctx)
	if err != nil {
		c.logger.WithError(err).Error("failed to list queue items for stats cache")
		return
	}
	c.store(ctx, computeStats(items), c.now().UTC())
}

func (c *StatsCache) load(ctx context.Context) (cachedStats, bool) {
	if c.redis == nil {
		return cachedStats{}, false
	}
	data, err := c.redis.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the read model without failing.
			_ = c.redis.Del(ctx, statsCacheKey).Err()
		}
		return cachedStats{}, false
	}
	var payload cachedStats
	if err := sonic.Unmarshal(data, &payload); err != nil || payload.Version != statsCacheVersion {
		_ = c.redis.Del(ctx, statsCacheKey).Err()
		return cachedStats{}, false
	}
	return payload, true
}

func (c *StatsCache) store(ctx context.Context, stats domain.QueueStats, asOf time.Time) {
	if c.redis == nil {
		return
	}
	payload := cachedStats{
		Version:                 statsCacheVersion,
		CachedAt:                asOf,
		Total:                   stats.Total,
		Unread:                  stats.Unread,
		Snacks:                  stats.Snacks,
		ByPriority:              stats.ByPriority,
		ByType:                  stats.ByType,
		EstimatedBacklogMinutes: stats.EstimatedBacklogMinutes,
	}
	data, err := sonic.Marshal(payload)
	if err != nil {
		c.logger.WithError(err).Error("failed to marshal stats cache payload")
		return
	}
	if err := c.redis.Set(ctx, statsCacheKey, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Error("failed to store stats cache entry")
	}
}

// computeStats folds the read model into queue statistics. Archived items
// drop out entirely; the backlog estimate covers unread and reading items.
func computeStats(items []QueueItemEntity) domain.QueueStats {
	stats := domain.QueueStats{ByPriority: map[string]int{}, ByType: map[string]int{}}
	for _, it := range items {
		if it.Status == domain.StatusArchived {
			continue
		}
		stats.Total++
		if it.Status == domain.StatusUnread {
			stats.Unread++
		}
		if it.Priority == domain.PrioritySnack {
			stats.Snacks++
		}
		if it.Priority != "" {
			stats.ByPriority[it.Priority]++
		}
		if it.ContentType != "" {
			stats.ByType[it.ContentType]++
		}
		if it.Status == domain.StatusUnread || it.Status == domain.StatusReading {
			stats.EstimatedBacklogMinutes += it.EstimatedTime
		}
	}
	return stats
}
