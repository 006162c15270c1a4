package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/world-gallery/internal/domain"
)

// likeCountsKey is the sorted set holding one member per world scored by its like count
const likeCountsKey = "worlds:likes"

// LikeCache caches per-world like counts in a Redis sorted set
type LikeCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLikeCache creates a like-count cache on an existing client
func NewLikeCache(client *redis.Client, logger *slog.Logger) *LikeCache {
	return &LikeCache{
		client: client,
		logger: logger,
	}
}

// Ping checks the Redis connection
func (c *LikeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetLikeCount stores the like count of a world
func (c *LikeCache) SetLikeCount(ctx context.Context, worldID string, count int64) error {
	err := c.client.ZAdd(ctx, likeCountsKey, redis.Z{
		Score:  float64(count),
		Member: worldID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting like count: %w", err)
	}
	return nil
}

// GetLikeCount returns the cached like count of a world
func (c *LikeCache) GetLikeCount(ctx context.Context, worldID string) (int64, error) {
	score, err := c.client.ZScore(ctx, likeCountsKey, worldID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrWorldNotFound
		}
		return 0, fmt.Errorf("getting like count: %w", err)
	}
	return int64(score), nil
}

// BatchSetLikeCounts stores many counts using pipelining
func (c *LikeCache) BatchSetLikeCounts(ctx context.Context, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for worldID, count := range counts {
		pipe.ZAdd(ctx, likeCountsKey, redis.Z{
			Score:  float64(count),
			Member: worldID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting like counts: %w", err)
	}
	return nil
}

// TopLiked returns the n most liked worlds, highest count first
func (c *LikeCache) TopLiked(ctx context.Context, n int) ([]domain.LikeCount, error) {
	if n <= 0 {
		return []domain.LikeCount{}, nil
	}
	results, err := c.client.ZRevRangeWithScores(ctx, likeCountsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top liked: %w", err)
	}

	counts := make([]domain.LikeCount, len(results))
	for i, result := range results {
		counts[i] = domain.LikeCount{
			WorldID: result.Member.(string),
			Count:   int64(result.Score),
		}
	}
	return counts, nil
}

// Forget drops cached counts for worlds that no longer exist
func (c *LikeCache) Forget(ctx context.Context, worldIDs ...string) error {
	if len(worldIDs) == 0 {
		return nil
	}
	members := make([]any, len(worldIDs))
	for i, id := range worldIDs {
		members[i] = id
	}
	if err := c.client.ZRem(ctx, likeCountsKey, members...).Err(); err != nil {
		return fmt.Errorf("removing like counts: %w", err)
	}
	return nil
}

// CachedWorldIDs returns every world that currently has a cached count
func (c *LikeCache) CachedWorldIDs(ctx context.Context) ([]string, error) {
	ids, err := c.client.ZRange(ctx, likeCountsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing cached worlds: %w", err)
	}
	return ids, nil
}
