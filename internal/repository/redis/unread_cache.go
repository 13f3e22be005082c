// internal/repository/redis/unread_cache.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnreadCache caches per-user unread counts
type UnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUnreadCache(client *redis.Client, ttl time.Duration) *UnreadCache {
	return &UnreadCache{client: client, ttl: ttl}
}

// Get returns the cached count and whether it was present
func (c *UnreadCache) Get(ctx context.Context, userID string) (int, bool, error) {
	n, err := c.client.Get(ctx, c.key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read unread count: %w", err)
	}
	return n, true, nil
}

func (c *UnreadCache) Set(ctx context.Context, userID string, count int) error {
	if err := c.client.Set(ctx, c.key(userID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache unread count: %w", err)
	}
	return nil
}

func (c *UnreadCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate unread count: %w", err)
	}
	return nil
}

func (c *UnreadCache) key(userID string) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}
