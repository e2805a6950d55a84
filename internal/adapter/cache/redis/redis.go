// Package redis implements the URL cache on top of Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "url:"

type URLCache struct {
	client goredis.Cmdable
}

func NewURLCache(client goredis.Cmdable) *URLCache {
	return &URLCache{client: client}
}

func key(shortCode string) string {
	return keyPrefix + shortCode
}

// Get reports found=false with a nil error when the key is absent.
func (c *URLCache) Get(ctx context.Context, shortCode string) (string, bool, error) {
	const op = "adapter.cache.redis.URLCache.Get"

	val, err := c.client.Get(ctx, key(shortCode)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	return val, true, nil
}

func (c *URLCache) Set(ctx context.Context, shortCode, originalURL string, ttl time.Duration) error {
	const op = "adapter.cache.redis.URLCache.Set"

	if err := c.client.Set(ctx, key(shortCode), originalURL, ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}
