// Package memory implements the URL cache inside the process.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type URLCache struct {
	cache *gocache.Cache
}

// NewURLCache creates a cache whose expired entries are purged every cleanupInterval.
func NewURLCache(cleanupInterval time.Duration) *URLCache {
	return &URLCache{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (c *URLCache) Get(_ context.Context, shortCode string) (string, bool, error) {
	v, ok := c.cache.Get(shortCode)
	if !ok {
		return "", false, nil
	}

	originalURL, ok := v.(string)
	if !ok {
		c.cache.Delete(shortCode)
		return "", false, nil
	}

	return originalURL, true, nil
}

func (c *URLCache) Set(_ context.Context, shortCode, originalURL string, ttl time.Duration) error {
	c.cache.Set(shortCode, originalURL, ttl)
	return nil
}
