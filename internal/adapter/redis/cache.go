// Package redis shares downloaded feed documents between workers and restarts.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "capdoc:"

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// DocumentCache implements feed.DocumentCache on Redis. Redis errors degrade
// to cache misses.
type DocumentCache struct {
	client client
	logger *slog.Logger
}

// New connects to the Redis server at rawURL (redis://...).
func New(rawURL string, logger *slog.Logger) (*DocumentCache, *redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	return &DocumentCache{client: c, logger: logger}, c, nil
}

// Key returns the cache key of url.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached document for url.
func (c *DocumentCache) Get(ctx context.Context, url string) ([]byte, bool) {
	data, err := c.client.Get(ctx, Key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Debug("document cache get failed", "url", url, "error", err)
		return nil, false
	}
	return data, true
}

// Set stores data for url with the given ttl.
func (c *DocumentCache) Set(ctx context.Context, url string, data []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, Key(url), data, ttl).Err(); err != nil {
		c.logger.Debug("document cache set failed", "url", url, "error", err)
	}
}

// CheckReadiness pings the server.
func (c *DocumentCache) CheckReadiness(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
