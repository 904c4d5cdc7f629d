// Package cache opens the Redis connection shared by sessions and reception state.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the Redis client. Zero values fall back to go-redis defaults.
type Config struct {
	Addr        string
	PoolSize    int
	DialTimeout time.Duration
}

const pingTimeout = 5 * time.Second

// New creates a Redis client and verifies it answers before returning it.
func New(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("platform/cache: address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
