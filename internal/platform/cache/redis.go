// Package cache opens the Redis connection shared by token revocation, the
// console credential store and the job queue.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options tunes the Redis client.
type Options struct {
	Addr string
	DB   int
	// PingTimeout bounds the startup ping. Zero means 5s.
	PingTimeout time.Duration
}

// New creates a Redis client and verifies it answers a ping.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("platform/cache: address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}

// Close closes client and logs a failure instead of returning it.
func Close(client *redis.Client, logger *slog.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && logger != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
