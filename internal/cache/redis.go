package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultOpTimeout bounds dials and commands. The forecast path treats a slow Redis as a
// cache miss, so it must give up well inside the provider timeout.
const DefaultOpTimeout = 500 * time.Millisecond

// Connect parses redisURL, creates a client with short operation timeouts and verifies
// connectivity with a ping. opTimeout <= 0 uses DefaultOpTimeout.
func Connect(ctx context.Context, redisURL string, opTimeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	opts.DialTimeout = opTimeout
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout
	opts.MaxRetries = 1

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}
