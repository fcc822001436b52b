package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with bootstrap and lifecycle helpers.
type Client struct {
	rdb *goredis.Client
}

// NewClient creates a client from a URL (e.g. "redis://localhost:6379") with
// the metrics hook installed.
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(&MetricsHook{})
	return &Client{rdb: rdb}, nil
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw go-redis client for store construction.
func (c *Client) Underlying() *goredis.Client {
	return c.rdb
}
