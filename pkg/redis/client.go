// Package redis is the shared model-output cache: namespaced byte values
// read with one MGET and written with one pipelined round trip.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Client prefixes every key with its namespace so several deployments can
// share one Redis database.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects and verifies the server with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig, namespace string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// GetMany returns one slot per key; missing keys yield nil.
func (c *Client) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	vals, err := c.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([][]byte, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// SetMany writes entries with a shared TTL; zero keeps them forever.
func (c *Client) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for k, v := range entries {
		pipe.Set(ctx, c.prefix+k, v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipelined set of %d keys: %w", len(entries), err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
