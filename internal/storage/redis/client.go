package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	cfgpkg "github.com/taoyao-code/gt06-gateway/internal/config"
)

// Client wraps *redis.Client for the session store (spec §6.2): the
// registry's by_id/by_imei indices live here, each with a TTL equal to
// the configured idle timeout.
type Client struct {
	*redis.Client
}

// NewClient dials Redis per cfg and confirms it's reachable before
// returning, so a dead backend at startup is caught immediately rather
// than surfacing as the first session save's RegistryUnavailable.
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: rdb}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// HealthCheck pings Redis, used by health.RedisChecker.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Stats reports connection-pool counters, used by health.RedisChecker
// to grade pool pressure.
func (c *Client) Stats() *redis.PoolStats {
	return c.PoolStats()
}
