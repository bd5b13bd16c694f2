// Package redis implements the status cache on Redis so that several
// ledger processes share one view of recent reconciliations.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/fuelledger/cache"
	"github.com/xraph/fuelledger/id"
	"github.com/xraph/fuelledger/reconcile"
)

const defaultPrefix = "fuelledger:status:"

// Cache stores reconciliation records as JSON under one key per tank.
type Cache struct {
	client goredis.UniversalClient
	prefix string
}

var _ cache.StatusCache = (*Cache)(nil)

// New wraps an existing client.
func New(client goredis.UniversalClient) *Cache {
	return &Cache{client: client, prefix: defaultPrefix}
}

// Dial connects to the Redis server at addr.
func Dial(ctx context.Context, addr, password string, db int) (*Cache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("fuelledger/redis: ping %s: %w", addr, err)
	}
	return New(rdb), nil
}

// WithPrefix changes the key prefix.
func (c *Cache) WithPrefix(prefix string) *Cache {
	c.prefix = prefix
	return c
}

func (c *Cache) key(tankID id.TankID) string { return c.prefix + tankID.String() }

func (c *Cache) Get(ctx context.Context, tankID id.TankID) (*reconcile.Record, error) {
	raw, err := c.client.Get(ctx, c.key(tankID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("fuelledger/redis: get: %w", err)
	}
	var r reconcile.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		// An unreadable value is as good as no value.
		_ = c.client.Del(ctx, c.key(tankID)).Err()
		return nil, cache.ErrMiss
	}
	return &r, nil
}

func (c *Cache) Set(ctx context.Context, r *reconcile.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("fuelledger/redis: encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(r.TankID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("fuelledger/redis: set: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, tankID id.TankID) error {
	if err := c.client.Del(ctx, c.key(tankID)).Err(); err != nil {
		return fmt.Errorf("fuelledger/redis: del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *Cache) Close() error { return c.client.Close() }
