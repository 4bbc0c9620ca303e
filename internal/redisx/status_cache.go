package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StatusCache keeps short-lived JSON snapshots of order status for polling clients.
// Misses and Redis errors both read as a miss; the database stays the source of truth.
type StatusCache struct {
	Redis *redis.Client
}

func (c *StatusCache) Get(ctx context.Context, orderID string) ([]byte, bool) {
	if c == nil || c.Redis == nil {
		return nil, false
	}
	b, err := c.Redis.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *StatusCache) Set(ctx context.Context, orderID string, body []byte) error {
	if c == nil || c.Redis == nil {
		return nil
	}
	return c.Redis.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), body, TTLStatusCache).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	if c == nil || c.Redis == nil {
		return nil
	}
	err := c.Redis.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
