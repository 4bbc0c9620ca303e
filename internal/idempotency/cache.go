// Package idempotency runs a computation at most once per caller-supplied key
// and replays the stored result for the retention window.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	ErrKeyInFlight = errors.New("idempotency key in flight")
	ErrClaimLost   = errors.New("idempotency claim lost")
)

const (
	DefaultTTL   = 24 * time.Hour
	defaultLease = 2 * time.Minute
	defaultWait  = 5 * time.Second
	defaultPoll  = 100 * time.Millisecond
)

type Cache struct {
	Store  Store
	TTL    time.Duration // retention of a completed result
	Lease  time.Duration // how long an unfinished claim blocks others
	Wait   time.Duration // how long a duplicate waits for the holder
	Poll   time.Duration
	Logger *slog.Logger
	Now    func() time.Time

	group singleflight.Group
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func or(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// GetOrCompute returns the stored result for key or runs compute exactly once
// and stores its result. An empty key always runs compute. A failed compute
// stores nothing. A duplicate that outwaits Wait gets ErrKeyInFlight.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if key == "" {
		return compute(ctx)
	}

	// Duplicates inside this process share one store round-trip. The shared
	// work outlives any single caller; each caller only stops waiting for it.
	ch := c.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), or(c.Lease, defaultLease))
		defer cancel()
		return c.getOrCompute(sctx, key, compute)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) getOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	token := uuid.NewString()
	lease := or(c.Lease, defaultLease)
	deadline := c.now().Add(or(c.Wait, defaultWait))
	poll := or(c.Poll, defaultPoll)

	for {
		entry, claimed, err := c.Store.Claim(ctx, key, token, lease)
		if err != nil {
			return nil, fmt.Errorf("idempotency.Claim: %w", err)
		}

		if claimed {
			return c.run(ctx, key, token, entry.CreatedAt, compute)
		}
		if entry.State == StateDone {
			c.logger().Info("idempotent replay", slog.String("action", "idempotency.replay"), slog.String("key", key))
			return entry.Payload, nil
		}

		if c.now().After(deadline) {
			return nil, ErrKeyInFlight
		}
		select {
		case <-time.After(poll):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Cache) run(ctx context.Context, key, token string, claimedAt time.Time, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	payload, err := compute(ctx)
	if err != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rerr := c.Store.Release(rctx, key, token); rerr != nil {
			c.logger().Warn("idempotency release failed", slog.String("key", key), slog.Any("err", rerr))
		}
		return nil, err
	}

	if claimedAt.IsZero() {
		claimedAt = c.now()
	}
	expiresAt := claimedAt.Add(or(c.TTL, DefaultTTL))
	if err := c.Store.Complete(ctx, key, token, payload, expiresAt); err != nil {
		// the result is real; only its replay is at risk
		c.logger().Error("idempotency store failed", slog.String("key", key), slog.Any("err", err))
	}
	return payload, nil
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
