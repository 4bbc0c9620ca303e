// Package redistest starts a throwaway Redis for integration tests.
package redistest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func Start(ctx context.Context) (*redis.Client, func(), error) {
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start redis container: %w", err)
	}

	endpoint, err := ctr.Endpoint(ctx, "")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return nil, nil, fmt.Errorf("ctr.Endpoint: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		_ = testcontainers.TerminateContainer(ctr)
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	cleanup := func() {
		_ = rdb.Close()
		_ = testcontainers.TerminateContainer(ctr)
	}
	return rdb, cleanup, nil
}
