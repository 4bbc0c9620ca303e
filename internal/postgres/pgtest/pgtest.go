// Package pgtest starts a throwaway Postgres with the service schema applied.
package pgtest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ariefcatur/go-realtime-checkout.git/migrations"
)

const image = "postgres:16-alpine"

// Start returns a pool connected to a fresh container and a func that tears both down.
func Start(ctx context.Context) (*pgxpool.Pool, func(), error) {
	files, err := migrations.Files()
	if err != nil {
		return nil, nil, fmt.Errorf("migrations.Files: %w", err)
	}
	scripts := make([]string, 0, len(files))
	for _, f := range files {
		scripts = append(scripts, filepath.Join(migrations.Dir(), f))
	}

	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("app"),
		postgres.WithPassword("secret"),
		postgres.WithInitScripts(scripts...),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return nil, nil, fmt.Errorf("ctr.ConnectionString: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	cleanup := func() {
		pool.Close()
		_ = testcontainers.TerminateContainer(ctr)
	}
	return pool, cleanup, nil
}

// Truncate empties every table between tests.
func Truncate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE order_status_history, order_items, orders, cart_items, carts,
		reservations, inventory_adjustments, inventory, product_variants, products, app_users CASCADE`)
	return err
}
