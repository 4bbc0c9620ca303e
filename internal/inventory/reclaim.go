package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type OrphanSource interface {
	OrphanedReservations(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ReleaseOrder(ctx context.Context, orderID uuid.UUID) (int, error)
}

// Reclaimer returns stock held for orders that were cancelled, or never
// written, once Grace has passed. It backstops release hand-offs that were lost
// on the way to the worker.
type Reclaimer struct {
	Ledger   OrphanSource
	Grace    time.Duration // must outlast a checkout attempt
	Interval time.Duration
	Batch    int
	Logger   *slog.Logger
	Now      func() time.Time
}

func (r *Reclaimer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Reclaimer) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := r.ReclaimOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger().Error("reclaim failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// ReclaimOnce releases one batch and returns how many orders gave stock back.
// A failed release is left for the next pass.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	grace := r.Grace
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}

	ids, err := r.Ledger.OrphanedReservations(ctx, now().Add(-grace), batch)
	if err != nil {
		return 0, err
	}

	var reclaimed int
	for _, id := range ids {
		n, err := r.Ledger.ReleaseOrder(ctx, id)
		if err != nil {
			r.logger().Warn("reclaim release failed",
				slog.String("action", "inventory.reclaim"),
				slog.String("order_id", id.String()),
				slog.Any("err", err))
			continue
		}
		if n > 0 {
			reclaimed++
			r.logger().Info("orphaned reservations reclaimed",
				slog.String("action", "inventory.reclaim"),
				slog.String("order_id", id.String()),
				slog.Int("lines", n))
		}
	}
	return reclaimed, nil
}
