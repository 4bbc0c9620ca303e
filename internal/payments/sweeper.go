package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

const ReasonReservationExpired = "reservation_expired"

type PendingLister interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]orders.Order, error)
}

// Sweeper cancels orders that stayed in pending_payment past TTL, releasing
// their reserved stock. The gateway is asked first so a payment that landed
// late still wins.
type Sweeper struct {
	Orders     PendingLister
	Gateway    Gateway
	Reconciler *Reconciler
	Machine    Transitioner
	TTL        time.Duration
	Interval   time.Duration
	Batch      int
	Logger     *slog.Logger
	Now        func() time.Time
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Run sweeps every Interval until ctx is done. A zero TTL disables it.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.TTL <= 0 {
		s.logger().Info("reservation sweeper disabled")
		<-ctx.Done()
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger().Error("sweep failed", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// SweepOnce handles one batch and returns how many orders it cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}

	stale, err := s.Orders.ListPendingBefore(ctx, now().Add(-s.TTL), batch)
	if err != nil {
		return 0, err
	}

	var cancelled int
	for _, o := range stale {
		log := s.logger().With(slog.String("action", "payments.sweep"), slog.String("order_id", o.ID.String()))

		v, err := s.Gateway.Verify(ctx, o.PaymentReference)
		if err != nil {
			// unknown outcome; try again next sweep rather than cancel a possibly paid order
			log.Warn("gateway verify failed", slog.Any("err", err))
			continue
		}
		if v.Status == StatusSuccess {
			amount := v.Amount
			if _, err := s.Reconciler.Reconcile(ctx, Report{Reference: o.PaymentReference, Status: v.Status, Amount: &amount, Source: SourceSweeper}); err != nil {
				log.Error("late payment reconcile failed", slog.Any("err", err))
			}
			continue
		}

		if _, err := s.Machine.Transition(ctx, o.ID, []orders.Status{orders.StatusPendingPayment}, orders.StatusCancelled, ReasonReservationExpired); err != nil {
			log.Info("expiry skipped", slog.Any("err", err))
			continue
		}
		cancelled++
	}
	if cancelled > 0 {
		s.logger().Info("expired reservations cancelled", slog.Int("count", cancelled))
	}
	return cancelled, nil
}
