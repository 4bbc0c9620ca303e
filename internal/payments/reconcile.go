package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

var ErrAmountMismatch = errors.New("payment amount does not match order")

const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
	SourceSweeper = "sweeper"
)

type OrderFinder interface {
	GetByReference(ctx context.Context, reference string) (orders.Order, error)
}

type Transitioner interface {
	Transition(ctx context.Context, id uuid.UUID, fromAllowed []orders.Status, to orders.Status, reason string) (orders.Order, error)
}

// Report is one payment outcome as seen by a verify call, a webhook or the sweeper.
type Report struct {
	Reference string
	Status    Status
	Amount    *decimal.Decimal // major units; nil skips the amount check
	Source    string
}

// Reconciler is the single entry point through which payment reports move orders.
// Every path calls Reconcile, so whichever report lands first wins and the
// rest observe the result.
type Reconciler struct {
	Orders  OrderFinder
	Machine Transitioner
	Gateway Gateway // only needed by Verify
	Logger  *slog.Logger
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Reconciler) Reconcile(ctx context.Context, rep Report) (orders.Order, error) {
	log := r.logger().With(
		slog.String("action", "payments.reconcile"),
		slog.String("reference", rep.Reference),
		slog.String("source", rep.Source),
		slog.String("reported", string(rep.Status)))

	o, err := r.Orders.GetByReference(ctx, rep.Reference)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			log.Warn("payment report for unknown reference")
		}
		return orders.Order{}, fmt.Errorf("payments.Reconcile: %w", err)
	}
	log = log.With(slog.String("order_id", o.ID.String()))

	if o.Status != orders.StatusPendingPayment {
		if rep.Status == StatusSuccess && o.Status == orders.StatusCancelled {
			log.Warn("payment succeeded for a cancelled order")
		}
		return o, nil
	}

	var to orders.Status
	switch rep.Status {
	case StatusSuccess:
		if rep.Amount != nil && !rep.Amount.Equal(o.ChargeAmount) {
			log.Error("payment amount mismatch",
				slog.String("expected", o.ChargeAmount.String()),
				slog.String("got", rep.Amount.String()))
			return o, ErrAmountMismatch
		}
		to = orders.StatusPaid
	case StatusFailed:
		to = orders.StatusCancelled
	default:
		return o, nil
	}

	updated, err := r.Machine.Transition(ctx, o.ID, []orders.Status{orders.StatusPendingPayment}, to, "payment_"+string(rep.Status)+":"+rep.Source)
	var te *orders.TransitionError
	if errors.As(err, &te) {
		// someone else reconciled first
		log.Info("payment already reconciled", slog.String("current", string(te.Current)))
		return updated, nil
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("payments.Reconcile: %w", err)
	}
	log.Info("payment reconciled", slog.String("status", string(updated.Status)))
	return updated, nil
}

// Verify asks the gateway for the reference's outcome and reconciles it.
// It is safe to poll.
func (r *Reconciler) Verify(ctx context.Context, reference string) (orders.Order, error) {
	o, err := r.Orders.GetByReference(ctx, reference)
	if err != nil {
		return orders.Order{}, fmt.Errorf("payments.Verify: %w", err)
	}
	if o.Status != orders.StatusPendingPayment {
		return o, nil
	}

	v, err := r.Gateway.Verify(ctx, reference)
	if err != nil {
		return orders.Order{}, fmt.Errorf("payments.Verify: %w", err)
	}
	amount := v.Amount
	return r.Reconcile(ctx, Report{Reference: reference, Status: v.Status, Amount: &amount, Source: SourceVerify})
}
