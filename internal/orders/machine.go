package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Releaser gives an order's reserved stock back. Calling it twice must not release twice.
type Releaser interface {
	ReleaseOrder(ctx context.Context, orderID uuid.UUID) (int, error)
}

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, reason string) (Order, bool, error)
}

// PointsRefunder returns loyalty points spent on an order that was cancelled.
type PointsRefunder interface {
	RefundPoints(ctx context.Context, accountID uuid.UUID, points int) error
}

type StatusCache interface {
	Invalidate(ctx context.Context, orderID string) error
}

// Machine owns every status change after an order is created.
type Machine struct {
	Repo      Repository
	Inventory Releaser
	Events    EventSink      // optional
	Cache     StatusCache    // optional
	Loyalty   PointsRefunder // optional
	Logger    *slog.Logger
	Producer  string

	ReleaseAttempts int
	ReleaseBackoff  time.Duration
}

func (m *Machine) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// Transition moves the order to `to` if its current status is one of
// fromAllowed and the move is legal. Otherwise nothing is written and the error
// is a *TransitionError; the returned Order then holds the current state.
func (m *Machine) Transition(ctx context.Context, id uuid.UUID, fromAllowed []Status, to Status, reason string) (Order, error) {
	legal := lo.Filter(fromAllowed, func(s Status, _ int) bool { return CanTransition(s, to) })
	if len(legal) == 0 {
		o, err := m.Repo.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}
		return o, &TransitionError{OrderID: id, Current: o.Status, To: to}
	}

	o, ok, err := m.Repo.CompareAndSetStatus(ctx, id, legal, to, reason)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return o, &TransitionError{OrderID: id, Current: o.Status, To: to}
	}

	log := m.logger().With(slog.String("order_id", id.String()))
	log.Info("order transitioned",
		slog.String("action", "order.transition"),
		slog.String("to", string(to)),
		slog.String("reason", reason))

	if m.Cache != nil {
		if err := m.Cache.Invalidate(ctx, id.String()); err != nil {
			log.Warn("status cache invalidate failed", slog.Any("err", err))
		}
	}

	eventType := EventOrderTransition
	switch to {
	case StatusPaid:
		eventType = EventOrderPaid
	case StatusCancelled:
		eventType = EventOrderCancelled
	}
	var from Status
	if len(legal) == 1 {
		from = legal[0]
	}
	Emit(m.Events, TopicOrderStatus, eventType, m.Producer, "", id, StatusChangedPayload{
		OrderID: id,
		From:    from,
		To:      to,
		Reason:  reason,
	})

	if to == StatusCancelled {
		m.release(ctx, id, reason)
		m.refund(ctx, o)
	}
	return o, nil
}

// Cancel is legal from pending_payment, paid and processing. Cancelling an
// already-cancelled order is a no-op that only re-checks the release.
func (m *Machine) Cancel(ctx context.Context, id uuid.UUID, reason string) (Order, error) {
	o, err := m.Transition(ctx, id, CancellableFrom, StatusCancelled, reason)
	var te *TransitionError
	if errors.As(err, &te) && te.Current == StatusCancelled {
		m.release(ctx, id, reason)
		return o, nil
	}
	return o, err
}

// release retries in-process first; if the ledger is still failing, a release
// request is published for the worker to retry until it succeeds.
func (m *Machine) release(ctx context.Context, id uuid.UUID, reason string) {
	if m.Inventory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	attempts := m.ReleaseAttempts
	if attempts <= 0 {
		attempts = 5
	}
	b := backoff.NewExponentialBackOff()
	if m.ReleaseBackoff > 0 {
		b.InitialInterval = m.ReleaseBackoff
	}

	var released int
	err := backoff.Retry(func() error {
		var err error
		released, err = m.Inventory.ReleaseOrder(ctx, id)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))

	log := m.logger().With(slog.String("order_id", id.String()))
	if err != nil {
		log.Error("inventory release failed, handing off to worker",
			slog.String("action", "inventory.release"), slog.Any("err", err))
		Emit(m.Events, TopicReleaseRequested, EventReleaseRequested, m.Producer, "", id,
			ReleaseRequestedPayload{OrderID: id, Reason: reason})
		return
	}
	if released > 0 {
		log.Info("inventory released for cancelled order", slog.Int("lines", released))
	}
}

// refund runs once per order because only the applied transition reaches it.
func (m *Machine) refund(ctx context.Context, o Order) {
	if m.Loyalty == nil || o.UserID == nil || o.PointsRedeemed <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := m.Loyalty.RefundPoints(ctx, *o.UserID, o.PointsRedeemed); err != nil {
		m.logger().Error("loyalty refund failed",
			slog.String("action", "loyalty.refund"),
			slog.String("order_id", o.ID.String()),
			slog.Int("points", o.PointsRedeemed),
			slog.Any("err", err))
	}
}
