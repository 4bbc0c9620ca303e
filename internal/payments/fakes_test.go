package payments

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

type memOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]orders.Order
	paid   atomic.Int32
}

func newMemOrders(os ...orders.Order) *memOrders {
	m := &memOrders{orders: map[uuid.UUID]orders.Order{}}
	for _, o := range os {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) Get(_ context.Context, id uuid.UUID) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (m *memOrders) GetByReference(_ context.Context, ref string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentReference == ref {
			return o, nil
		}
	}
	return orders.Order{}, orders.ErrOrderNotFound
}

func (m *memOrders) CompareAndSetStatus(_ context.Context, id uuid.UUID, from []orders.Status, to orders.Status, reason string) (orders.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return orders.Order{}, false, orders.ErrOrderNotFound
	}
	if !lo.Contains(from, o.Status) {
		return o, false, nil
	}
	o.Status = to
	if to == orders.StatusCancelled {
		o.CancelReason = reason
	}
	if to == orders.StatusPaid {
		m.paid.Add(1)
	}
	m.orders[id] = o
	return o, true, nil
}

func (m *memOrders) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := lo.Filter(lo.Values(m.orders), func(o orders.Order, _ int) bool {
		return o.Status == orders.StatusPendingPayment && o.CreatedAt.Before(cutoff)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type countingReleaser struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func (c *countingReleaser) ReleaseOrder(_ context.Context, id uuid.UUID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[uuid.UUID]int{}
	}
	c.calls[id]++
	return 1, nil
}

type stubGateway struct {
	mu       sync.Mutex
	statuses map[string]Verification
	err      error
}

func (g *stubGateway) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	return Session{Reference: req.Reference, AuthorizationURL: "https://pay.test/" + req.Reference}, nil
}

func (g *stubGateway) Verify(_ context.Context, ref string) (Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return Verification{}, g.err
	}
	v, ok := g.statuses[ref]
	if !ok {
		return Verification{Reference: ref, Status: StatusPending}, nil
	}
	return v, nil
}

func pendingOrder(ref string, amount int64) orders.Order {
	return orders.Order{
		ID:               uuid.New(),
		Status:           orders.StatusPendingPayment,
		PaymentReference: ref,
		Total:            decimal.NewFromInt(amount),
		ChargeAmount:     decimal.NewFromInt(amount),
		ChargeCurrency:   "NGN",
		CreatedAt:        time.Now(),
	}
}
