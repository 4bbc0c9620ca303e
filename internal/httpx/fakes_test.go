package httpx

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/payments"
)

type fakeCheckout struct {
	mu   sync.Mutex
	got  []checkout.Request
	body []byte
	err  error
}

func (f *fakeCheckout) CheckoutJSON(_ context.Context, req checkout.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	return f.body, f.err
}

type fakeReconciler struct {
	reports []payments.Report
	order   orders.Order
	err     error
}

func (f *fakeReconciler) Reconcile(_ context.Context, rep payments.Report) (orders.Order, error) {
	f.reports = append(f.reports, rep)
	return f.order, f.err
}

func (f *fakeReconciler) Verify(context.Context, string) (orders.Order, error) {
	return f.order, f.err
}

type fakeOrders struct {
	order     orders.Order
	cancelled []string
	moved     []orders.Status
}

func (f *fakeOrders) Get(_ context.Context, id uuid.UUID) (orders.Order, error) {
	if id != f.order.ID {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return f.order, nil
}

func (f *fakeOrders) History(context.Context, uuid.UUID) ([]orders.Status, error) {
	return []orders.Status{orders.StatusPendingPayment}, nil
}

func (f *fakeOrders) Transition(_ context.Context, _ uuid.UUID, from []orders.Status, to orders.Status, _ string) (orders.Order, error) {
	if len(from) == 0 || !orders.CanTransition(f.order.Status, to) {
		return f.order, &orders.TransitionError{OrderID: f.order.ID, Current: f.order.Status, To: to}
	}
	f.moved = append(f.moved, to)
	f.order.Status = to
	return f.order, nil
}

func (f *fakeOrders) Cancel(_ context.Context, _ uuid.UUID, reason string) (orders.Order, error) {
	f.cancelled = append(f.cancelled, reason)
	f.order.Status = orders.StatusCancelled
	return f.order, nil
}

type fakeLedger struct {
	adjusted []inventory.Adjustment
}

func (f *fakeLedger) Adjust(_ context.Context, adj inventory.Adjustment) (inventory.Record, error) {
	f.adjusted = append(f.adjusted, adj)
	return inventory.Record{VariantID: adj.VariantID, Quantity: adj.Amount}, nil
}

func (f *fakeLedger) Get(context.Context, uuid.UUID) (inventory.Record, error) {
	return inventory.Record{}, inventory.ErrVariantNotFound
}

func (f *fakeLedger) List(_ context.Context, filter inventory.Filter) (inventory.Page, error) {
	if filter.Cursor == "bad" {
		return inventory.Page{}, inventory.ErrInvalidCursor
	}
	return inventory.Page{}, nil
}

type memStatus struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStatus) Get(_ context.Context, id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[id]
	return b, ok
}

func (m *memStatus) Set(_ context.Context, id string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[id] = body
	return nil
}
