package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/payments"
)

type memCarts struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart // by guest token or user id
}

func (m *memCarts) key(ref cart.Ref) string {
	if ref.UserID != nil {
		return ref.UserID.String()
	}
	return ref.GuestToken
}

func (m *memCarts) put(ref cart.Ref, items ...cart.Item) *cart.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.carts == nil {
		m.carts = map[string]*cart.Cart{}
	}
	c := &cart.Cart{ID: uuid.New(), UserID: ref.UserID, GuestToken: ref.GuestToken, Status: cart.StatusActive, Items: items}
	m.carts[m.key(ref)] = c
	return c
}

func (m *memCarts) Resolve(_ context.Context, ref cart.Ref) (cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[m.key(ref)]
	if !ok || c.Status != cart.StatusActive || len(c.Items) == 0 {
		return cart.Cart{}, cart.ErrCartNotFound
	}
	return *c, nil
}

func (m *memCarts) MarkConsumed(_ context.Context, cartID, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.ID == cartID && c.Status == cart.StatusActive {
			c.Status = cart.StatusConsumed
			return nil
		}
	}
	return cart.ErrCartNotFound
}

// memStock is a ledger with reservations keyed by order.
type memStock struct {
	mu       sync.Mutex
	qty      map[uuid.UUID]int
	reserved map[uuid.UUID]map[uuid.UUID]int
	released map[uuid.UUID]bool
	skus     map[uuid.UUID]string
}

func newMemStock() *memStock {
	return &memStock{
		qty:      map[uuid.UUID]int{},
		reserved: map[uuid.UUID]map[uuid.UUID]int{},
		released: map[uuid.UUID]bool{},
		skus:     map[uuid.UUID]string{},
	}
}

func (m *memStock) add(qty int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.qty[id] = qty
	m.skus[id] = "SKU-" + strings.ToUpper(id.String()[:6])
	return id
}

func (m *memStock) get(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qty[id]
}

func (m *memStock) Variants(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]catalog.Variant{}
	for _, id := range ids {
		if q, ok := m.qty[id]; ok {
			out[id] = catalog.Variant{ID: id, SKU: m.skus[id], Quantity: q}
		}
	}
	return out, nil
}

func (m *memStock) Reserve(_ context.Context, orderID, variantID uuid.UUID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reserved[orderID][variantID]; ok {
		return nil
	}
	cur, ok := m.qty[variantID]
	if !ok {
		return inventory.ErrVariantNotFound
	}
	if cur < qty {
		return inventory.ErrInsufficientStock
	}
	m.qty[variantID] = cur - qty
	if m.reserved[orderID] == nil {
		m.reserved[orderID] = map[uuid.UUID]int{}
	}
	m.reserved[orderID][variantID] = qty
	return nil
}

func (m *memStock) ReleaseOrder(_ context.Context, orderID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released[orderID] {
		return 0, nil
	}
	m.released[orderID] = true
	for v, q := range m.reserved[orderID] {
		m.qty[v] += q
	}
	return len(m.reserved[orderID]), nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]orders.Order
	keys   map[string]uuid.UUID
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[uuid.UUID]orders.Order{}, keys: map[string]uuid.UUID{}}
}

func (m *memOrders) Insert(_ context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.IdempotencyKey != nil {
		if _, dup := m.keys[*o.IdempotencyKey]; dup {
			return orders.ErrDuplicateOrder
		}
		m.keys[*o.IdempotencyKey] = o.ID
	}
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) ClearIdempotencyKey(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	if o.IdempotencyKey != nil && o.Status == orders.StatusCancelled {
		delete(m.keys, *o.IdempotencyKey)
		o.IdempotencyKey = nil
		m.orders[id] = o
	}
	return nil
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
	m.orders[id] = o
	return o, true, nil
}

func (m *memOrders) AttachAccount(_ context.Context, orderID, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[orderID]
	if o.UserID == nil {
		o.UserID = &accountID
		m.orders[orderID] = o
	}
	return nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memOrders) byStatus(s orders.Status) []orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(lo.Values(m.orders), func(o orders.Order, _ int) bool { return o.Status == s })
}

type memIdentity struct {
	mu      sync.Mutex
	byEmail map[string]uuid.UUID
}

func (m *memIdentity) CreateOrLinkAccount(_ context.Context, r accounts.Registration) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byEmail == nil {
		m.byEmail = map[string]uuid.UUID{}
	}
	key := strings.ToLower(r.Email)
	if id, ok := m.byEmail[key]; ok {
		return uuid.Nil, &accounts.ExistsError{ID: id}
	}
	id := uuid.New()
	m.byEmail[key] = id
	return id, nil
}

type memLoyalty struct {
	mu      sync.Mutex
	balance map[uuid.UUID]int
}

func (m *memLoyalty) RedeemPoints(_ context.Context, id uuid.UUID, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance[id] < points {
		return accounts.ErrInsufficientPoints
	}
	m.balance[id] -= points
	return nil
}

func (m *memLoyalty) RefundPoints(_ context.Context, id uuid.UUID, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance[id] += points
	return nil
}

type fakeGateway struct {
	calls atomic.Int32
	fail  bool
	block chan struct{}
}

func (g *fakeGateway) CreateSession(ctx context.Context, req payments.SessionRequest) (payments.Session, error) {
	g.calls.Add(1)
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return payments.Session{}, ctx.Err()
		}
	}
	if g.fail {
		return payments.Session{}, errors.New("gateway unavailable")
	}
	return payments.Session{Reference: req.Reference, AuthorizationURL: "https://pay.test/" + req.Reference}, nil
}

func (g *fakeGateway) Verify(_ context.Context, ref string) (payments.Verification, error) {
	return payments.Verification{Reference: ref, Status: payments.StatusPending}, nil
}

func item(variantID uuid.UUID, qty int, price int64) cart.Item {
	return cart.Item{ID: uuid.New(), VariantID: variantID, Quantity: qty, UnitPrice: decimal.NewFromInt(price)}
}
