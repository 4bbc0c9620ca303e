package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/idempotency"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

type harness struct {
	svc     *Service
	carts   *memCarts
	stock   *memStock
	orders  *memOrders
	idp     *memIdentity
	loyalty *memLoyalty
	gateway *fakeGateway
}

func newHarness() *harness {
	h := &harness{
		carts:   &memCarts{},
		stock:   newMemStock(),
		orders:  newMemOrders(),
		idp:     &memIdentity{},
		loyalty: &memLoyalty{balance: map[uuid.UUID]int{}},
		gateway: &fakeGateway{},
	}
	machine := &orders.Machine{Repo: h.orders, Inventory: h.stock, Loyalty: h.loyalty, ReleaseBackoff: time.Millisecond}
	h.svc = &Service{
		Carts:     h.carts,
		Catalog:   h.stock,
		Inventory: h.stock,
		Orders:    h.orders,
		Machine:   machine,
		Loyalty:   h.loyalty,
		Promoter:  &accounts.Promoter{Identity: h.idp, Orders: h.orders},
		Gateway:   h.gateway,
		Converter: &Converter{Fallback: map[string]decimal.Decimal{"USD": decimal.NewFromInt(1500)}},
		Idempotency: &idempotency.Cache{
			Store: idempotency.NewMemoryStore(),
			Poll:  time.Millisecond,
			Wait:  5 * time.Second,
		},
		Currency:       "NGN",
		PaymentTimeout: 50 * time.Millisecond,
		PaymentBackoff: time.Millisecond,
		ReleaseBackoff: time.Millisecond,
	}
	return h
}

func guestRequest(token, email, key string) Request {
	return Request{
		Cart: cart.Ref{GuestToken: token},
		ShippingAddress: orders.Address{
			FullName: "Ada Obi",
			Phone:    "+2348000000000",
			State:    "Lagos",
			Country:  "NG",
		},
		PaymentMethod:  "card",
		IdempotencyKey: key,
		Contact:        orders.Contact{Email: email, Phone: "+2348000000000", FirstName: "Ada"},
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	h := newHarness()
	v := h.stock.add(5)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 2, 25000))

	res, err := h.svc.Checkout(t.Context(), guestRequest("g1", "small@example.com", "k1"))
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPendingPayment, res.Status)
	assert.Equal(t, PaymentStatusPending, res.PaymentStatus)
	assert.Regexp(t, `^pst_[a-z0-9]{20}$`, res.PaymentReference)
	assert.Equal(t, "https://pay.test/"+res.PaymentReference, res.AuthorizationURL)
	assert.Regexp(t, `^ORD-\d{8}-[A-Z0-9]{6}$`, res.OrderNumber)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(50000)))
	assert.Nil(t, res.Account, "below the promotion band")
	assert.Equal(t, 3, h.stock.get(v))

	_, err = h.carts.Resolve(t.Context(), cart.Ref{GuestToken: "g1"})
	assert.ErrorIs(t, err, cart.ErrCartNotFound)
	assert.Empty(t, h.idp.byEmail)
}

func TestCheckoutSameKeyIsByteIdentical(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness()
	v := h.stock.add(10)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 1, 300000))
	h.gateway.block = make(chan struct{})

	const callers = 20
	bodies := make([][]byte, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := h.svc.CheckoutJSON(context.Background(), guestRequest("g1", "guest@example.com", "same-key"))
			assert.NoError(t, err)
			bodies[i] = b
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(h.gateway.block)
	wg.Wait()

	for _, b := range bodies {
		assert.Equal(t, string(bodies[0]), string(b))
	}
	assert.Equal(t, 1, h.orders.count())
	assert.Equal(t, int32(1), h.gateway.calls.Load())
	assert.Equal(t, 9, h.stock.get(v))

	// a later replay still returns the stored bytes even though the cart is gone
	again, err := h.svc.CheckoutJSON(t.Context(), guestRequest("g1", "guest@example.com", "same-key"))
	require.NoError(t, err)
	assert.Equal(t, string(bodies[0]), string(again))
	assert.Len(t, h.idp.byEmail, 1)
}

func TestCheckoutGuestPromotion(t *testing.T) {
	h := newHarness()
	v := h.stock.add(10)

	h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 1, 300000))
	first, err := h.svc.Checkout(t.Context(), guestRequest("g1", "guest@example.com", "k1"))
	require.NoError(t, err)
	require.NotNil(t, first.Account)
	assert.True(t, first.Account.Created)
	assert.Equal(t, accounts.TierMuse, first.Account.Tier)
	require.NotNil(t, first.Account.HasUpdatedDefaultPassword)
	assert.False(t, *first.Account.HasUpdatedDefaultPassword)

	h.carts.put(cart.Ref{GuestToken: "g2"}, item(v, 1, 300000))
	second, err := h.svc.Checkout(t.Context(), guestRequest("g2", "guest@example.com", "k2"))
	require.NoError(t, err)
	require.NotNil(t, second.Account)
	assert.False(t, second.Account.Created)
	assert.Equal(t, first.Account.AccountID, second.Account.AccountID)
	assert.Len(t, h.idp.byEmail, 1)

	o, err := h.orders.Get(t.Context(), second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, &first.Account.AccountID, o.UserID)
}

func TestCheckoutOutOfStockRollsBackEverything(t *testing.T) {
	h := newHarness()
	plenty := h.stock.add(10)
	empty := h.stock.add(0)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(plenty, 2, 1000), item(empty, 1, 1000))

	_, err := h.svc.Checkout(t.Context(), guestRequest("g1", "a@example.com", "k1"))
	require.ErrorIs(t, err, ErrOutOfStock)
	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, []uuid.UUID{empty}, oos.VariantIDs)

	assert.Zero(t, h.orders.count())
	assert.Equal(t, 10, h.stock.get(plenty))
	assert.Zero(t, h.gateway.calls.Load())
}

// Stock that disappears between validation and reservation is still caught,
// and reservations already taken in the attempt are returned.
func TestCheckoutReservationRaceCompensates(t *testing.T) {
	h := newHarness()
	a := h.stock.add(5)
	b := h.stock.add(1)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(a, 2, 1000), item(b, 1, 1000))
	h.svc.Catalog = staleCatalog{h.stock}
	require.NoError(t, h.stock.Reserve(t.Context(), uuid.New(), b, 1))

	_, err := h.svc.Checkout(t.Context(), guestRequest("g1", "a@example.com", ""))
	require.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 5, h.stock.get(a))
	assert.Zero(t, h.orders.count())
}

type staleCatalog struct{ *memStock }

func (s staleCatalog) Variants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Variant, error) {
	m, err := s.memStock.Variants(ctx, ids)
	for id, v := range m {
		v.Quantity = 100
		m[id] = v
	}
	return m, err
}

func TestCheckoutPaymentSessionFailureCancelsOrder(t *testing.T) {
	h := newHarness()
	v := h.stock.add(4)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 3, 1000))
	h.gateway.fail = true
	h.svc.PaymentRetries = 2

	_, err := h.svc.Checkout(t.Context(), guestRequest("g1", "a@example.com", "k1"))
	require.ErrorIs(t, err, ErrPaymentSession)
	assert.Equal(t, int32(3), h.gateway.calls.Load())
	assert.Equal(t, 4, h.stock.get(v))

	cancelled := h.orders.byStatus(orders.StatusCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, ReasonPaymentSessionFailed, cancelled[0].CancelReason)

	// the failure was not stored, so the same key can succeed once the gateway recovers
	h.gateway.fail = false
	res, err := h.svc.Checkout(t.Context(), guestRequest("g1", "a@example.com", "k1"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.stock.get(v))
	assert.NotEqual(t, cancelled[0].ID, res.OrderID)
}

func TestCheckoutPaymentSessionTimeout(t *testing.T) {
	h := newHarness()
	v := h.stock.add(1)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 1, 1000))
	h.gateway.block = make(chan struct{})
	defer close(h.gateway.block)

	_, err := h.svc.Checkout(t.Context(), guestRequest("g1", "a@example.com", ""))
	require.ErrorIs(t, err, ErrPaymentSession)
	assert.Equal(t, 1, h.stock.get(v))
}

func TestCheckoutPointsWithoutLoyaltyStoreAreRejected(t *testing.T) {
	h := newHarness()
	h.svc.Loyalty = nil
	user := uuid.New()
	v := h.stock.add(5)
	h.carts.put(cart.Ref{UserID: &user}, item(v, 1, 10000))

	req := guestRequest("", "member@example.com", "k1")
	req.Cart = cart.Ref{UserID: &user}
	req.ApplyPoints = true
	req.PointsToRedeem = 1000

	_, err := h.svc.Checkout(t.Context(), req)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "apply_points", ve.Field)
	assert.Equal(t, 5, h.stock.get(v))
	assert.Zero(t, h.orders.count())
}

func TestCheckoutLoyaltyPoints(t *testing.T) {
	h := newHarness()
	user := uuid.New()
	h.loyalty.balance[user] = 1000
	v := h.stock.add(5)
	h.carts.put(cart.Ref{UserID: &user}, item(v, 1, 10000))

	req := guestRequest("", "member@example.com", "k1")
	req.Cart = cart.Ref{UserID: &user}
	req.ApplyPoints = true
	req.PointsToRedeem = 1000

	res, err := h.svc.Checkout(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, 500, res.PointsRedeemed)
	assert.True(t, res.Discount.Equal(decimal.NewFromInt(5000)))
	assert.True(t, res.Total.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, 500, h.loyalty.balance[user])
	assert.Nil(t, res.Account)

	// cancelling gives the points back exactly once
	m := h.svc.Machine.(*orders.Machine)
	_, err = m.Cancel(t.Context(), res.OrderID, "customer_request")
	require.NoError(t, err)
	_, err = m.Cancel(t.Context(), res.OrderID, "customer_request")
	require.NoError(t, err)
	assert.Equal(t, 1000, h.loyalty.balance[user])
	assert.Equal(t, 5, h.stock.get(v))
}

func TestCheckoutValidation(t *testing.T) {
	h := newHarness()
	v := h.stock.add(5)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 1, 1000))

	tests := []struct {
		name  string
		mut   func(*Request)
		field string
	}{
		{"guest without email", func(r *Request) { r.Contact.Email = "" }, "email"},
		{"guest without phone", func(r *Request) { r.Contact.Phone = "" }, "phone"},
		{"no country", func(r *Request) { r.ShippingAddress.Country = "" }, "shipping_address.country"},
		{"unknown method", func(r *Request) { r.ShippingMethod = "drone" }, "shipping_method"},
		{"guest redeeming points", func(r *Request) { r.ApplyPoints, r.PointsToRedeem = true, 10 }, "apply_points"},
		{"bad currency", func(r *Request) { r.Currency = "ZZZZ" }, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := guestRequest("g1", "a@example.com", "")
			tt.mut(&req)
			_, err := h.svc.Checkout(t.Context(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Zero(t, h.orders.count())
}

func TestCheckoutUnknownCart(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Checkout(t.Context(), guestRequest("nobody", "a@example.com", ""))
	require.ErrorIs(t, err, ErrCartNotFound)
}

func TestCheckoutChargesInForeignCurrencyWithMarkup(t *testing.T) {
	h := newHarness()
	h.svc.Converter.MarkupPercent = decimal.NewFromInt(10)
	v := h.stock.add(5)
	h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 1, 150000))

	req := guestRequest("g1", "a@example.com", "")
	req.Currency = "USD"
	res, err := h.svc.Checkout(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, "USD", res.ChargeCurrency)
	assert.Equal(t, "110", res.ChargeAmount.String())
	assert.True(t, res.Total.Equal(decimal.NewFromInt(150000)))
}

func TestCheckoutRejectsCurrencyWithoutRate(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		fallback map[string]decimal.Decimal
	}{
		{name: "no rate known", currency: "JPY", fallback: map[string]decimal.Decimal{"USD": decimal.NewFromInt(1500)}},
		{name: "zero rate", currency: "USD", fallback: map[string]decimal.Decimal{"USD": decimal.Zero}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.svc.Converter.Fallback = tt.fallback
			v := h.stock.add(5)
			h.carts.put(cart.Ref{GuestToken: "g1"}, item(v, 2, 150000))

			req := guestRequest("g1", "a@example.com", "")
			req.Currency = tt.currency
			_, err := h.svc.Checkout(t.Context(), req)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "currency", ve.Field)
			assert.Equal(t, 5, h.stock.get(v))
			assert.Zero(t, h.orders.count())
			assert.Zero(t, h.gateway.calls.Load())
		})
	}
}
