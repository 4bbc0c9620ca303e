package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/postgres/pgtest"
)

type orderRepoSuite struct {
	suite.Suite

	pool    *pgxpool.Pool
	cleanup func()
	repo    *orders.Repo
	ledger  *inventory.Ledger
	machine *orders.Machine
}

func TestOrderRepoSuite(t *testing.T) {
	suite.Run(t, new(orderRepoSuite))
}

func (s *orderRepoSuite) SetupSuite() {
	var err error
	s.pool, s.cleanup, err = pgtest.Start(s.T().Context())
	s.Require().NoError(err)

	s.repo = &orders.Repo{DB: s.pool}
	s.ledger = &inventory.Ledger{DB: s.pool}
	s.machine = &orders.Machine{Repo: s.repo, Inventory: s.ledger}
}

func (s *orderRepoSuite) TearDownSuite() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func (s *orderRepoSuite) TearDownTest() {
	s.Require().NoError(pgtest.Truncate(context.Background(), s.pool))
}

func (s *orderRepoSuite) randomOrder(items ...orders.Item) orders.Order {
	total := lo.Reduce(items, func(acc decimal.Decimal, it orders.Item, _ int) decimal.Decimal {
		return acc.Add(it.LineTotal)
	}, decimal.Zero)

	return orders.Order{
		ID:             uuid.New(),
		Number:         orders.NewNumber(time.Now()),
		Status:         orders.StatusPendingPayment,
		Currency:       "NGN",
		Subtotal:       total,
		ShippingCost:   decimal.Zero,
		Discount:       decimal.Zero,
		Total:          total,
		ChargeAmount:   total,
		ChargeCurrency: "NGN",
		ShippingAddress: orders.Address{
			FullName: gofakeit.Name(),
			Phone:    gofakeit.Phone(),
			State:    gofakeit.State(),
			Country:  "NG",
		},
		ShippingMethod:   "standard",
		PaymentMethod:    "paystack",
		PaymentReference: "pst_" + gofakeit.LetterN(16),
		IdempotencyKey:   lo.ToPtr(gofakeit.UUID()),
		Contact:          orders.Contact{Email: gofakeit.Email(), Phone: gofakeit.Phone(), FirstName: gofakeit.FirstName(), LastName: gofakeit.LastName()},
		Items:            items,
	}
}

func (s *orderRepoSuite) item(qty int) orders.Item {
	stock := 10
	id, err := pgtest.SeedVariant(s.T().Context(), s.pool, pgtest.VariantSeed{Quantity: &stock, Threshold: 1})
	s.Require().NoError(err)
	price := decimal.NewFromInt(int64(gofakeit.Number(1000, 50000)))
	return orders.Item{VariantID: id, SKU: gofakeit.LetterN(8), Quantity: qty, UnitPrice: price, LineTotal: price.Mul(decimal.NewFromInt(int64(qty)))}
}

func (s *orderRepoSuite) TestInsertAndGet() {
	ctx := s.T().Context()
	want := s.randomOrder(s.item(1), s.item(2))

	s.Require().NoError(s.repo.Insert(ctx, want))

	got, err := s.repo.Get(ctx, want.ID)
	s.Require().NoError(err)

	byRef, err := s.repo.GetByReference(ctx, want.PaymentReference)
	s.Require().NoError(err)
	s.Equal(got.ID, byRef.ID)

	opts := []cmp.Option{
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		cmpopts.IgnoreFields(orders.Order{}, "CreatedAt", "UpdatedAt"),
		cmpopts.SortSlices(func(a, b orders.Item) bool { return a.SKU < b.SKU }),
	}
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		s.Failf("order mismatch", "(-want +got):\n%s", diff)
	}
}

func (s *orderRepoSuite) TestInsertDuplicateIdempotencyKey() {
	ctx := s.T().Context()
	first := s.randomOrder(s.item(1))
	s.Require().NoError(s.repo.Insert(ctx, first))

	second := s.randomOrder(s.item(1))
	second.IdempotencyKey = first.IdempotencyKey
	s.Require().ErrorIs(s.repo.Insert(ctx, second), orders.ErrDuplicateOrder)

	_, err := s.repo.Get(ctx, second.ID)
	s.Require().ErrorIs(err, orders.ErrOrderNotFound)
}

func (s *orderRepoSuite) TestClearIdempotencyKeyOnlyForCancelled() {
	ctx := s.T().Context()
	first := s.randomOrder(s.item(1))
	s.Require().NoError(s.repo.Insert(ctx, first))

	s.Require().NoError(s.repo.ClearIdempotencyKey(ctx, first.ID))
	retry := s.randomOrder(s.item(1))
	retry.IdempotencyKey = first.IdempotencyKey
	s.Require().ErrorIs(s.repo.Insert(ctx, retry), orders.ErrDuplicateOrder)

	_, err := s.machine.Cancel(ctx, first.ID, "payment_session_failed")
	s.Require().NoError(err)
	s.Require().NoError(s.repo.ClearIdempotencyKey(ctx, first.ID))
	s.Require().NoError(s.repo.Insert(ctx, retry))
}

func (s *orderRepoSuite) TestGetUnknown() {
	_, err := s.repo.GetByReference(s.T().Context(), "pst_missing")
	s.Require().ErrorIs(err, orders.ErrOrderNotFound)
}

func (s *orderRepoSuite) TestConcurrentCompareAndSetAppliesOnce() {
	ctx := s.T().Context()
	o := s.randomOrder(s.item(1))
	s.Require().NoError(s.repo.Insert(ctx, o))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.repo.CompareAndSetStatus(ctx, o.ID, []orders.Status{orders.StatusPendingPayment}, orders.StatusPaid, "webhook")
			s.NoError(err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, applied)

	hist, err := s.repo.History(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal([]orders.Status{orders.StatusPendingPayment, orders.StatusPaid}, hist)
}

// Cancelling a processing order releases exactly what was reserved, once.
func (s *orderRepoSuite) TestCancelProcessingReleasesReservedStock() {
	ctx := s.T().Context()
	a, b := s.item(2), s.item(3)
	o := s.randomOrder(a, b)

	s.Require().NoError(s.ledger.Reserve(ctx, o.ID, a.VariantID, a.Quantity))
	s.Require().NoError(s.ledger.Reserve(ctx, o.ID, b.VariantID, b.Quantity))
	s.Require().NoError(s.repo.Insert(ctx, o))

	_, err := s.machine.Transition(ctx, o.ID, []orders.Status{orders.StatusPendingPayment}, orders.StatusPaid, "webhook")
	s.Require().NoError(err)
	_, err = s.machine.Transition(ctx, o.ID, []orders.Status{orders.StatusPaid}, orders.StatusProcessing, "admin")
	s.Require().NoError(err)

	s.Equal(8, s.stock(a.VariantID))
	s.Equal(7, s.stock(b.VariantID))

	got, err := s.machine.Cancel(ctx, o.ID, "customer_request")
	s.Require().NoError(err)
	s.Equal(orders.StatusCancelled, got.Status)
	s.Equal("customer_request", got.CancelReason)
	s.Equal(10, s.stock(a.VariantID))
	s.Equal(10, s.stock(b.VariantID))

	_, err = s.machine.Cancel(ctx, o.ID, "customer_request")
	s.Require().NoError(err)
	s.Equal(10, s.stock(a.VariantID))
	s.Equal(10, s.stock(b.VariantID))
}

func (s *orderRepoSuite) TestListPendingBefore() {
	ctx := s.T().Context()
	old := s.randomOrder(s.item(1))
	s.Require().NoError(s.repo.Insert(ctx, old))
	_, err := s.pool.Exec(ctx, `UPDATE orders SET created_at = now() - interval '2 hours' WHERE id = $1`, old.ID)
	s.Require().NoError(err)

	fresh := s.randomOrder(s.item(1))
	s.Require().NoError(s.repo.Insert(ctx, fresh))

	got, err := s.repo.ListPendingBefore(ctx, time.Now().Add(-time.Hour), 10)
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{old.ID}, lo.Map(got, func(o orders.Order, _ int) uuid.UUID { return o.ID }))
}

func (s *orderRepoSuite) TestAttachAccount() {
	ctx := s.T().Context()
	o := s.randomOrder(s.item(1))
	s.Require().NoError(s.repo.Insert(ctx, o))

	acc, err := pgtest.SeedAccount(ctx, s.pool, gofakeit.Email(), 0)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.AttachAccount(ctx, o.ID, acc))

	other, err := pgtest.SeedAccount(ctx, s.pool, gofakeit.Email(), 0)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.AttachAccount(ctx, o.ID, other))

	got, err := s.repo.Get(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(&acc, got.UserID)
}

// Holds whose release hand-off never arrived are returned once they age past
// the grace period, but only for cancelled or missing orders.
func (s *orderRepoSuite) TestReclaimReleasesOrphanedHolds() {
	ctx := s.T().Context()
	backdate := func(orderID uuid.UUID) {
		_, err := s.pool.Exec(ctx, `UPDATE reservations SET created_at = now() - interval '2 hours' WHERE order_id = $1`, orderID)
		s.Require().NoError(err)
	}

	cancelledItem := s.item(2)
	cancelled := s.randomOrder(cancelledItem)
	s.Require().NoError(s.ledger.Reserve(ctx, cancelled.ID, cancelledItem.VariantID, cancelledItem.Quantity))
	s.Require().NoError(s.repo.Insert(ctx, cancelled))
	_, err := s.pool.Exec(ctx, `UPDATE orders SET status = 'cancelled' WHERE id = $1`, cancelled.ID)
	s.Require().NoError(err)
	backdate(cancelled.ID)

	missingItem := s.item(3)
	missingID := uuid.New()
	s.Require().NoError(s.ledger.Reserve(ctx, missingID, missingItem.VariantID, missingItem.Quantity))
	backdate(missingID)

	pendingItem := s.item(1)
	pending := s.randomOrder(pendingItem)
	s.Require().NoError(s.ledger.Reserve(ctx, pending.ID, pendingItem.VariantID, pendingItem.Quantity))
	s.Require().NoError(s.repo.Insert(ctx, pending))
	backdate(pending.ID)

	freshItem := s.item(4)
	freshID := uuid.New()
	s.Require().NoError(s.ledger.Reserve(ctx, freshID, freshItem.VariantID, freshItem.Quantity))

	r := &inventory.Reclaimer{Ledger: s.ledger, Grace: time.Hour, Batch: 10}
	n, err := r.ReclaimOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	s.Equal(10, s.stock(cancelledItem.VariantID))
	s.Equal(10, s.stock(missingItem.VariantID))
	s.Equal(9, s.stock(pendingItem.VariantID))
	s.Equal(6, s.stock(freshItem.VariantID))

	for id, want := range map[uuid.UUID]string{
		cancelled.ID: "RELEASED",
		missingID:    "RELEASED",
		pending.ID:   "RESERVED",
		freshID:      "RESERVED",
	} {
		res, err := s.ledger.Reservations(ctx, id)
		s.Require().NoError(err)
		s.Require().Len(res, 1)
		s.Equal(want, res[0].Status, id.String())
	}

	n, err = r.ReclaimOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n)
	s.Equal(10, s.stock(cancelledItem.VariantID))
}

func (s *orderRepoSuite) stock(id uuid.UUID) int {
	rec, err := s.ledger.Get(s.T().Context(), id)
	s.Require().NoError(err)
	return rec.Quantity
}
