package cart_test

import (
	"context"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/postgres/pgtest"
)

type cartSuite struct {
	suite.Suite

	pool    *pgxpool.Pool
	cleanup func()
	store   *cart.Store
}

func TestCartSuite(t *testing.T) {
	suite.Run(t, new(cartSuite))
}

func (s *cartSuite) SetupSuite() {
	var err error
	s.pool, s.cleanup, err = pgtest.Start(s.T().Context())
	s.Require().NoError(err)
	s.store = &cart.Store{DB: s.pool}
}

func (s *cartSuite) TearDownSuite() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func (s *cartSuite) TearDownTest() {
	s.Require().NoError(pgtest.Truncate(context.Background(), s.pool))
}

func (s *cartSuite) variant(price string) uuid.UUID {
	qty := 10
	id, err := pgtest.SeedVariant(s.T().Context(), s.pool, pgtest.VariantSeed{
		PriceNGN: decimal.RequireFromString(price),
		Quantity: &qty,
	})
	s.Require().NoError(err)
	return id
}

func (s *cartSuite) TestAddCapturesPriceAndMerges() {
	ctx := s.T().Context()
	ref := cart.Ref{GuestToken: gofakeit.UUID()}
	v := s.variant("45000")

	c, err := s.store.AddItem(ctx, ref, v, 1)
	s.Require().NoError(err)

	// later catalog price changes do not touch the captured price
	_, err = s.pool.Exec(ctx, `UPDATE product_variants SET price_ngn = 99000 WHERE id = $1`, v)
	s.Require().NoError(err)

	c, err = s.store.AddItem(ctx, ref, v, 2)
	s.Require().NoError(err)
	s.Require().Len(c.Items, 1)
	s.Equal(3, c.Items[0].Quantity)
	s.True(c.Items[0].UnitPrice.Equal(decimal.NewFromInt(45000)))
	s.True(c.Subtotal().Equal(decimal.NewFromInt(135000)))
}

func (s *cartSuite) TestAddValidation() {
	ctx := s.T().Context()
	ref := cart.Ref{GuestToken: gofakeit.UUID()}

	_, err := s.store.AddItem(ctx, ref, s.variant("100"), 0)
	s.ErrorIs(err, cart.ErrInvalidQuantity)

	_, err = s.store.AddItem(ctx, ref, uuid.New(), 1)
	s.ErrorIs(err, cart.ErrVariantNotFound)

	_, err = s.store.AddItem(ctx, cart.Ref{}, s.variant("100"), 1)
	s.ErrorIs(err, cart.ErrNoOwner)
}

func (s *cartSuite) TestUpdateAndRemove() {
	ctx := s.T().Context()
	user, err := pgtest.SeedAccount(ctx, s.pool, gofakeit.Email(), 0)
	s.Require().NoError(err)
	ref := cart.Ref{UserID: &user}

	c, err := s.store.AddItem(ctx, ref, s.variant("1000"), 1)
	s.Require().NoError(err)
	c, err = s.store.AddItem(ctx, ref, s.variant("2000"), 1)
	s.Require().NoError(err)
	s.Require().Len(c.Items, 2)

	c, err = s.store.UpdateItem(ctx, ref, c.Items[0].ID, 4)
	s.Require().NoError(err)
	s.Equal(4, c.Items[0].Quantity)

	c, err = s.store.UpdateItem(ctx, ref, c.Items[0].ID, 0)
	s.Require().NoError(err)
	s.Len(c.Items, 1)

	_, err = s.store.RemoveItem(ctx, ref, uuid.New())
	s.ErrorIs(err, cart.ErrItemNotFound)
}

func (s *cartSuite) TestResolvePrecedenceAndEmpty() {
	ctx := s.T().Context()
	guest := cart.Ref{GuestToken: gofakeit.UUID()}

	_, err := s.store.Resolve(ctx, guest)
	s.ErrorIs(err, cart.ErrCartNotFound)

	c, err := s.store.AddItem(ctx, guest, s.variant("500"), 1)
	s.Require().NoError(err)

	byID, err := s.store.Resolve(ctx, cart.Ref{CartID: &c.ID})
	s.Require().NoError(err)
	s.Equal(c.ID, byID.ID)

	// a user ref never falls through to the guest token
	user, err := pgtest.SeedAccount(ctx, s.pool, gofakeit.Email(), 0)
	s.Require().NoError(err)
	_, err = s.store.Resolve(ctx, cart.Ref{UserID: &user, GuestToken: guest.GuestToken})
	s.ErrorIs(err, cart.ErrCartNotFound)
}

func (s *cartSuite) TestMarkConsumedOnce() {
	ctx := s.T().Context()
	ref := cart.Ref{GuestToken: gofakeit.UUID()}
	c, err := s.store.AddItem(ctx, ref, s.variant("500"), 1)
	s.Require().NoError(err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.MarkConsumed(ctx, c.ID, uuid.New()); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, ok)

	_, err = s.store.Resolve(ctx, ref)
	s.ErrorIs(err, cart.ErrCartNotFound)

	// a consumed cart frees the token for a fresh one
	fresh, err := s.store.AddItem(ctx, ref, s.variant("700"), 1)
	s.Require().NoError(err)
	s.NotEqual(c.ID, fresh.ID)
}
