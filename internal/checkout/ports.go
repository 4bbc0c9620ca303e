package checkout

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

type Carts interface {
	Resolve(ctx context.Context, ref cart.Ref) (cart.Cart, error)
	MarkConsumed(ctx context.Context, cartID, orderID uuid.UUID) error
}

type Catalog interface {
	Variants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Variant, error)
}

type Inventory interface {
	Reserve(ctx context.Context, orderID, variantID uuid.UUID, qty int) error
	ReleaseOrder(ctx context.Context, orderID uuid.UUID) (int, error)
}

type Orders interface {
	Insert(ctx context.Context, o orders.Order) error
	ClearIdempotencyKey(ctx context.Context, orderID uuid.UUID) error
}

type Canceller interface {
	Cancel(ctx context.Context, id uuid.UUID, reason string) (orders.Order, error)
}

type Loyalty interface {
	RedeemPoints(ctx context.Context, accountID uuid.UUID, points int) error
	RefundPoints(ctx context.Context, accountID uuid.UUID, points int) error
}

type Promoter interface {
	Evaluate(ctx context.Context, in accounts.Input) (*accounts.Outcome, error)
}

// RateSource quotes how many NGN one unit of currency costs.
type RateSource interface {
	GetExchangeRate(ctx context.Context, currency string) (decimal.Decimal, error)
}

type ShippingQuoter interface {
	GetShippingQuote(ctx context.Context, zone Zone, method string) (Quote, error)
}
