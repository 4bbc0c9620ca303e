package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrVariantNotFound = errors.New("variant not found")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrNoOwner         = errors.New("cart needs a user or a guest token")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusConsumed Status = "consumed"
)

// Ref names the cart a caller is acting on. An authenticated user wins over a
// guest token, which wins over a bare cart id.
type Ref struct {
	UserID     *uuid.UUID
	GuestToken string
	CartID     *uuid.UUID
}

func (r Ref) IsGuest() bool { return r.UserID == nil }

// Item holds the unit price captured when the variant was added.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	VariantID uuid.UUID       `json:"variant_id"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	GuestToken string     `json:"-"`
	Status     Status     `json:"status"`
	Items      []Item     `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}
