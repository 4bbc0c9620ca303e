package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Variant carries its inventory quantity so callers do not need a second read.
// Attributes is catalog-defined; "color" is the only key the service interprets.
type Variant struct {
	ID         uuid.UUID         `json:"id"`
	ProductID  uuid.UUID         `json:"product_id"`
	SKU        string            `json:"sku"`
	PriceNGN   decimal.Decimal   `json:"price_ngn"`
	PriceUSD   *decimal.Decimal  `json:"price_usd,omitempty"`
	Attributes map[string]string `json:"attributes"`
	WeightG    int               `json:"weight_g"`
	Quantity   int               `json:"quantity"`
}

const AttrColor = "color"

// ProductView is a product with its variants and the rollup derived from them.
type ProductView struct {
	Product
	Rollup
	Variants []Variant `json:"variants"`
}
