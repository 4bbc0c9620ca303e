package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

type Contact struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (c Contact) Name() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Item is the price snapshot taken at checkout; it never changes afterwards.
type Item struct {
	VariantID uuid.UUID       `json:"variant_id"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	Number           string          `json:"order_number"`
	UserID           *uuid.UUID      `json:"user_id,omitempty"`
	Status           Status          `json:"status"`
	Currency         string          `json:"currency"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	Discount         decimal.Decimal `json:"discount"`
	PointsRedeemed   int             `json:"points_redeemed"`
	Total            decimal.Decimal `json:"total"`
	ChargeAmount     decimal.Decimal `json:"charge_amount"`
	ChargeCurrency   string          `json:"charge_currency"`
	ShippingAddress  Address         `json:"shipping_address"`
	ShippingMethod   string          `json:"shipping_method"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
	IdempotencyKey   *string         `json:"-"`
	Contact          Contact         `json:"contact"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	Items            []Item          `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
