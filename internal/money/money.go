// Package money holds decimal amounts tagged with an ISO 4217 currency.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	NGN = currency.MustParseISO("NGN")
	USD = currency.USD
)

var hundred = decimal.NewFromInt(100)

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

func New(amount decimal.Decimal, cur currency.Unit) Money {
	return Money{Amount: amount.Round(2), Currency: cur}
}

// ParseCurrency accepts an ISO code; an empty string means NGN.
func ParseCurrency(code string) (currency.Unit, error) {
	if code == "" {
		return NGN, nil
	}
	u, err := currency.ParseISO(code)
	if err != nil {
		return currency.Unit{}, fmt.Errorf("money.ParseCurrency %q: %w", code, err)
	}
	return u, nil
}

func (m Money) String() string {
	return m.Currency.String() + " " + m.Amount.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{m.Amount.StringFixed(2), m.Currency.String()})
}

// ToMinor converts a major-unit amount to minor units (kobo, cents).
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// MarkedUpRate applies a percentage markup to an exchange rate, quantized to 0.01.
func MarkedUpRate(rate, markupPercent decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(1).Add(markupPercent.Div(hundred))).Round(2)
}

// FromBase converts an NGN amount into a currency quoted at ratePerUnit NGN,
// charging markupPercent on top.
func FromBase(amount, ratePerUnit, markupPercent decimal.Decimal) decimal.Decimal {
	if ratePerUnit.IsZero() {
		return decimal.Zero
	}
	converted := amount.Div(ratePerUnit)
	return converted.Mul(decimal.NewFromInt(1).Add(markupPercent.Div(hundred))).Round(2)
}
