package checkout

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/money"
)

var ErrNoRate = errors.New("no exchange rate for currency")

// Converter turns NGN totals into the charge currency.
type Converter struct {
	Rates         RateSource                 // optional
	Fallback      map[string]decimal.Decimal // NGN per unit, keyed by ISO code
	MarkupPercent decimal.Decimal
	Logger        *slog.Logger
}

// Rate returns how many NGN one unit of cur costs. NGN is always 1. A currency
// with no positive rate from either the source or the fallback table is
// ErrNoRate; it is never charged at some other currency's rate.
func (c *Converter) Rate(ctx context.Context, cur currency.Unit) (decimal.Decimal, error) {
	if cur == money.NGN {
		return decimal.NewFromInt(1), nil
	}
	if c == nil {
		return decimal.Zero, ErrNoRate
	}
	if c.Rates != nil {
		r, err := c.Rates.GetExchangeRate(ctx, cur.String())
		switch {
		case err != nil:
			c.logger().Warn("exchange rate unavailable, using fallback",
				slog.String("currency", cur.String()), slog.Any("err", err))
		case r.IsPositive():
			return r, nil
		}
	}
	if r, ok := c.Fallback[cur.String()]; ok && r.IsPositive() {
		return r, nil
	}
	return decimal.Zero, ErrNoRate
}

// Convert applies a rate obtained from Rate. NGN amounts pass through without markup.
func (c *Converter) Convert(amountNGN decimal.Decimal, cur currency.Unit, rate decimal.Decimal) decimal.Decimal {
	if cur == money.NGN {
		return amountNGN
	}
	var markup decimal.Decimal
	if c != nil {
		markup = c.MarkupPercent
	}
	return money.FromBase(amountNGN, rate, markup)
}

func (c *Converter) Charge(ctx context.Context, amountNGN decimal.Decimal, cur currency.Unit) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx, cur)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Convert(amountNGN, cur, rate), nil
}

func (c *Converter) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
