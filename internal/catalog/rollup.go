package catalog

import (
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Rollup is the product-level summary of a variant set. It is derived on every
// read and never stored.
type Rollup struct {
	PriceNGN *decimal.Decimal `json:"price_ngn"`
	PriceUSD *decimal.Decimal `json:"price_usd"`
	Color    string           `json:"color"`
	Stock    int              `json:"stock"`
}

func Roll(variants []Variant) Rollup {
	var r Rollup
	if len(variants) == 0 {
		return r
	}

	cheapest := lo.MinBy(variants, func(a, b Variant) bool { return a.PriceNGN.LessThan(b.PriceNGN) })
	r.PriceNGN = lo.ToPtr(cheapest.PriceNGN)

	withUSD := lo.Filter(variants, func(v Variant, _ int) bool { return v.PriceUSD != nil })
	if len(withUSD) > 0 {
		c := lo.MinBy(withUSD, func(a, b Variant) bool { return a.PriceUSD.LessThan(*b.PriceUSD) })
		r.PriceUSD = lo.ToPtr(*c.PriceUSD)
	}

	colors := lo.FilterMap(variants, func(v Variant, _ int) (string, bool) {
		c := strings.TrimSpace(v.Attributes[AttrColor])
		return c, c != ""
	})
	r.Color = strings.Join(lo.Uniq(colors), ", ")

	r.Stock = lo.SumBy(variants, func(v Variant) int { return v.Quantity })
	return r
}
