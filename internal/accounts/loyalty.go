package accounts

import "github.com/shopspring/decimal"

var (
	PointValue       = decimal.NewFromInt(10) // ₦ per point
	maxDiscountRatio = decimal.NewFromFloat(0.5)
)

// Redemption returns how many of the requested points can be spent against
// subtotal and the discount they buy. The discount never exceeds half the
// subtotal, and only whole points are spent.
func Redemption(requested int, subtotal decimal.Decimal) (int, decimal.Decimal) {
	if requested <= 0 || !subtotal.IsPositive() {
		return 0, decimal.Zero
	}
	discount := decimal.Min(PointValue.Mul(decimal.NewFromInt(int64(requested))), subtotal.Mul(maxDiscountRatio))
	points := discount.Div(PointValue).IntPart()
	return int(points), PointValue.Mul(decimal.NewFromInt(points))
}
