package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(30000000), ToMinor(decimal.RequireFromString("300000")))
	assert.Equal(t, int64(1999), ToMinor(decimal.RequireFromString("19.985")))
	assert.True(t, FromMinor(30000000).Equal(decimal.NewFromInt(300000)))
}

func TestMarkedUpRate(t *testing.T) {
	got := MarkedUpRate(decimal.NewFromInt(1500), decimal.RequireFromString("2.5"))
	assert.Equal(t, "1537.50", got.StringFixed(2))
}

func TestFromBase(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		markup string
		want   string
	}{
		{name: "no markup", amount: "300000", rate: "1500", markup: "0", want: "200.00"},
		{name: "with markup", amount: "300000", rate: "1500", markup: "5", want: "210.00"},
		{name: "zero rate", amount: "300000", rate: "0", markup: "5", want: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromBase(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate), decimal.RequireFromString(tt.markup))
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(New(decimal.RequireFromString("1500.5"), NGN))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1500.50","currency":"NGN"}`, string(b))

	_, err = ParseCurrency("NOPE1")
	require.Error(t, err)

	u, err := ParseCurrency("")
	require.NoError(t, err)
	assert.Equal(t, "NGN", u.String())
}
