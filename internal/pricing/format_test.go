package pricing

import (
	"math"
	"strings"
	"testing"

	"house-price-workers/internal/common/config"

	"github.com/stretchr/testify/assert"
)

func TestCurrencyFormat(t *testing.T) {
	tests := []struct {
		name     string
		currency Currency
		amount   float64
		want     string
	}{
		{"usd", USD, 1234567, "$1,234,567"},
		{"inr", INR, 1234567, "₹ 1,234,567"},
		{"zero", USD, 0, "$0"},
		{"below a thousand", USD, 999, "$999"},
		{"rounds half away from zero", USD, 1234567.5, "$1,234,568"},
		{"rounds down", USD, 379749.49, "$379,749"},
		{"two decimals", Currency{Symbol: "$", Decimals: 2}, 1234567.891, "$1,234,567.89"},
		{"pads decimals", Currency{Symbol: "$", Decimals: 2}, 1234, "$1,234.00"},
		{"negative", USD, -1234.4, "-$1,234"},
		{"negative rounding to zero", USD, -0.4, "$0"},
		{"millions of rupees", INR, 98765432.1, "₹ 98,765,432"},
		{"no symbol", Currency{}, 1000, "1,000"},
		{"exact thousands", USD, 100000, "$100,000"},
		{"beyond int64", USD, 1e19, "$10,000,000,000,000,000,000"},
		{"negative beyond int64", USD, -1e19, "-$10,000,000,000,000,000,000"},
		{"large model output", USD, 1.4250000000000096e+19, "$14,250,000,000,000,096,000"},
		{"negative decimals count as zero", Currency{Symbol: "$", Decimals: -2}, 1234567, "$1,234,567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.currency.Format(tt.amount))
		})
	}
}

func TestCurrencyFormatNonFinite(t *testing.T) {
	assert.Equal(t, "NaN", USD.Format(math.NaN()))
	assert.Equal(t, "+Inf", USD.Format(math.Inf(1)))
}

func TestCurrencyCode(t *testing.T) {
	assert.Equal(t, "USD", USD.Code())
	assert.Equal(t, "INR", INR.Code())
	assert.Equal(t, "EUR", Currency{Symbol: "€"}.Code())
	assert.Equal(t, "CHF", Currency{Symbol: "CHF"}.Code())
}

func TestCurrencyFromConfig(t *testing.T) {
	c := CurrencyFromConfig(config.PricingConfig{CurrencySymbol: "₹", SymbolSpacing: true})
	assert.Equal(t, INR, c)

	assert.Equal(t, USD, CurrencyFromConfig(config.PricingConfig{}))
	assert.Equal(t, int32(0), CurrencyFromConfig(config.PricingConfig{Decimals: -2}).Decimals)
}

func TestCurrencyFormatAboveMaxInt64(t *testing.T) {
	amount := float64(math.MaxInt64) * 4

	got := USD.Format(amount)

	assert.True(t, strings.HasPrefix(got, "$36,893,488,147,419,10"), got)
	assert.NotContains(t, got, "-")
}
