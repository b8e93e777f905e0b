package pricing

import (
	"math"
	"strconv"
	"strings"

	"house-price-workers/internal/common/config"

	"github.com/shopspring/decimal"
)

// Currency renders prices as symbol plus grouped digits.
type Currency struct {
	Symbol   string
	Spacing  bool  // put a space between symbol and amount
	Decimals int32 // digits after the decimal point
}

var (
	USD = Currency{Symbol: "$"}
	INR = Currency{Symbol: "₹", Spacing: true}
)

// Format rounds half away from zero to c.Decimals and groups thousands with commas:
// USD.Format(1234567) == "$1,234,567", INR.Format(1234567) == "₹ 1,234,567".
// Negative amounts put the sign before the symbol. Negative Decimals count as 0.
func (c Currency) Format(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return strconv.FormatFloat(amount, 'f', -1, 64)
	}

	places := c.Decimals
	if places < 0 {
		places = 0
	}
	rounded := decimal.NewFromFloat(amount).Round(places)

	// digits come from the exact decimal text, so amounts past int64 keep their value
	digits := rounded.Abs().StringFixed(places)
	whole, frac, _ := strings.Cut(digits, ".")

	var b strings.Builder
	if rounded.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(c.Symbol)
	if c.Spacing && c.Symbol != "" {
		b.WriteByte(' ')
	}
	writeGrouped(&b, whole)
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// writeGrouped writes a run of decimal digits with a comma every three from the right.
func writeGrouped(b *strings.Builder, digits string) {
	lead := len(digits) % 3
	if lead == 0 && len(digits) > 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
}

// Code is a short label for the currency, used in job variables and history.
func (c Currency) Code() string {
	switch c.Symbol {
	case "$":
		return "USD"
	case "₹":
		return "INR"
	case "€":
		return "EUR"
	case "£":
		return "GBP"
	default:
		return c.Symbol
	}
}

// CurrencyFromConfig builds the formatter described by the pricing section of the config.
func CurrencyFromConfig(cfg config.PricingConfig) Currency {
	c := Currency{Symbol: cfg.CurrencySymbol, Spacing: cfg.SymbolSpacing, Decimals: cfg.Decimals}
	if c.Decimals < 0 {
		c.Decimals = 0
	}
	if c.Symbol == "" {
		c.Symbol = USD.Symbol
	}
	return c
}
