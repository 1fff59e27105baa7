package pnl

import (
	"github.com/shopspring/decimal"
)

// RoundUSD rounds a USD amount to cents. Use it for presentation only.
func RoundUSD(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// FormatUSD renders a USD amount with a sign and two decimals, e.g. "-$12.50".
func FormatUSD(v float64) string {
	d := RoundUSD(v)
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// RoundMap rounds every value of a per-asset USD map.
func RoundMap(m map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = RoundUSD(v)
	}
	return out
}

// FormatQuantity renders a token quantity with up to 6 decimals.
func FormatQuantity(q float64) string {
	return decimal.NewFromFloat(q).Round(6).String()
}
