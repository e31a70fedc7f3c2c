// Package money holds the rounding rules shared by every monetary computation.
package money

import "github.com/shopspring/decimal"

// Places is the number of fractional digits kept on stored amounts.
const Places = 2

var (
	half    = decimal.New(5, -1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Round2 rounds half-up (towards positive infinity on ties) to two places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Shift(Places).Add(half).Floor().Shift(-Places)
}

// PercentOf returns round2(amount * rate / 100).
func PercentOf(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(ratePercent).Div(hundred))
}

// Halve returns round2(amount / 2).
func Halve(amount decimal.Decimal) decimal.Decimal {
	return Round2(amount.Div(two))
}

// IsCents reports whether d carries no more than two fractional digits.
// 10.50 and 10.500 pass; 10.005 does not.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Places))
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// MaxZero clamps negative values to zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
