package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round2 rounds an amount to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PercentFactor converts a percentage (e.g. 10 for 10%) into the multiplier
// that keeps the remaining share (0.9).
func PercentFactor(percent decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(percent.Shift(-2))
}

// ValidPercent reports whether percent lies within [0, 100].
func ValidPercent(percent decimal.Decimal) bool {
	return !percent.IsNegative() && percent.LessThanOrEqual(hundred)
}

// Amount wraps a decimal so it is encoded as a JSON number with two decimals.
type Amount struct {
	decimal.Decimal
}

// NewAmount rounds d to cents and wraps it.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: Round2(d)}
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// Rate wraps a decimal fraction (0.0725) encoded as a bare JSON number.
type Rate struct {
	decimal.Decimal
}

// MarshalJSON implements json.Marshaler.
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (r *Rate) UnmarshalJSON(b []byte) error {
	return r.Decimal.UnmarshalJSON(b)
}
