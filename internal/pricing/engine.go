package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvariantViolation is returned when assembled totals do not reconcile.
var ErrInvariantViolation = errors.New("pricing invariant violated")

// Summary aggregates computed pricing components of a quote.
type Summary struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// AddUnits adds two non-negative quantities, reporting false when the sum
// would overflow an int.
func AddUnits(a, b int) (int, bool) {
	if a < 0 || b < 0 || a > math.MaxInt-b {
		return 0, false
	}
	return a + b, true
}

// Compute sums line totals and adds tax and shipping. Line totals are already
// net of discounts; discount is carried for display only.
func Compute(lineTotals []decimal.Decimal, discount, tax, shipping decimal.Decimal) Summary {
	subtotal := decimal.Zero
	for _, lt := range lineTotals {
		subtotal = subtotal.Add(lt)
	}
	subtotal = Round2(subtotal)
	return Summary{
		Subtotal: subtotal,
		Discount: Round2(discount),
		Tax:      Round2(tax),
		Shipping: Round2(shipping),
		Total:    Round2(subtotal.Add(tax).Add(shipping)),
	}
}

// Check verifies the summary is internally consistent.
func (s Summary) Check() error {
	for name, v := range map[string]decimal.Decimal{
		"subtotal": s.Subtotal,
		"discount": s.Discount,
		"tax":      s.Tax,
		"shipping": s.Shipping,
		"total":    s.Total,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: negative %s %s", ErrInvariantViolation, name, v.StringFixed(2))
		}
	}
	want := Round2(s.Subtotal.Add(s.Tax).Add(s.Shipping))
	if !s.Total.Equal(want) {
		return fmt.Errorf("%w: total %s != %s", ErrInvariantViolation, s.Total.StringFixed(2), want.StringFixed(2))
	}
	return nil
}
