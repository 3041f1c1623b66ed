package discount

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a customer classification that drives a standard discount.
type Tier string

const (
	TierRetail     Tier = "retail"
	TierContractor Tier = "contractor"
	TierWholesale  Tier = "wholesale"
)

var tierPercents = map[Tier]decimal.Decimal{
	TierRetail:     decimal.Zero,
	TierContractor: decimal.NewFromInt(10),
	TierWholesale:  decimal.NewFromInt(15),
}

// Tiers lists every known tier in ascending discount order.
func Tiers() []Tier {
	return []Tier{TierRetail, TierContractor, TierWholesale}
}

// ParseTier maps a raw value onto a known tier. Unknown values are rejected
// instead of falling back to retail.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := tierPercents[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDiscountTier, raw)
	}
	return t, nil
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierPercents[t]
	return ok
}

// Percent returns the tier's discount percentage.
func (t Tier) Percent() (decimal.Decimal, error) {
	p, ok := tierPercents[t]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownDiscountTier, string(t))
	}
	return p, nil
}

// Title is the display form used in discount descriptions.
func (t Tier) Title() string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
