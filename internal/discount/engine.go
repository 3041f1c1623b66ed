package discount

import (
	"errors"
	"fmt"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidDiscount is returned for percentages outside [0, 100].
	ErrInvalidDiscount = errors.New("invalid discount percent")
	// ErrUnknownDiscountTier is returned for tiers outside the known set.
	ErrUnknownDiscountTier = errors.New("unknown discount tier")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Kind identifies which rule produced a discount step.
type Kind string

const (
	KindLine Kind = "line"
	KindTier Kind = "tier"
)

// Step is one entry of a line's discount trail.
type Step struct {
	Kind        Kind
	Percent     decimal.Decimal
	Before      decimal.Decimal
	Amount      decimal.Decimal
	Resulting   decimal.Decimal
	Description string

	// exact carries the unrounded resulting amount so later steps compound
	// on the precise value.
	exact decimal.Decimal
}

// Exact returns the unrounded amount remaining after the step.
func (s Step) Exact() decimal.Decimal { return s.exact }

// Result is the discounted outcome of a single line.
type Result struct {
	Gross     decimal.Decimal
	Steps     []Step
	LineTotal decimal.Decimal
	Discount  decimal.Decimal
}

// ApplyLineDiscount applies a per-line percentage to unitPrice * qty.
func ApplyLineDiscount(unitPrice decimal.Decimal, qty int, percent decimal.Decimal) (Step, error) {
	if qty <= 0 {
		return Step{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if !pricing.ValidPercent(percent) {
		return Step{}, fmt.Errorf("%w: %s", ErrInvalidDiscount, percent.String())
	}
	gross := unitPrice.Mul(decimal.NewFromInt(int64(qty)))
	desc := fmt.Sprintf("Line discount %s%%", percent.String())
	return apply(KindLine, gross, percent, desc), nil
}

// ApplyTierDiscount applies the customer tier percentage to amount.
func ApplyTierDiscount(amount decimal.Decimal, tier Tier) (Step, error) {
	percent, err := tier.Percent()
	if err != nil {
		return Step{}, err
	}
	desc := fmt.Sprintf("%s tier discount %s%%", tier.Title(), percent.String())
	return apply(KindTier, amount, percent, desc), nil
}

// ApplyLine runs the line discount then the tier discount. The discounts
// compound, so 10% followed by 10% removes 19% overall. Steps with a zero
// percentage are left out of the trail.
func ApplyLine(unitPrice decimal.Decimal, qty int, percent decimal.Decimal, tier Tier) (Result, error) {
	line, err := ApplyLineDiscount(unitPrice, qty, percent)
	if err != nil {
		return Result{}, err
	}
	tierStep, err := ApplyTierDiscount(line.exact, tier)
	if err != nil {
		return Result{}, err
	}

	res := Result{Gross: pricing.Round2(line.Before)}
	for _, s := range []Step{line, tierStep} {
		if s.Percent.IsZero() {
			continue
		}
		res.Steps = append(res.Steps, s)
	}
	res.LineTotal = pricing.Round2(tierStep.exact)
	res.Discount = res.Gross.Sub(res.LineTotal)
	return res, nil
}

func apply(kind Kind, before, percent decimal.Decimal, desc string) Step {
	after := before.Mul(pricing.PercentFactor(percent))
	resulting := pricing.Round2(after)
	return Step{
		Kind:        kind,
		Percent:     percent,
		Before:      before,
		Amount:      pricing.Round2(before).Sub(resulting),
		Resulting:   resulting,
		Description: desc,
		exact:       after,
	}
}
