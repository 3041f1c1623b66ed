package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/cabinet-quote/internal/discount"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
	"github.com/noah-isme/cabinet-quote/internal/tax"
)

// Verify checks that a calculation supplied from outside reconciles: every
// line total follows from its price, quantity and discount trail, and the
// headline totals follow from the lines.
func Verify(c Calculation) error {
	if len(c.LineItems) == 0 {
		return fmt.Errorf("%w: no line items", ErrInconsistentCalculation)
	}
	subtotal := decimal.Zero
	discounts := decimal.Zero
	for i, li := range c.LineItems {
		if li.Quantity <= 0 || li.Quantity > MaxLineQuantity {
			return fmt.Errorf("%w: line %d quantity %d", ErrInconsistentCalculation, i, li.Quantity)
		}
		gross := pricing.Round2(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))))
		if !gross.Equal(li.GrossAmount.Decimal) {
			return fmt.Errorf("%w: line %d gross %s, expected %s", ErrInconsistentCalculation, i, li.GrossAmount.StringFixed(2), gross.StringFixed(2))
		}
		trail := decimal.Zero
		for _, d := range li.Discounts {
			trail = trail.Add(d.Amount.Decimal)
		}
		if !gross.Sub(trail).Equal(li.LineTotal.Decimal) || !trail.Equal(li.DiscountAmount.Decimal) {
			return fmt.Errorf("%w: line %d discounts do not reconcile", ErrInconsistentCalculation, i)
		}
		subtotal = subtotal.Add(li.LineTotal.Decimal)
		discounts = discounts.Add(trail)
	}
	if !subtotal.Equal(c.Subtotal.Decimal) {
		return fmt.Errorf("%w: subtotal %s, lines sum to %s", ErrInconsistentCalculation, c.Subtotal.StringFixed(2), subtotal.StringFixed(2))
	}
	if !discounts.Equal(c.DiscountAmount.Decimal) {
		return fmt.Errorf("%w: discount_amount does not match line discounts", ErrInconsistentCalculation)
	}
	totals := pricing.Summary{
		Subtotal: c.Subtotal.Decimal,
		Discount: c.DiscountAmount.Decimal,
		Tax:      c.TaxSummary.TaxAmount.Decimal,
		Shipping: c.ShippingSummary.TotalShippingCost.Decimal,
		Total:    c.TotalAmount.Decimal,
	}
	if err := totals.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentCalculation, err)
	}
	return nil
}

// verify checks a calculation supplied from outside against the service's
// own rules: it must reconcile arithmetically, and every discount step, the
// tax and the shipping charge must match what the current rate tables
// produce for the stated inputs.
func (s *Service) verify(c Calculation) error {
	if err := Verify(c); err != nil {
		return err
	}
	tier := c.Customer.DiscountTier
	if !tier.Valid() {
		return fmt.Errorf("%w: customer tier %q", ErrInconsistentCalculation, string(tier))
	}
	for i, li := range c.LineItems {
		if err := verifyTrail(li, tier); err != nil {
			return fmt.Errorf("%w: line %d %v", ErrInconsistentCalculation, i, err)
		}
	}
	if err := s.verifyTax(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentCalculation, err)
	}
	if err := s.verifyShipping(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentCalculation, err)
	}
	return nil
}

// verifyTrail replays the discount engine for one line. The line percent is
// taken from the trail itself; the tier comes from the calculation.
func verifyTrail(li LineItem, tier discount.Tier) error {
	linePercent := decimal.Zero
	lineSteps := 0
	for _, d := range li.Discounts {
		if d.Kind == discount.KindLine {
			linePercent = d.Percent.Decimal
			lineSteps++
		}
	}
	if lineSteps > 1 {
		return fmt.Errorf("has %d line discount steps", lineSteps)
	}
	res, err := discount.ApplyLine(li.UnitPrice.Decimal, li.Quantity, linePercent, tier)
	if err != nil {
		return err
	}
	if len(res.Steps) != len(li.Discounts) {
		return fmt.Errorf("has %d discount steps, expected %d", len(li.Discounts), len(res.Steps))
	}
	for j, want := range res.Steps {
		got := li.Discounts[j]
		switch {
		case got.Kind != want.Kind:
			return fmt.Errorf("step %d is %s, expected %s", j, got.Kind, want.Kind)
		case !got.Percent.Equal(want.Percent):
			return fmt.Errorf("step %d percent %s, expected %s", j, got.Percent.String(), want.Percent.String())
		case !got.Amount.Equal(want.Amount):
			return fmt.Errorf("step %d amount %s, expected %s", j, got.Amount.StringFixed(2), want.Amount.StringFixed(2))
		case !got.ResultingAmount.Equal(want.Resulting):
			return fmt.Errorf("step %d resulting %s, expected %s", j, got.ResultingAmount.StringFixed(2), want.Resulting.StringFixed(2))
		}
	}
	if !res.LineTotal.Equal(li.LineTotal.Decimal) {
		return fmt.Errorf("line_total %s, expected %s", li.LineTotal.StringFixed(2), res.LineTotal.StringFixed(2))
	}
	return nil
}

func (s *Service) verifyTax(c Calculation) error {
	got := c.TaxSummary
	want := tax.NotApplied()
	if got.Applied {
		var err error
		want, err = s.tax.ComputeTax(c.Subtotal.Decimal, c.ShippingAddress)
		if err != nil {
			return err
		}
	}
	switch {
	case got.Jurisdiction != want.Jurisdiction:
		return fmt.Errorf("tax jurisdiction %q, expected %q", got.Jurisdiction, want.Jurisdiction)
	case !got.TaxRate.Equal(want.Rate):
		return fmt.Errorf("tax rate %s, expected %s", got.TaxRate.String(), want.Rate.String())
	case !got.TaxAmount.Equal(want.Amount):
		return fmt.Errorf("tax amount %s, expected %s", got.TaxAmount.StringFixed(2), want.Amount.StringFixed(2))
	}
	return nil
}

func (s *Service) verifyShipping(c Calculation) error {
	lines := make([]shipping.Line, len(c.LineItems))
	for i, li := range c.LineItems {
		lines[i] = shipping.Line{VariantID: li.VariantID, MaterialID: li.MaterialID, Quantity: li.Quantity}
	}
	want, err := s.shipping.Estimate(lines, c.ShippingAddress)
	if err != nil {
		return err
	}
	got := c.ShippingSummary
	switch {
	case got.Tier != want.Tier:
		return fmt.Errorf("shipping tier %s, expected %s", got.Tier, want.Tier)
	case got.TotalUnits != want.TotalUnits:
		return fmt.Errorf("shipping units %d, expected %d", got.TotalUnits, want.TotalUnits)
	case got.Destination != want.Destination:
		return fmt.Errorf("shipping destination %q, expected %q", got.Destination, want.Destination)
	case !got.TotalShippingCost.Equal(want.Cost):
		return fmt.Errorf("shipping cost %s, expected %s", got.TotalShippingCost.StringFixed(2), want.Cost.StringFixed(2))
	}
	return nil
}
