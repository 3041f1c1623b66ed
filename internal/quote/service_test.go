package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cabinet-quote/internal/discount"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/resilience"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
	"github.com/noah-isme/cabinet-quote/internal/tax"
)

func TestCalculateContractorExample(t *testing.T) {
	f := newFixture(t)
	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 5, DiscountPercent: pct("10")}},
	})
	require.NoError(t, err)

	require.Len(t, calc.LineItems, 1)
	li := calc.LineItems[0]
	require.Equal(t, "50.00", li.UnitPrice.StringFixed(2))
	require.Equal(t, "p-cur", li.PriceRecordID)
	require.Len(t, li.Discounts, 2)
	require.Equal(t, "225.00", li.Discounts[0].ResultingAmount.StringFixed(2))
	require.Equal(t, "202.50", li.LineTotal.StringFixed(2))

	require.Equal(t, discount.TierContractor, calc.Customer.DiscountTier)
	require.Equal(t, "202.50", calc.Subtotal.StringFixed(2))
	require.Equal(t, "47.50", calc.DiscountAmount.StringFixed(2))
	require.Equal(t, "US-TX", calc.TaxSummary.Jurisdiction)
	require.Equal(t, "12.66", calc.TaxSummary.TaxAmount.StringFixed(2))
	require.Equal(t, "75.00", calc.ShippingSummary.TotalShippingCost.StringFixed(2))
	require.Equal(t, shipping.TierFlat, calc.ShippingSummary.Tier)
	require.Equal(t, "290.16", calc.TotalAmount.StringFixed(2))

	total := pricing.Round2(calc.Subtotal.Add(calc.TaxSummary.TaxAmount.Decimal).Add(calc.ShippingSummary.TotalShippingCost.Decimal))
	require.True(t, total.Equal(calc.TotalAmount.Decimal))

	require.Equal(t, evalInstant.Add(DefaultValidity), calc.ValidUntil)
	require.Equal(t, evalInstant, calc.EvaluatedAt)
	require.Regexp(t, `^Q-20240801-[0-9A-F]{8}$`, calc.Reference)
	require.Len(t, f.audit.calcs, 1)
}

func TestCalculateStacksDiscountsMultiplicatively(t *testing.T) {
	f := newFixture(t)
	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID:           "c-retail",
		CustomerDiscountTier: "contractor",
		ShippingAddress:      &pricing.Address{Country: "US", State: "OR"},
		Items:                []ItemRequest{{VariantID: "W", MaterialID: "particleboard", Quantity: 1, DiscountPercent: pct("10")}},
	})
	require.NoError(t, err)
	require.Equal(t, "81.00", calc.LineItems[0].LineTotal.StringFixed(2))
	require.Equal(t, "19.00", calc.DiscountAmount.StringFixed(2))
	require.Equal(t, discount.TierContractor, calc.Customer.DiscountTier, "request tier overrides the customer record")
}

func TestCalculateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := Request{
		CustomerID: "c-contractor",
		Items: []ItemRequest{
			{VariantID: "W", MaterialID: "particleboard", Quantity: 3, DiscountPercent: pct("12.5")},
			{VariantID: "V", MaterialID: "plywood", Quantity: 4},
		},
		Notes: "kitchen remodel",
	}
	first, err := f.svc.Calculate(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.Calculate(context.Background(), req)
	require.NoError(t, err)

	first.CreatedAt, second.CreatedAt = time.Time{}, time.Time{}
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
	require.Equal(t, "W", first.LineItems[0].VariantID, "request order is preserved")
}

func TestBreakdownMatchesCalculation(t *testing.T) {
	f := newFixture(t)
	req := Request{
		CustomerID: "c-contractor",
		Items: []ItemRequest{
			{VariantID: "W", MaterialID: "particleboard", Quantity: 7, DiscountPercent: pct("5")},
			{VariantID: "V", MaterialID: "plywood", Quantity: 2, DiscountPercent: pct("33.3")},
		},
	}
	calc, err := f.svc.Calculate(context.Background(), req)
	require.NoError(t, err)
	_, bd, err := f.svc.Breakdown(context.Background(), req)
	require.NoError(t, err)

	require.True(t, bd.DiscountTotal().Equal(calc.DiscountAmount.Decimal))
	require.Len(t, bd.LineItems, 2)
	require.Equal(t, "Wall 30 (Particleboard)", bd.LineItems[0].Product)
	require.Equal(t, "Line discount 5%", bd.LineItems[0].Discounts[0].Description)
	require.Equal(t, "Sales tax 6.25% (US-TX)", bd.Tax.Description)
	require.Equal(t, shipping.TierPerUnit, bd.Shipping.Tier)
	require.True(t, bd.Totals.TotalAmount.Equal(calc.TotalAmount.Decimal))
	want, err := json.Marshal(BuildBreakdown(calc))
	require.NoError(t, err)
	got, err := json.Marshal(bd)
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(got), "breakdown is reconstructible from the calculation")
}

func TestCalculateMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items: []ItemRequest{
			{VariantID: "V", MaterialID: "plywood", Quantity: 2, Note: "left"},
			{VariantID: "W", MaterialID: "particleboard", Quantity: 1},
			{VariantID: "V", MaterialID: "plywood", Quantity: 3, Note: "right"},
		},
	})
	require.NoError(t, err)
	require.Len(t, calc.LineItems, 2)
	require.Equal(t, 5, calc.LineItems[0].Quantity)
	require.Equal(t, "left; right", calc.LineItems[0].Note)
	require.Equal(t, 6, calc.ShippingSummary.TotalUnits)
}

func TestCalculateRejectsConflictingDuplicates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items: []ItemRequest{
			{VariantID: "V", MaterialID: "plywood", Quantity: 2, DiscountPercent: pct("5")},
			{VariantID: "V", MaterialID: "plywood", Quantity: 3, DiscountPercent: pct("10")},
		},
	})
	requireCode(t, err, CodeValidation)
	stage, _ := FailedStage(err)
	require.Equal(t, StageValidating, stage)
}

func TestCalculateValidationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := ItemRequest{VariantID: "V", MaterialID: "plywood", Quantity: 1}

	_, err := f.svc.Calculate(ctx, Request{CustomerID: "c-contractor", Items: []ItemRequest{}})
	require.ErrorIs(t, err, ErrEmptyQuote)
	requireCode(t, err, CodeEmptyQuote)
	require.Equal(t, http.StatusBadRequest, ToAppError(err).HTTPStatus)

	_, err = f.svc.Calculate(ctx, Request{CustomerID: "c-contractor", CustomerDiscountTier: "platinum", Items: []ItemRequest{item}})
	require.ErrorIs(t, err, discount.ErrUnknownDiscountTier)
	requireCode(t, err, CodeUnknownTier)

	_, err = f.svc.Calculate(ctx, Request{CustomerID: "c-bad-tier", Items: []ItemRequest{item}})
	require.ErrorIs(t, err, discount.ErrUnknownDiscountTier)

	_, err = f.svc.Calculate(ctx, Request{CustomerID: "c-contractor", Items: []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 0}}})
	requireCode(t, err, CodeInvalidQuantity)

	_, err = f.svc.Calculate(ctx, Request{CustomerID: "c-contractor", Items: []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1, DiscountPercent: pct("101")}}})
	requireCode(t, err, CodeInvalidDiscount)

	_, err = f.svc.Calculate(ctx, Request{CustomerID: "nobody", Items: []ItemRequest{item}})
	require.ErrorIs(t, err, ErrCustomerNotFound)
	requireCode(t, err, CodeCustomerNotFound)

	_, err = f.svc.Calculate(ctx, Request{CustomerID: "c-retail", Items: []ItemRequest{item}})
	requireCode(t, err, CodeValidation)

	past := evalInstant.Add(-time.Hour)
	_, err = f.svc.Calculate(ctx, Request{CustomerID: "c-contractor", ValidUntil: &past, Items: []ItemRequest{item}})
	requireCode(t, err, CodeValidation)

	require.Empty(t, f.audit.calcs, "failed pipelines are never audited")
	require.Zero(t, f.prices.calls, "validation failures stop before pricing")
}

func TestCalculateRejectsOversizedQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Calculate(ctx, Request{
		CustomerID: "c-contractor",
		Items: []ItemRequest{
			{VariantID: "V", MaterialID: "plywood", Quantity: math.MaxInt},
			{VariantID: "W", MaterialID: "particleboard", Quantity: 1},
		},
	})
	require.ErrorIs(t, err, discount.ErrInvalidQuantity)
	requireCode(t, err, CodeInvalidQuantity)
	stage, _ := FailedStage(err)
	require.Equal(t, StageValidating, stage)

	_, err = f.svc.Calculate(ctx, Request{
		CustomerID: "c-contractor",
		Items: []ItemRequest{
			{VariantID: "V", MaterialID: "plywood", Quantity: MaxLineQuantity},
			{VariantID: "V", MaterialID: "plywood", Quantity: MaxLineQuantity},
		},
	})
	requireCode(t, err, CodeInvalidQuantity)
	stage, _ = FailedStage(err)
	require.Equal(t, StageValidating, stage)

	items := make([]ItemRequest, 0, MaxQuoteUnits/MaxLineQuantity+1)
	for i := 0; i <= MaxQuoteUnits/MaxLineQuantity; i++ {
		items = append(items, ItemRequest{VariantID: fmt.Sprintf("V%d", i), MaterialID: "plywood", Quantity: MaxLineQuantity})
	}
	res, err := f.svc.Validate(ctx, Request{CustomerID: "c-contractor", Items: items})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "items", res.Issues[0].Field)
	require.Equal(t, CodeInvalidQuantity, res.Issues[0].Code)
	require.Zero(t, f.prices.calls)
}

func TestCalculationTotalUnitsSaturates(t *testing.T) {
	c := Calculation{LineItems: []LineItem{{Quantity: math.MaxInt}, {Quantity: 5}}}
	require.Equal(t, math.MaxInt, c.TotalUnits())
	c = Calculation{LineItems: []LineItem{{Quantity: 2}, {Quantity: 3}}}
	require.Equal(t, 5, c.TotalUnits())
}

func TestValidateReportsEveryIssue(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Validate(context.Background(), Request{
		CustomerID:           "nobody",
		CustomerDiscountTier: "vip",
		Items: []ItemRequest{
			{VariantID: "", MaterialID: "plywood", Quantity: -1},
			{VariantID: "V", MaterialID: "plywood", Quantity: 1, DiscountPercent: pct("-5")},
		},
	})
	require.NoError(t, err)
	require.False(t, res.Valid)

	codes := map[string]bool{}
	for _, is := range res.Issues {
		codes[is.Code] = true
	}
	for _, code := range []string{CodeInvalidQuantity, CodeInvalidDiscount, CodeValidation, CodeUnknownTier, CodeCustomerNotFound} {
		require.True(t, codes[code], "missing %s in %+v", code, res.Issues)
	}
	require.Zero(t, f.prices.calls)

	res, err = f.svc.Validate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, res.Valid)
}

func TestCalculatePipelineFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Calculate(ctx, Request{CustomerID: "c-contractor", Items: []ItemRequest{{VariantID: "X", MaterialID: "plywood", Quantity: 1}}})
	require.ErrorIs(t, err, pricing.ErrPriceNotFound)
	requireCode(t, err, CodePriceNotFound)
	stage, _ := FailedStage(err)
	require.Equal(t, StagePricing, stage)

	_, err = f.svc.Calculate(ctx, Request{
		CustomerID:      "c-contractor",
		ShippingAddress: &pricing.Address{Country: "US", State: "ZZ"},
		Items:           []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1}},
	})
	require.ErrorIs(t, err, tax.ErrUnknownJurisdiction)
	requireCode(t, err, CodeUnknownJurisdiction)

	_, err = f.svc.Calculate(ctx, Request{
		CustomerID: "c-contractor",
		Items: []ItemRequest{
			{VariantID: "V", MaterialID: "plywood", Quantity: 15},
			{VariantID: "W", MaterialID: "particleboard", Quantity: 6},
		},
	})
	require.ErrorIs(t, err, shipping.ErrShippingQuoteUnavailable)
	requireCode(t, err, CodeShippingQuote)
	stage, _ = FailedStage(err)
	require.Equal(t, StageShipping, stage)
}

func TestCalculateNegotiatedShipping(t *testing.T) {
	sched := shipping.DefaultSchedule()
	sched.NegotiatedRate = decimal.NewNullDecimal(dec("15"))
	est, err := shipping.NewEstimator(sched)
	require.NoError(t, err)
	f := newFixture(t, func(c *Config) { c.Shipping = est })

	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 21}},
	})
	require.NoError(t, err)
	require.Equal(t, shipping.TierNegotiated, calc.ShippingSummary.Tier)
	require.Equal(t, "315.00", calc.ShippingSummary.TotalShippingCost.StringFixed(2))
}

func TestCalculateWithoutTax(t *testing.T) {
	f := newFixture(t)
	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID:      "c-retail",
		ApplyTax:        boolPtr(false),
		ShippingAddress: &pricing.Address{Country: "CA", State: "ON"},
		Items:           []ItemRequest{{VariantID: "W", MaterialID: "particleboard", Quantity: 2}},
	})
	require.NoError(t, err)
	require.False(t, calc.TaxSummary.Applied)
	require.True(t, calc.TaxSummary.TaxAmount.IsZero())
	require.Equal(t, "275.00", calc.TotalAmount.StringFixed(2))
	require.Equal(t, discount.TierRetail, calc.Customer.DiscountTier)
}

func TestCalculateCustomValidUntil(t *testing.T) {
	f := newFixture(t)
	until := evalInstant.Add(7 * 24 * time.Hour)
	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		ValidUntil: &until,
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, until, calc.ValidUntil)
}

func TestCalculatePriceStoreTimeout(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.PriceGuard = resilience.Guard{Target: "prices", Timeout: 20 * time.Millisecond}
	})
	f.prices.delay = time.Second

	start := time.Now()
	_, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1}},
	})
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.ErrorIs(t, err, resilience.ErrDownstreamUnavailable)
	requireCode(t, err, CodeDownstream)
	require.Equal(t, http.StatusServiceUnavailable, ToAppError(err).HTTPStatus)
}

func TestAuditFailureDoesNotFailCalculation(t *testing.T) {
	f := newFixture(t)
	f.audit.err = errBoom
	_, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, f.audit.calcs, 1)
}

func TestSlowAuditDoesNotHoldCalculation(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.AuditGuard = resilience.Guard{Target: "audit_queue", Timeout: 20 * time.Millisecond}
	})
	f.audit.hang = true

	start := time.Now()
	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, calc.Reference)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCalculateAndRender(t *testing.T) {
	f := newFixture(t)
	req := Request{CustomerID: "c-contractor", Items: []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 1}}}

	out, err := f.svc.CalculateAndRender(context.Background(), req, RenderOptions{Template: TemplateDetailed, IncludeTerms: true})
	require.NoError(t, err)
	require.NotNil(t, out.Document)
	require.NoError(t, out.RenderErr)
	require.Equal(t, TemplateDetailed, f.renderer.reqs[0].Options.Template)
	require.Equal(t, out.Calculation.Reference, f.renderer.reqs[0].Breakdown.Reference)

	f.renderer.err = errBoom
	out, err = f.svc.CalculateAndRender(context.Background(), req, RenderOptions{})
	require.NoError(t, err, "render failure keeps the calculation")
	require.Nil(t, out.Document)
	require.ErrorIs(t, out.RenderErr, ErrRenderFailed)
	requireCode(t, out.RenderErr, CodeRenderFailed)
	require.Equal(t, "45.00", out.Calculation.Subtotal.StringFixed(2))
}

func TestRenderRejectsInconsistentCalculation(t *testing.T) {
	f := newFixture(t)
	calc, err := f.svc.Calculate(context.Background(), Request{
		CustomerID: "c-contractor",
		Items:      []ItemRequest{{VariantID: "V", MaterialID: "plywood", Quantity: 2}},
	})
	require.NoError(t, err)

	doc, err := f.svc.Render(context.Background(), calc, RenderOptions{Template: TemplateCompact})
	require.NoError(t, err)
	require.Equal(t, "doc-1", doc.ID)

	cases := []struct {
		name   string
		mutate func(c *Calculation)
		want   string
	}{
		{"total off by one", func(c *Calculation) {
			c.TotalAmount = pricing.NewAmount(c.TotalAmount.Sub(dec("1")))
		}, "total"},
		{"tax zeroed", func(c *Calculation) {
			c.TaxSummary.TaxAmount = pricing.NewAmount(decimal.Zero)
			rebalance(c)
		}, "tax amount"},
		{"tax and shipping zeroed", func(c *Calculation) {
			c.TaxSummary.TaxAmount = pricing.NewAmount(decimal.Zero)
			c.ShippingSummary.TotalShippingCost = pricing.NewAmount(decimal.Zero)
			c.TotalAmount = c.Subtotal
		}, "tax amount"},
		{"flat shipping zeroed", func(c *Calculation) {
			c.ShippingSummary.TotalShippingCost = pricing.NewAmount(decimal.Zero)
			rebalance(c)
		}, "shipping cost"},
		{"shipping tier swapped", func(c *Calculation) {
			c.ShippingSummary.Tier = shipping.TierPerUnit
		}, "shipping tier"},
		{"tier step inflated", func(c *Calculation) {
			li := &c.LineItems[0]
			li.Discounts[0].Amount = pricing.NewAmount(dec("20.00"))
			li.Discounts[0].ResultingAmount = pricing.NewAmount(dec("80.00"))
			li.DiscountAmount = pricing.NewAmount(dec("20.00"))
			li.LineTotal = pricing.NewAmount(dec("80.00"))
			rebalance(c)
		}, "step 0 amount"},
		{"tier step removed", func(c *Calculation) {
			li := &c.LineItems[0]
			li.Discounts = nil
			li.DiscountAmount = pricing.NewAmount(decimal.Zero)
			li.LineTotal = li.GrossAmount
			rebalance(c)
		}, "discount steps"},
		{"unknown tier", func(c *Calculation) {
			c.Customer.DiscountTier = "gold"
		}, "customer tier"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tampered := cloneCalculation(calc)
			tc.mutate(&tampered)
			_, err := f.svc.Render(context.Background(), tampered, RenderOptions{})
			require.ErrorIs(t, err, ErrInconsistentCalculation)
			require.ErrorContains(t, err, tc.want)
			requireCode(t, err, CodeValidation)
		})
	}
	require.Len(t, f.renderer.reqs, 1, "rejected calculations never reach the renderer")
}

// rebalance recomputes the headline figures from the lines, tax and
// shipping so only the rule checks can catch a tampered field.
func rebalance(c *Calculation) {
	subtotal, discounts := decimal.Zero, decimal.Zero
	for _, li := range c.LineItems {
		subtotal = subtotal.Add(li.LineTotal.Decimal)
		discounts = discounts.Add(li.DiscountAmount.Decimal)
	}
	c.Subtotal = pricing.NewAmount(subtotal)
	c.DiscountAmount = pricing.NewAmount(discounts)
	c.TotalAmount = pricing.NewAmount(subtotal.Add(c.TaxSummary.TaxAmount.Decimal).Add(c.ShippingSummary.TotalShippingCost.Decimal))
}

func cloneCalculation(c Calculation) Calculation {
	out := c
	out.LineItems = make([]LineItem, len(c.LineItems))
	for i, li := range c.LineItems {
		li.Discounts = append([]DiscountEntry(nil), li.Discounts...)
		out.LineItems[i] = li
	}
	return out
}
