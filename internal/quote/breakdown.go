package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/cabinet-quote/internal/discount"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
)

// DiscountLine explains one discount applied to a line.
type DiscountLine struct {
	Description string         `json:"description"`
	Kind        discount.Kind  `json:"kind"`
	Percent     pricing.Rate   `json:"percent"`
	Amount      pricing.Amount `json:"amount"`
}

// LineBreakdown explains how one line total was derived.
type LineBreakdown struct {
	Product     string         `json:"product"`
	SKU         string         `json:"sku,omitempty"`
	Quantity    int            `json:"quantity"`
	UnitPrice   pricing.Amount `json:"unit_price"`
	GrossAmount pricing.Amount `json:"gross_amount"`
	LineTotal   pricing.Amount `json:"line_total"`
	Discounts   []DiscountLine `json:"discounts"`
}

// TaxLine explains the tax charge.
type TaxLine struct {
	Description  string         `json:"description"`
	Jurisdiction string         `json:"jurisdiction,omitempty"`
	Rate         pricing.Rate   `json:"rate"`
	Amount       pricing.Amount `json:"amount"`
	Applied      bool           `json:"applied"`
}

// ShippingLine explains the shipping charge.
type ShippingLine struct {
	Description string         `json:"description"`
	Tier        shipping.Tier  `json:"tier"`
	TotalUnits  int            `json:"total_units"`
	Destination string         `json:"destination"`
	Amount      pricing.Amount `json:"amount"`
}

// Totals repeats the headline figures of the calculation.
type Totals struct {
	Subtotal       pricing.Amount `json:"subtotal"`
	DiscountAmount pricing.Amount `json:"discount_amount"`
	TaxAmount      pricing.Amount `json:"tax_amount"`
	ShippingCost   pricing.Amount `json:"shipping_cost"`
	TotalAmount    pricing.Amount `json:"total_amount"`
}

// Breakdown is the human-readable projection of a Calculation. It is never
// stored; BuildBreakdown recreates it from the calculation alone.
type Breakdown struct {
	Reference string          `json:"reference"`
	LineItems []LineBreakdown `json:"line_items_breakdown"`
	Tax       TaxLine         `json:"tax"`
	Shipping  ShippingLine    `json:"shipping"`
	Totals    Totals          `json:"totals"`
}

// DiscountTotal sums every discount amount in the breakdown.
func (b Breakdown) DiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range b.LineItems {
		for _, d := range li.Discounts {
			sum = sum.Add(d.Amount.Decimal)
		}
	}
	return sum
}

// BuildBreakdown derives the breakdown of calc.
func BuildBreakdown(calc Calculation) Breakdown {
	lines := make([]LineBreakdown, 0, len(calc.LineItems))
	for _, li := range calc.LineItems {
		discounts := make([]DiscountLine, 0, len(li.Discounts))
		for _, d := range li.Discounts {
			discounts = append(discounts, DiscountLine{
				Description: d.Description,
				Kind:        d.Kind,
				Percent:     d.Percent,
				Amount:      d.Amount,
			})
		}
		lines = append(lines, LineBreakdown{
			Product:     li.Product.label(),
			SKU:         li.Product.SKU,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			GrossAmount: li.GrossAmount,
			LineTotal:   li.LineTotal,
			Discounts:   discounts,
		})
	}
	ts := calc.TaxSummary
	ss := calc.ShippingSummary
	shipDesc := ss.Description
	if shipDesc == "" {
		shipDesc = fmt.Sprintf("Shipping for %d units", ss.TotalUnits)
	}
	return Breakdown{
		Reference: calc.Reference,
		LineItems: lines,
		Tax: TaxLine{
			Description:  ts.Description(),
			Jurisdiction: ts.Jurisdiction,
			Rate:         ts.TaxRate,
			Amount:       ts.TaxAmount,
			Applied:      ts.Applied,
		},
		Shipping: ShippingLine{
			Description: shipDesc,
			Tier:        ss.Tier,
			TotalUnits:  ss.TotalUnits,
			Destination: ss.Destination,
			Amount:      ss.TotalShippingCost,
		},
		Totals: Totals{
			Subtotal:       calc.Subtotal,
			DiscountAmount: calc.DiscountAmount,
			TaxAmount:      ts.TaxAmount,
			ShippingCost:   ss.TotalShippingCost,
			TotalAmount:    calc.TotalAmount,
		},
	}
}
