package quote

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/cabinet-quote/internal/discount"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
	"github.com/noah-isme/cabinet-quote/internal/tax"
)

// ItemRequest is one requested line.
type ItemRequest struct {
	VariantID       string           `json:"variant_id" validate:"required,max=64"`
	MaterialID      string           `json:"material_id" validate:"required,max=64"`
	Quantity        int              `json:"quantity"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	Note            string           `json:"note,omitempty" validate:"max=500"`
}

// Request is the input shared by validate, calculate and breakdown.
type Request struct {
	CustomerID           string           `json:"customer_id" validate:"required,max=64"`
	Items                []ItemRequest    `json:"items" validate:"dive"`
	ShippingAddress      *pricing.Address `json:"shipping_address,omitempty"`
	ApplyTax             *bool            `json:"apply_tax,omitempty"`
	CustomerDiscountTier string           `json:"customer_discount_tier,omitempty" validate:"max=32"`
	Notes                string           `json:"notes,omitempty" validate:"max=2000"`
	ValidUntil           *time.Time       `json:"valid_until,omitempty"`
}

// TaxEnabled reports whether tax should be applied; it defaults to true.
func (r Request) TaxEnabled() bool {
	return r.ApplyTax == nil || *r.ApplyTax
}

// Customer is the customer record the engine needs.
type Customer struct {
	ID             string
	Name           string
	Email          string
	Tier           string
	DefaultAddress *pricing.Address
}

// CustomerStore loads customers. Unknown ids return ErrCustomerNotFound.
type CustomerStore interface {
	Customer(ctx context.Context, id string) (Customer, error)
}

// AuditSink records assembled calculations. Failures never fail a quote.
type AuditSink interface {
	Record(ctx context.Context, calc Calculation) error
}

// CustomerRef identifies the quoted customer in a calculation.
type CustomerRef struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	Email        string        `json:"email,omitempty"`
	DiscountTier discount.Tier `json:"discount_tier"`
}

// ProductRef carries display data for a line.
type ProductRef struct {
	SKU      string `json:"sku,omitempty"`
	Name     string `json:"name,omitempty"`
	Material string `json:"material,omitempty"`
}

func (p ProductRef) label() string {
	return pricing.Product{SKU: p.SKU, Name: p.Name, Material: p.Material}.Label()
}

// DiscountEntry is one step of a line's discount trail.
type DiscountEntry struct {
	Kind            discount.Kind  `json:"kind"`
	Percent         pricing.Rate   `json:"percent"`
	Amount          pricing.Amount `json:"amount"`
	ResultingAmount pricing.Amount `json:"resulting_amount"`
	Description     string         `json:"description"`
}

// LineItem is a priced and discounted line.
type LineItem struct {
	VariantID           string          `json:"variant_id"`
	MaterialID          string          `json:"material_id"`
	Product             ProductRef      `json:"product"`
	Quantity            int             `json:"quantity"`
	UnitPrice           pricing.Amount  `json:"unit_price"`
	PriceRecordID       string          `json:"price_record_id,omitempty"`
	PriceEffectiveDate  time.Time       `json:"price_effective_date"`
	PriceExpirationDate *time.Time      `json:"price_expiration_date,omitempty"`
	Discounts           []DiscountEntry `json:"discounts"`
	GrossAmount         pricing.Amount  `json:"gross_amount"`
	DiscountAmount      pricing.Amount  `json:"discount_amount"`
	LineTotal           pricing.Amount  `json:"line_total"`
	Note                string          `json:"note,omitempty"`
}

// TaxSummary describes the tax applied to a calculation.
type TaxSummary struct {
	Jurisdiction string         `json:"jurisdiction,omitempty"`
	TaxRate      pricing.Rate   `json:"tax_rate"`
	TaxAmount    pricing.Amount `json:"tax_amount"`
	Applied      bool           `json:"applied"`
}

func newTaxSummary(s tax.Summary) TaxSummary {
	return TaxSummary{
		Jurisdiction: s.Jurisdiction,
		TaxRate:      pricing.Rate{Decimal: s.Rate},
		TaxAmount:    pricing.NewAmount(s.Amount),
		Applied:      s.Applied,
	}
}

// Description explains the tax line.
func (t TaxSummary) Description() string {
	if !t.Applied {
		return "Tax not applied"
	}
	return fmt.Sprintf("Sales tax %s%% (%s)", t.TaxRate.Shift(2).String(), t.Jurisdiction)
}

// ShippingSummary describes the shipping charge of a calculation.
type ShippingSummary struct {
	TotalShippingCost pricing.Amount `json:"total_shipping_cost"`
	Tier              shipping.Tier  `json:"tier"`
	TotalUnits        int            `json:"total_units"`
	Destination       string         `json:"destination"`
	Description       string         `json:"description"`
}

func newShippingSummary(s shipping.Summary) ShippingSummary {
	return ShippingSummary{
		TotalShippingCost: pricing.NewAmount(s.Cost),
		Tier:              s.Tier,
		TotalUnits:        s.TotalUnits,
		Destination:       s.Destination,
		Description:       s.Description,
	}
}

// Calculation is the assembled, internally consistent quote.
type Calculation struct {
	Reference       string          `json:"reference"`
	Customer        CustomerRef     `json:"customer"`
	LineItems       []LineItem      `json:"line_items"`
	Subtotal        pricing.Amount  `json:"subtotal"`
	DiscountAmount  pricing.Amount  `json:"discount_amount"`
	TaxSummary      TaxSummary      `json:"tax_summary"`
	ShippingSummary ShippingSummary `json:"shipping_summary"`
	ShippingAddress pricing.Address `json:"shipping_address"`
	TotalAmount     pricing.Amount  `json:"total_amount"`
	ValidUntil      time.Time       `json:"valid_until"`
	EvaluatedAt     time.Time       `json:"evaluated_at"`
	CreatedAt       time.Time       `json:"created_at"`
	Notes           string          `json:"notes,omitempty"`
}

// TotalUnits sums quantities across lines. The sum saturates at math.MaxInt
// and ignores non-positive quantities.
func (c Calculation) TotalUnits() int {
	n := 0
	for _, li := range c.LineItems {
		if li.Quantity <= 0 {
			continue
		}
		next, ok := pricing.AddUnits(n, li.Quantity)
		if !ok {
			return math.MaxInt
		}
		n = next
	}
	return n
}

// Template selects the document layout.
type Template string

const (
	TemplateStandard Template = "standard"
	TemplateDetailed Template = "detailed"
	TemplateCompact  Template = "compact"
)

// ParseTemplate maps a raw value onto a known template. Empty selects standard.
func ParseTemplate(raw string) (Template, error) {
	switch t := Template(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return TemplateStandard, nil
	case TemplateStandard, TemplateDetailed, TemplateCompact:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, raw)
	}
}

// RenderOptions controls document rendering.
type RenderOptions struct {
	Template                 Template
	IncludeTerms             bool
	IncludeInstallationGuide bool
	Watermark                string
}

// RenderRequest is handed to a Renderer.
type RenderRequest struct {
	Calculation Calculation
	Breakdown   Breakdown
	Options     RenderOptions
}

// Document describes a rendered quote document.
type Document struct {
	ID          string    `json:"pdf_id"`
	FileSize    int       `json:"file_size"`
	Pages       int       `json:"pages"`
	DownloadURL string    `json:"download_url"`
	Template    Template  `json:"template_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Renderer turns a calculation into a stored document.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (Document, error)
}

// RenderOutcome reports a calculation and the attempt to render it. The
// calculation is kept even when rendering fails.
type RenderOutcome struct {
	Calculation Calculation
	Breakdown   Breakdown
	Document    *Document
	RenderErr   error
}
