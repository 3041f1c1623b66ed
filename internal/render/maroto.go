package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/noah-isme/cabinet-quote/internal/quote"
)

var (
	colorPrimary = &props.Color{Red: 31, Green: 58, Blue: 95}
	colorGray    = &props.Color{Red: 110, Green: 110, Blue: 110}
	colorLight   = &props.Color{Red: 200, Green: 200, Blue: 200}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
	colorStripe  = &props.Color{Red: 245, Green: 245, Blue: 245}
)

// Terms printed when a document includes terms and conditions.
var defaultTerms = []string{
	"Prices are valid until the date shown on this quote and are subject to change afterwards.",
	"Shipping is estimated from the total number of units; orders above the per-unit bracket are quoted separately.",
	"Sales tax is calculated for the shipping destination and may change if the destination changes.",
	"Cabinets are made to order. Orders cannot be cancelled once production has started.",
}

var installationGuide = []string{
	"Check every box against the packing list before signing for delivery.",
	"Install wall cabinets before base cabinets, starting from a corner.",
	"Level and shim base cabinets before fastening them to wall studs.",
	"Join adjacent face frames with clamps before driving connecting screws.",
}

// MarotoRenderer lays a quote out as a PDF.
type MarotoRenderer struct {
	CompanyName string
	Now         func() time.Time
}

// Build renders req and returns the PDF bytes and page count.
func (m MarotoRenderer) Build(_ context.Context, req quote.RenderRequest) ([]byte, int, error) {
	calc, bd, opts := req.Calculation, req.Breakdown, req.Options
	if opts.Template == "" {
		opts.Template = quote.TemplateStandard
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.Letter).
		WithLeftMargin(12).WithRightMargin(12).
		WithTopMargin(12).WithBottomMargin(12).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Quote "+calc.Reference, true).
		WithAuthor(m.company(), true).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
			Size:    7,
			Color:   colorGray,
		}).
		Build()
	doc := maroto.New(cfg)

	if wm := strings.TrimSpace(opts.Watermark); wm != "" {
		doc.AddRows(watermarkRow(wm))
	}
	doc.AddRows(headerRow(m.company(), calc, m.now()))
	doc.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	if opts.Template != quote.TemplateCompact {
		doc.AddRows(customerRow(calc))
		doc.AddRows(line.NewRow(1, props.Line{Color: colorLight, Thickness: 0.3}))
	}

	doc.AddRows(tableHeaderRow())
	for i, li := range bd.LineItems {
		doc.AddRows(lineRow(i, li))
		if opts.Template == quote.TemplateDetailed {
			doc.AddRows(discountRows(li)...)
		}
	}
	doc.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	if opts.Template == quote.TemplateDetailed {
		doc.AddRows(explanationRows(bd)...)
	}
	doc.AddRows(totalsRows(bd.Totals)...)

	if calc.Notes != "" && opts.Template != quote.TemplateCompact {
		doc.AddRows(sectionRows("Notes", []string{calc.Notes})...)
	}
	if opts.IncludeTerms {
		doc.AddRows(sectionRows("Terms and conditions", defaultTerms)...)
	}
	if opts.IncludeInstallationGuide {
		doc.AddRows(sectionRows("Installation guide", installationGuide)...)
	}

	out, err := doc.Generate()
	if err != nil {
		return nil, 0, fmt.Errorf("render: generate pdf: %w", err)
	}
	data := out.GetBytes()
	return data, countPages(data), nil
}

func (m MarotoRenderer) company() string {
	if name := strings.TrimSpace(m.CompanyName); name != "" {
		return name
	}
	return "Cabinet Quotes"
}

func (m MarotoRenderer) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func watermarkRow(wm string) core.Row {
	return row.New(14).Add(col.New(12).Add(
		text.New(strings.ToUpper(wm), props.Text{
			Style: fontstyle.Bold, Size: 28, Align: align.Center, Color: colorLight,
		}),
	))
}

func headerRow(company string, calc quote.Calculation, printed time.Time) core.Row {
	return row.New(20).Add(
		col.New(7).Add(
			text.New(company, props.Text{Style: fontstyle.Bold, Size: 14, Color: colorPrimary, Top: 1}),
			text.New("Cabinet quotation", props.Text{Size: 9, Top: 10, Color: colorGray}),
		),
		col.New(5).Add(
			text.New(calc.Reference, props.Text{Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 1}),
			text.New("Issued "+printed.UTC().Format("Jan 2, 2006"), props.Text{Size: 8, Align: align.Right, Top: 8, Color: colorGray}),
			text.New("Valid until "+calc.ValidUntil.UTC().Format("Jan 2, 2006"), props.Text{Size: 8, Align: align.Right, Top: 13, Color: colorGray}),
		),
	)
}

func customerRow(calc quote.Calculation) core.Row {
	c := calc.Customer
	name := c.Name
	if name == "" {
		name = c.ID
	}
	contact := "Tier: " + c.DiscountTier.Title()
	if c.Email != "" {
		contact = c.Email + "   |   " + contact
	}
	a := calc.ShippingAddress
	ship := strings.Join(nonEmpty(a.Line1, a.Line2, a.City, strings.TrimSpace(a.State+" "+a.PostalCode), a.Country), ", ")
	return row.New(18).Add(
		col.New(6).Add(
			text.New("CUSTOMER", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New(contact, props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
		col.New(6).Add(
			text.New("SHIP TO", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(ship, props.Text{Size: 8, Top: 6}),
		),
	)
}

func tableHeaderRow() core.Row {
	cell := &props.Cell{BackgroundColor: colorPrimary}
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Color: colorWhite, Top: 2, Left: 1, Right: 1,
		})).WithStyle(cell)
	}
	return row.New(8).Add(
		h("#", 1, align.Center),
		h("Product", 5, align.Left),
		h("Qty", 1, align.Center),
		h("Unit price", 2, align.Right),
		h("Line total", 3, align.Right),
	)
}

func lineRow(i int, li quote.LineBreakdown) core.Row {
	base := props.Text{Size: 8, Top: 1.5}
	left, center, right := base, base, base
	left.Align, left.Left = align.Left, 1
	center.Align = align.Center
	right.Align, right.Right = align.Right, 1

	label := li.Product
	if li.SKU != "" {
		label += " [" + li.SKU + "]"
	}
	r := row.New(7).Add(
		col.New(1).Add(text.New(fmt.Sprintf("%d", i+1), center)),
		col.New(5).Add(text.New(label, left)),
		col.New(1).Add(text.New(fmt.Sprintf("%d", li.Quantity), center)),
		col.New(2).Add(text.New(Money(li.UnitPrice.Decimal), right)),
		col.New(3).Add(text.New(Money(li.LineTotal.Decimal), right)),
	)
	if i%2 == 1 {
		r.WithStyle(&props.Cell{BackgroundColor: colorStripe})
	}
	return r
}

func discountRows(li quote.LineBreakdown) []core.Row {
	rows := make([]core.Row, 0, len(li.Discounts)+1)
	small := props.Text{Size: 7, Color: colorGray, Top: 1}
	right := small
	right.Align, right.Right = align.Right, 1
	rows = append(rows, row.New(5).Add(
		col.New(1),
		col.New(8).Add(text.New("Gross "+Money(li.GrossAmount.Decimal), withLeft(small, 3))),
		col.New(3),
	))
	for _, d := range li.Discounts {
		rows = append(rows, row.New(5).Add(
			col.New(1),
			col.New(8).Add(text.New(d.Description, withLeft(small, 3))),
			col.New(3).Add(text.New("-"+Money(d.Amount.Decimal), right)),
		))
	}
	return rows
}

func explanationRows(bd quote.Breakdown) []core.Row {
	small := props.Text{Size: 8, Color: colorGray, Top: 1}
	right := small
	right.Align, right.Right = align.Right, 1
	return []core.Row{
		row.New(6).Add(
			col.New(9).Add(text.New(bd.Tax.Description, small)),
			col.New(3).Add(text.New(Money(bd.Tax.Amount.Decimal), right)),
		),
		row.New(6).Add(
			col.New(9).Add(text.New(bd.Shipping.Description, small)),
			col.New(3).Add(text.New(Money(bd.Shipping.Amount.Decimal), right)),
		),
	}
}

func totalsRows(t quote.Totals) []core.Row {
	label := props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: 1}
	value := props.Text{Size: 9, Align: align.Right, Right: 1, Top: 1}
	grandLabel := label
	grandLabel.Size, grandLabel.Color = 11, colorPrimary
	grandValue := value
	grandValue.Style, grandValue.Size, grandValue.Color = fontstyle.Bold, 11, colorPrimary

	pair := func(l, v string, lp, vp props.Text, height float64) core.Row {
		return row.New(height).Add(
			col.New(6),
			col.New(3).Add(text.New(l, lp)),
			col.New(3).Add(text.New(v, vp)),
		)
	}
	return []core.Row{
		pair("Discounts:", "-"+Money(t.DiscountAmount.Decimal), label, value, 6),
		pair("Subtotal:", Money(t.Subtotal.Decimal), label, value, 6),
		pair("Tax:", Money(t.TaxAmount.Decimal), label, value, 6),
		pair("Shipping:", Money(t.ShippingCost.Decimal), label, value, 6),
		pair("Total:", Money(t.TotalAmount.Decimal), grandLabel, grandValue, 9),
	}
}

func sectionRows(title string, lines []string) []core.Row {
	rows := []core.Row{
		row.New(4),
		row.New(7).Add(col.New(12).Add(text.New(strings.ToUpper(title), props.Text{
			Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 2,
		}))),
	}
	for i, l := range lines {
		prefix := ""
		if len(lines) > 1 {
			prefix = fmt.Sprintf("%d. ", i+1)
		}
		rows = append(rows, row.New(6).Add(col.New(12).Add(
			text.New(prefix+l, props.Text{Size: 7.5, Color: colorGray, Top: 1}),
		)))
	}
	return rows
}

func withLeft(p props.Text, left float64) props.Text {
	p.Left = left
	return p
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

var pageObject = regexp.MustCompile(`/Type\s*/Page[^s]`)

// countPages counts page objects in a generated PDF.
func countPages(pdf []byte) int {
	n := len(pageObject.FindAllIndex(pdf, -1))
	if n == 0 && bytes.HasPrefix(pdf, []byte("%PDF")) {
		return 1
	}
	return n
}
