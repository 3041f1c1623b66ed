package render

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// Money renders d as dollars with grouped thousands, e.g. $1,234.50.
func Money(d decimal.Decimal) string {
	d = pricing.Round2(d)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()
	return sign + "$" + printer.Sprintf("%d", whole.IntPart()) + "." + twoDigits(cents)
}

// Percent renders a 0-100 percentage without trailing zeros, e.g. 12.5%.
func Percent(p decimal.Decimal) string {
	return p.String() + "%"
}

// RatePercent renders a fractional rate as a percentage, e.g. 0.0625 as 6.25%.
func RatePercent(r decimal.Decimal) string {
	return Percent(r.Shift(2))
}

func twoDigits(n int64) string {
	s := printer.Sprintf("%d", n)
	if len(s) < 2 {
		s = strings.Repeat("0", 2-len(s)) + s
	}
	return s
}
