package tax

import (
	"errors"
	"fmt"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/shopspring/decimal"
)

// ErrUnknownJurisdiction is returned when an address cannot be mapped to a rate.
var ErrUnknownJurisdiction = errors.New("unknown tax jurisdiction")

// Summary describes the tax applied to a quote.
type Summary struct {
	Jurisdiction string
	Rate         decimal.Decimal
	Amount       decimal.Decimal
	Applied      bool
}

// Calculator applies a single flat rate per jurisdiction.
type Calculator struct {
	table Table
}

// NewCalculator builds a calculator. A nil table falls back to DefaultTable.
func NewCalculator(table Table) *Calculator {
	if table == nil {
		table = DefaultTable()
	}
	return &Calculator{table: table}
}

// Rate resolves the jurisdiction key and rate for an address.
func (c *Calculator) Rate(addr pricing.Address) (string, decimal.Decimal, error) {
	addr = addr.Normalize()
	key := Key(addr.Country, addr.State)
	if key == "" {
		return "", decimal.Zero, fmt.Errorf("%w: country and state are required", ErrUnknownJurisdiction)
	}
	rate, ok := c.table[key]
	if !ok {
		return "", decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownJurisdiction, key)
	}
	return key, rate, nil
}

// ComputeTax applies the jurisdiction rate to the discounted subtotal.
// Unrecognised addresses fail rather than being taxed at zero.
func (c *Calculator) ComputeTax(subtotal decimal.Decimal, addr pricing.Address) (Summary, error) {
	key, rate, err := c.Rate(addr)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Jurisdiction: key,
		Rate:         rate,
		Amount:       pricing.Round2(subtotal.Mul(rate)),
		Applied:      true,
	}, nil
}

// NotApplied is the summary used when the caller opted out of tax.
func NotApplied() Summary {
	return Summary{Rate: decimal.Zero, Amount: decimal.Zero}
}
