package audit

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/cabinet-quote/internal/quote"
)

// TaskQuoteCalculated is the asynq task type carrying an Entry.
const TaskQuoteCalculated = "quote:calculated"

// Entry is one row of the quote audit log.
type Entry struct {
	Reference      string          `json:"reference"`
	CustomerID     string          `json:"customer_id"`
	DiscountTier   string          `json:"discount_tier"`
	LineCount      int             `json:"line_count"`
	TotalUnits     int             `json:"total_units"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Jurisdiction   string          `json:"jurisdiction,omitempty"`
	ShippingTier   string          `json:"shipping_tier"`
	RequestID      string          `json:"request_id,omitempty"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`
	ValidUntil     time.Time       `json:"valid_until"`
	Calculation    json.RawMessage `json:"calculation"`
}

// NewEntry flattens calc into an audit row and keeps the full calculation as JSON.
func NewEntry(calc quote.Calculation, requestID string) (Entry, error) {
	raw, err := json.Marshal(calc)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Reference:      calc.Reference,
		CustomerID:     calc.Customer.ID,
		DiscountTier:   string(calc.Customer.DiscountTier),
		LineCount:      len(calc.LineItems),
		TotalUnits:     calc.TotalUnits(),
		Subtotal:       calc.Subtotal.Decimal,
		DiscountAmount: calc.DiscountAmount.Decimal,
		TaxAmount:      calc.TaxSummary.TaxAmount.Decimal,
		ShippingCost:   calc.ShippingSummary.TotalShippingCost.Decimal,
		TotalAmount:    calc.TotalAmount.Decimal,
		Jurisdiction:   calc.TaxSummary.Jurisdiction,
		ShippingTier:   string(calc.ShippingSummary.Tier),
		RequestID:      requestID,
		EvaluatedAt:    calc.EvaluatedAt,
		ValidUntil:     calc.ValidUntil,
		Calculation:    raw,
	}, nil
}
