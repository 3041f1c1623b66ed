package store

import (
	"context"
	"fmt"

	"github.com/noah-isme/cabinet-quote/internal/audit"
)

const insertQuoteAudit = `
INSERT INTO cabinet_system.quote_audit_log (
    reference, customer_id, discount_tier, line_count, total_units,
    subtotal, discount_amount, tax_amount, shipping_cost, total_amount,
    jurisdiction, shipping_tier, request_id, evaluated_at, valid_until, calculation
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, NULLIF($13, ''), $14, $15, $16)
ON CONFLICT (reference) DO NOTHING`

// AuditStore writes the quote audit log.
type AuditStore struct {
	DB Querier
}

// InsertQuoteAudit stores e. Replays of the same reference are ignored so
// task retries stay idempotent.
func (s AuditStore) InsertQuoteAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.DB.Exec(ctx, insertQuoteAudit,
		e.Reference, e.CustomerID, e.DiscountTier, e.LineCount, e.TotalUnits,
		e.Subtotal, e.DiscountAmount, e.TaxAmount, e.ShippingCost, e.TotalAmount,
		e.Jurisdiction, e.ShippingTier, e.RequestID, e.EvaluatedAt, e.ValidUntil, []byte(e.Calculation),
	)
	if err != nil {
		return fmt.Errorf("insert quote audit %s: %w", e.Reference, err)
	}
	return nil
}
