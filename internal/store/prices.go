package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
)

const selectPriceRecords = `
SELECT pp.id::text,
       pp.product_variant_id::text,
       bm.code,
       pp.price,
       pp.effective_date,
       pp.expiration_date,
       pv.sku,
       p.name,
       bm.name
FROM cabinet_system.product_pricing pp
JOIN cabinet_system.product_variants pv ON pv.id = pp.product_variant_id
JOIN cabinet_system.products p ON p.id = pv.product_id
JOIN cabinet_system.box_materials bm ON bm.id = pp.box_material_id
WHERE pp.product_variant_id::text = $1
  AND (bm.code = $2 OR bm.id::text = $2)
  AND bm.is_active
ORDER BY pp.effective_date DESC, pp.id DESC`

// PriceStore reads price records from Postgres.
type PriceStore struct {
	DB Querier
}

// PriceRecords returns every record of a variant in a box material, current
// or not; effective-date selection is left to the resolver.
func (s PriceStore) PriceRecords(ctx context.Context, variantID, materialID string) ([]pricing.PriceRecord, error) {
	rows, err := s.DB.Query(ctx, selectPriceRecords, strings.TrimSpace(variantID), strings.ToLower(strings.TrimSpace(materialID)))
	if err != nil {
		return nil, fmt.Errorf("query price records: %w", err)
	}
	defer rows.Close()

	var out []pricing.PriceRecord
	for rows.Next() {
		var r pricing.PriceRecord
		if err := rows.Scan(&r.ID, &r.VariantID, &r.MaterialID, &r.Price, &r.EffectiveDate, &r.ExpirationDate, &r.SKU, &r.ProductName, &r.MaterialName); err != nil {
			return nil, fmt.Errorf("scan price record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price records: %w", err)
	}
	return out, nil
}
