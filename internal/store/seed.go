package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
)

// SeedProduct is one catalog product with a single variant priced per box material.
type SeedProduct struct {
	ItemCode string
	Name     string
	Width    decimal.Decimal
	Height   decimal.Decimal
	Depth    decimal.Decimal
	SKU      string
	// Prices maps a box material code to the unit price.
	Prices map[string]decimal.Decimal
}

// SeedCustomer is a customer row with a fixed id so repeated seeding is stable.
type SeedCustomer struct {
	ID      string
	Name    string
	Email   string
	Tier    string
	Address *pricing.Address
}

// SeedData is the demo catalog loaded by cmd/seed.
type SeedData struct {
	Products      []SeedProduct
	Customers     []SeedCustomer
	EffectiveDate time.Time
}

// SeedResult counts rows written.
type SeedResult struct {
	Products  int
	Prices    int
	Customers int
	// Variants maps SKU to the generated variant id.
	Variants map[string]string
}

const (
	upsertProductSQL = `
INSERT INTO cabinet_system.products (item_code, name, width_inches, height_inches, depth_inches)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (item_code) DO UPDATE SET name = EXCLUDED.name,
    width_inches = EXCLUDED.width_inches, height_inches = EXCLUDED.height_inches, depth_inches = EXCLUDED.depth_inches
RETURNING id::text`

	upsertVariantSQL = `
INSERT INTO cabinet_system.product_variants (product_id, sku)
VALUES ($1::int, $2)
ON CONFLICT (sku) DO UPDATE SET product_id = EXCLUDED.product_id
RETURNING id::text`

	upsertPriceSQL = `
INSERT INTO cabinet_system.product_pricing (product_variant_id, box_material_id, price, effective_date)
SELECT $1::uuid, bm.id, $3, $4 FROM cabinet_system.box_materials bm WHERE bm.code = $2
ON CONFLICT ON CONSTRAINT product_pricing_unique DO UPDATE SET price = EXCLUDED.price`

	upsertCustomerSQL = `
INSERT INTO cabinet_system.customers (id, name, email, discount_tier,
    address_line1, address_line2, city, state, postal_code, country)
VALUES ($1::uuid, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, discount_tier = EXCLUDED.discount_tier,
    address_line1 = EXCLUDED.address_line1, address_line2 = EXCLUDED.address_line2, city = EXCLUDED.city,
    state = EXCLUDED.state, postal_code = EXCLUDED.postal_code, country = EXCLUDED.country`
)

// Seed upserts data. It is safe to run repeatedly.
func Seed(ctx context.Context, db Querier, data SeedData) (SeedResult, error) {
	effective := data.EffectiveDate
	if effective.IsZero() {
		effective = time.Date(time.Now().UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	res := SeedResult{Variants: make(map[string]string, len(data.Products))}

	for _, p := range data.Products {
		var productID, variantID string
		if err := db.QueryRow(ctx, upsertProductSQL, p.ItemCode, p.Name, p.Width, p.Height, p.Depth).Scan(&productID); err != nil {
			return res, fmt.Errorf("seed product %s: %w", p.ItemCode, err)
		}
		if err := db.QueryRow(ctx, upsertVariantSQL, productID, p.SKU).Scan(&variantID); err != nil {
			return res, fmt.Errorf("seed variant %s: %w", p.SKU, err)
		}
		res.Products++
		res.Variants[p.SKU] = variantID

		for material, price := range p.Prices {
			if _, err := db.Exec(ctx, upsertPriceSQL, variantID, material, price, effective); err != nil {
				return res, fmt.Errorf("seed price %s/%s: %w", p.SKU, material, err)
			}
			res.Prices++
		}
	}

	for _, c := range data.Customers {
		var addr pricing.Address
		if c.Address != nil {
			addr = *c.Address
		}
		if _, err := db.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, c.Email, c.Tier,
			addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode, addr.Country); err != nil {
			return res, fmt.Errorf("seed customer %s: %w", c.ID, err)
		}
		res.Customers++
	}
	return res, nil
}

// DemoSeedData is a small catalog covering every box material and discount tier.
func DemoSeedData() SeedData {
	d := decimal.RequireFromString
	priced := func(base string) map[string]decimal.Decimal {
		b := d(base)
		return map[string]decimal.Decimal{
			"particleboard": b,
			"plywood":       b.Mul(d("1.25")).Round(2),
			"uv_birch":      b.Mul(d("1.45")).Round(2),
			"white_plywood": b.Mul(d("1.35")).Round(2),
		}
	}
	return SeedData{
		Products: []SeedProduct{
			{ItemCode: "B12", Name: "Base Cabinet 12\"", Width: d("12"), Height: d("34.5"), Depth: d("24"), SKU: "B12-STD", Prices: priced("129.00")},
			{ItemCode: "B24", Name: "Base Cabinet 24\"", Width: d("24"), Height: d("34.5"), Depth: d("24"), SKU: "B24-STD", Prices: priced("189.00")},
			{ItemCode: "SB36", Name: "Sink Base 36\"", Width: d("36"), Height: d("34.5"), Depth: d("24"), SKU: "SB36-STD", Prices: priced("219.00")},
			{ItemCode: "W3030", Name: "Wall Cabinet 30x30", Width: d("30"), Height: d("30"), Depth: d("12"), SKU: "W3030-STD", Prices: priced("159.00")},
			{ItemCode: "T1884", Name: "Tall Pantry 18x84", Width: d("18"), Height: d("84"), Depth: d("24"), SKU: "T1884-STD", Prices: priced("349.00")},
		},
		Customers: []SeedCustomer{
			{ID: "7d1f3c2e-0b0a-4a51-9a54-6f0e7c1a0001", Name: "Walk-in Retail", Tier: "retail"},
			{
				ID: "7d1f3c2e-0b0a-4a51-9a54-6f0e7c1a0002", Name: "Lone Star Remodeling", Email: "orders@lonestar.example", Tier: "contractor",
				Address: &pricing.Address{Line1: "500 Congress Ave", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"},
			},
			{
				ID: "7d1f3c2e-0b0a-4a51-9a54-6f0e7c1a0003", Name: "Northern Cabinet Supply", Email: "buying@northern.example", Tier: "wholesale",
				Address: &pricing.Address{Line1: "200 King St W", City: "Toronto", State: "ON", PostalCode: "M5H 3T4", Country: "CA"},
			},
		},
	}
}
