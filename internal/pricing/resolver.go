package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceNotFound is returned when no price record is valid for the pair at the evaluation instant.
	ErrPriceNotFound = errors.New("price not found")
	// ErrInvalidPriceRecord indicates the effective record carries an unusable price.
	ErrInvalidPriceRecord = errors.New("invalid price record")
)

// PriceRecord is a single row of the price list for a (variant, material) pair.
type PriceRecord struct {
	ID             string          `json:"id"`
	VariantID      string          `json:"variant_id"`
	MaterialID     string          `json:"material_id"`
	Price          decimal.Decimal `json:"price"`
	EffectiveDate  time.Time       `json:"effective_date"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	SKU            string          `json:"sku,omitempty"`
	ProductName    string          `json:"product_name,omitempty"`
	MaterialName   string          `json:"material_name,omitempty"`
}

// ValidAt reports whether the record applies at instant t. The effective date
// is inclusive and the expiration date exclusive.
func (r PriceRecord) ValidAt(t time.Time) bool {
	if r.EffectiveDate.After(t) {
		return false
	}
	return r.ExpirationDate == nil || r.ExpirationDate.After(t)
}

// Product carries the display data of a priced line.
type Product struct {
	SKU      string
	Name     string
	Material string
}

// Label renders the product for human readable output.
func (p Product) Label() string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.SKU)
	}
	if m := strings.TrimSpace(p.Material); m != "" {
		return name + " (" + m + ")"
	}
	return name
}

// ResolvedPrice is the authoritative unit price of a pair at an instant.
type ResolvedPrice struct {
	VariantID      string
	MaterialID     string
	RecordID       string
	UnitPrice      decimal.Decimal
	EffectiveDate  time.Time
	ExpirationDate *time.Time
	Product        Product
}

// PriceSource loads the price list rows of a (variant, material) pair.
type PriceSource interface {
	PriceRecords(ctx context.Context, variantID, materialID string) ([]PriceRecord, error)
}

// SelectEffective picks the record valid at t with the latest effective date.
// Records sharing an effective date are ordered by id so the choice is total.
func SelectEffective(records []PriceRecord, at time.Time) (PriceRecord, bool) {
	var (
		best  PriceRecord
		found bool
	)
	for _, rec := range records {
		if !rec.ValidAt(at) {
			continue
		}
		if !found || rec.EffectiveDate.After(best.EffectiveDate) ||
			(rec.EffectiveDate.Equal(best.EffectiveDate) && rec.ID > best.ID) {
			best = rec
			found = true
		}
	}
	return best, found
}

// Resolver resolves unit prices from a PriceSource.
type Resolver struct {
	Source PriceSource
}

// Resolve returns the price effective at the given instant. It has no side
// effects beyond reading the source.
func (r Resolver) Resolve(ctx context.Context, variantID, materialID string, at time.Time) (ResolvedPrice, error) {
	if r.Source == nil {
		return ResolvedPrice{}, errors.New("pricing: price source not configured")
	}
	records, err := r.Source.PriceRecords(ctx, variantID, materialID)
	if err != nil {
		return ResolvedPrice{}, err
	}
	rec, ok := SelectEffective(records, at)
	if !ok {
		return ResolvedPrice{}, fmt.Errorf("%w: variant %s material %s at %s", ErrPriceNotFound, variantID, materialID, at.UTC().Format(time.RFC3339))
	}
	if rec.Price.IsNegative() {
		return ResolvedPrice{}, fmt.Errorf("%w: record %s has negative price", ErrInvalidPriceRecord, rec.ID)
	}
	return ResolvedPrice{
		VariantID:      variantID,
		MaterialID:     materialID,
		RecordID:       rec.ID,
		UnitPrice:      rec.Price,
		EffectiveDate:  rec.EffectiveDate,
		ExpirationDate: rec.ExpirationDate,
		Product: Product{
			SKU:      rec.SKU,
			Name:     rec.ProductName,
			Material: rec.MaterialName,
		},
	}, nil
}
