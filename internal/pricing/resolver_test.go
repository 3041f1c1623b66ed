package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	records []PriceRecord
	err     error
	calls   int
}

func (s *staticSource) PriceRecords(_ context.Context, variantID, materialID string) ([]PriceRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []PriceRecord
	for _, r := range s.records {
		if r.VariantID == variantID && r.MaterialID == materialID {
			out = append(out, r)
		}
	}
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestSelectEffectiveLatestWins(t *testing.T) {
	records := []PriceRecord{
		{ID: "a", Price: decimal.RequireFromString("40"), EffectiveDate: day("2024-01-01")},
		{ID: "b", Price: decimal.RequireFromString("50"), EffectiveDate: day("2024-06-01")},
		{ID: "c", Price: decimal.RequireFromString("60"), EffectiveDate: day("2025-01-01")},
	}
	got, ok := SelectEffective(records, day("2024-07-15"))
	require.True(t, ok)
	require.Equal(t, "b", got.ID)
}

func TestSelectEffectiveWindowBounds(t *testing.T) {
	rec := PriceRecord{ID: "a", EffectiveDate: day("2024-01-01"), ExpirationDate: ptr(day("2024-02-01"))}
	require.True(t, rec.ValidAt(day("2024-01-01")), "effective date is inclusive")
	require.False(t, rec.ValidAt(day("2024-02-01")), "expiration date is exclusive")
	require.False(t, rec.ValidAt(day("2023-12-31")))
}

func TestSelectEffectiveSkipsExpired(t *testing.T) {
	records := []PriceRecord{
		{ID: "old", EffectiveDate: day("2024-01-01")},
		{ID: "new", EffectiveDate: day("2024-03-01"), ExpirationDate: ptr(day("2024-04-01"))},
	}
	got, ok := SelectEffective(records, day("2024-05-01"))
	require.True(t, ok)
	require.Equal(t, "old", got.ID)
}

func TestSelectEffectiveTieBreakIsTotal(t *testing.T) {
	records := []PriceRecord{
		{ID: "b", EffectiveDate: day("2024-01-01")},
		{ID: "a", EffectiveDate: day("2024-01-01")},
	}
	got, _ := SelectEffective(records, day("2024-02-01"))
	reversed, _ := SelectEffective([]PriceRecord{records[1], records[0]}, day("2024-02-01"))
	require.Equal(t, "b", got.ID)
	require.Equal(t, got.ID, reversed.ID)
}

func TestResolverResolve(t *testing.T) {
	src := &staticSource{records: []PriceRecord{
		{ID: "p1", VariantID: "v1", MaterialID: "plywood", Price: decimal.RequireFromString("50.00"), EffectiveDate: day("2024-01-01"), SKU: "B12", ProductName: "Base 12", MaterialName: "Plywood"},
		{ID: "p2", VariantID: "v1", MaterialID: "particleboard", Price: decimal.RequireFromString("35.00"), EffectiveDate: day("2024-01-01")},
	}}
	r := Resolver{Source: src}
	at := day("2024-08-01")

	first, err := r.Resolve(context.Background(), "v1", "plywood", at)
	require.NoError(t, err)
	require.True(t, first.UnitPrice.Equal(decimal.RequireFromString("50")))
	require.Equal(t, "Base 12 (Plywood)", first.Product.Label())

	second, err := r.Resolve(context.Background(), "v1", "plywood", at)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestResolverNotFound(t *testing.T) {
	r := Resolver{Source: &staticSource{records: []PriceRecord{
		{ID: "p1", VariantID: "v1", MaterialID: "plywood", EffectiveDate: day("2025-01-01")},
	}}}
	_, err := r.Resolve(context.Background(), "v1", "plywood", day("2024-01-01"))
	require.ErrorIs(t, err, ErrPriceNotFound)
}

func TestResolverPropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	r := Resolver{Source: &staticSource{err: boom}}
	_, err := r.Resolve(context.Background(), "v1", "plywood", day("2024-01-01"))
	require.ErrorIs(t, err, boom)
}

func TestResolverRejectsNegativePrice(t *testing.T) {
	r := Resolver{Source: &staticSource{records: []PriceRecord{
		{ID: "p1", VariantID: "v1", MaterialID: "plywood", Price: decimal.NewFromInt(-1), EffectiveDate: day("2024-01-01")},
	}}}
	_, err := r.Resolve(context.Background(), "v1", "plywood", day("2024-02-01"))
	require.ErrorIs(t, err, ErrInvalidPriceRecord)
}
