package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
	"github.com/noah-isme/cabinet-quote/internal/tax"
)

var evalInstant = time.Date(2024, 8, 1, 15, 30, 0, 0, time.UTC)

type memPrices struct {
	mu      sync.Mutex
	records []pricing.PriceRecord
	delay   time.Duration
	calls   int
}

func (m *memPrices) PriceRecords(ctx context.Context, variantID, materialID string) ([]pricing.PriceRecord, error) {
	m.mu.Lock()
	m.calls++
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var out []pricing.PriceRecord
	for _, r := range m.records {
		if r.VariantID == variantID && r.MaterialID == materialID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memCustomers map[string]Customer

func (m memCustomers) Customer(_ context.Context, id string) (Customer, error) {
	c, ok := m[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

type fakeRenderer struct {
	err  error
	reqs []RenderRequest
}

func (f *fakeRenderer) Render(_ context.Context, req RenderRequest) (Document, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return Document{}, f.err
	}
	return Document{ID: "doc-1", FileSize: 2048, Pages: 1, DownloadURL: "/api/v1/quotes/pdf/doc-1", Template: req.Options.Template}, nil
}

type fakeAudit struct {
	mu    sync.Mutex
	calcs []Calculation
	err   error
	hang  bool
}

func (f *fakeAudit) Record(ctx context.Context, c Calculation) error {
	f.mu.Lock()
	f.calcs = append(f.calcs, c)
	hang, err := f.hang, f.err
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pct(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func boolPtr(b bool) *bool { return &b }

var texas = &pricing.Address{Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"}

func fixturePrices() *memPrices {
	return &memPrices{records: []pricing.PriceRecord{
		{ID: "p-old", VariantID: "V", MaterialID: "plywood", Price: dec("45.00"), EffectiveDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), SKU: "B24", ProductName: "Base 24", MaterialName: "Plywood"},
		{ID: "p-cur", VariantID: "V", MaterialID: "plywood", Price: dec("50.00"), EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), SKU: "B24", ProductName: "Base 24", MaterialName: "Plywood"},
		{ID: "p-next", VariantID: "V", MaterialID: "plywood", Price: dec("55.00"), EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), SKU: "B24", ProductName: "Base 24", MaterialName: "Plywood"},
		{ID: "p-w", VariantID: "W", MaterialID: "particleboard", Price: dec("100.00"), EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), SKU: "W30", ProductName: "Wall 30", MaterialName: "Particleboard"},
	}}
}

func fixtureCustomers() memCustomers {
	return memCustomers{
		"c-contractor": {ID: "c-contractor", Name: "Acme Builders", Email: "ops@acme.test", Tier: "contractor", DefaultAddress: texas},
		"c-retail":     {ID: "c-retail", Name: "Pat Doe", Tier: "retail"},
		"c-bad-tier":   {ID: "c-bad-tier", Name: "Legacy", Tier: "gold", DefaultAddress: texas},
	}
}

type fixture struct {
	svc      *Service
	prices   *memPrices
	renderer *fakeRenderer
	audit    *fakeAudit
}

func newFixture(t *testing.T, mutate ...func(*Config)) fixture {
	t.Helper()
	est, err := shipping.NewEstimator(shipping.DefaultSchedule())
	require.NoError(t, err)
	f := fixture{prices: fixturePrices(), renderer: &fakeRenderer{}, audit: &fakeAudit{}}
	cfg := Config{
		Prices:    f.prices,
		Customers: fixtureCustomers(),
		Tax:       tax.NewCalculator(nil),
		Shipping:  est,
		Renderer:  f.renderer,
		Audit:     f.audit,
		Now:       func() time.Time { return evalInstant },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.svc, err = NewService(cfg)
	require.NoError(t, err)
	return f
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, ToAppError(err).Code, "error: %v", err)
}

var errBoom = errors.New("boom")
