package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/cabinet-quote/internal/common"
	"github.com/noah-isme/cabinet-quote/internal/discount"
	"github.com/noah-isme/cabinet-quote/internal/obs"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/resilience"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
	"github.com/noah-isme/cabinet-quote/internal/tax"
)

const (
	// DefaultValidity is how long a quote stays valid when none is configured.
	DefaultValidity = 30 * 24 * time.Hour
	// DefaultAuditTimeout bounds the audit enqueue on the request path.
	DefaultAuditTimeout = 250 * time.Millisecond
)

// Config wires the quote service collaborators.
type Config struct {
	Prices    pricing.PriceSource
	Customers CustomerStore
	Tax       *tax.Calculator
	Shipping  *shipping.Estimator
	Renderer  Renderer
	Audit     AuditSink
	Validator *validator.Validate

	Validity    time.Duration
	Concurrency int

	PriceGuard    resilience.Guard
	CustomerGuard resilience.Guard
	RenderGuard   resilience.Guard
	AuditGuard    resilience.Guard

	Now func() time.Time
}

// Service orchestrates the quote pipeline. It holds no per-request state.
type Service struct {
	resolver    pricing.Resolver
	customers   CustomerStore
	tax         *tax.Calculator
	shipping    *shipping.Estimator
	renderer    Renderer
	audit       AuditSink
	validator   *validator.Validate
	validity    time.Duration
	concurrency int
	customerG   resilience.Guard
	renderG     resilience.Guard
	auditG      resilience.Guard
	now         func() time.Time
}

// NewService validates the configuration and builds a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Prices == nil {
		return nil, errors.New("quote: price source is required")
	}
	if cfg.Customers == nil {
		return nil, errors.New("quote: customer store is required")
	}
	if cfg.Shipping == nil {
		return nil, errors.New("quote: shipping estimator is required")
	}
	if cfg.Tax == nil {
		cfg.Tax = tax.NewCalculator(nil)
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AuditGuard.Timeout <= 0 {
		cfg.AuditGuard.Timeout = DefaultAuditTimeout
	}
	customerG := cfg.CustomerGuard
	if customerG.Ignore == nil {
		customerG.Ignore = func(err error) bool { return errors.Is(err, ErrCustomerNotFound) }
	}
	return &Service{
		resolver:    pricing.Resolver{Source: guardedPrices{src: cfg.Prices, guard: cfg.PriceGuard}},
		customers:   cfg.Customers,
		tax:         cfg.Tax,
		shipping:    cfg.Shipping,
		renderer:    cfg.Renderer,
		audit:       cfg.Audit,
		validator:   cfg.Validator,
		validity:    cfg.Validity,
		concurrency: cfg.Concurrency,
		customerG:   customerG,
		renderG:     cfg.RenderGuard,
		auditG:      cfg.AuditGuard,
		now:         cfg.Now,
	}, nil
}

type guardedPrices struct {
	src   pricing.PriceSource
	guard resilience.Guard
}

func (g guardedPrices) PriceRecords(ctx context.Context, variantID, materialID string) ([]pricing.PriceRecord, error) {
	return resilience.Call(ctx, g.guard, func(ctx context.Context) ([]pricing.PriceRecord, error) {
		return g.src.PriceRecords(ctx, variantID, materialID)
	})
}

func (s *Service) customer(ctx context.Context, id string) (Customer, error) {
	return resilience.Call(ctx, s.customerG, func(ctx context.Context) (Customer, error) {
		return s.customers.Customer(ctx, id)
	})
}

// Validate runs only the validating stage and reports every issue found. The
// error is non-nil only when a dependency needed for validation failed.
func (s *Service) Validate(ctx context.Context, req Request) (ValidationResult, error) {
	_, err := s.validate(ctx, req, s.now())
	var ve *ValidationError
	switch {
	case err == nil:
		obs.QuoteCalculationsTotal.WithLabelValues("validate", "ok").Inc()
		return ValidationResult{Valid: true}, nil
	case errors.As(err, &ve):
		obs.QuoteCalculationsTotal.WithLabelValues("validate", "invalid").Inc()
		return ValidationResult{Valid: false, Issues: ve.Issues}, nil
	default:
		obs.QuoteCalculationsTotal.WithLabelValues("validate", "error").Inc()
		return ValidationResult{}, fail(StageValidating, err)
	}
}

// Calculate runs the full pipeline.
func (s *Service) Calculate(ctx context.Context, req Request) (Calculation, error) {
	return s.run(ctx, "calculate", req)
}

// Breakdown runs the full pipeline and derives the explanation view.
func (s *Service) Breakdown(ctx context.Context, req Request) (Calculation, Breakdown, error) {
	calc, err := s.run(ctx, "breakdown", req)
	if err != nil {
		return Calculation{}, Breakdown{}, err
	}
	return calc, BuildBreakdown(calc), nil
}

// CalculateAndRender calculates and then renders. A render failure is
// reported in the outcome; only calculation failures return an error.
func (s *Service) CalculateAndRender(ctx context.Context, req Request, opts RenderOptions) (RenderOutcome, error) {
	calc, err := s.run(ctx, "calculate_and_render", req)
	if err != nil {
		return RenderOutcome{}, err
	}
	out := RenderOutcome{Calculation: calc, Breakdown: BuildBreakdown(calc)}
	doc, err := s.render(ctx, calc, out.Breakdown, opts)
	if err != nil {
		out.RenderErr = err
		obs.Logger(ctx).Warn().Err(err).Str("reference", calc.Reference).Msg("quote render failed, calculation returned")
		return out, nil
	}
	out.Document = &doc
	return out, nil
}

// Render renders an existing calculation after checking it against the
// pricing, tax and shipping rules.
func (s *Service) Render(ctx context.Context, calc Calculation, opts RenderOptions) (Document, error) {
	if err := s.verify(calc); err != nil {
		return Document{}, fail(StageValidating, err)
	}
	return s.render(ctx, calc, BuildBreakdown(calc), opts)
}

func (s *Service) render(ctx context.Context, calc Calculation, bd Breakdown, opts RenderOptions) (Document, error) {
	if opts.Template == "" {
		opts.Template = TemplateStandard
	}
	if s.renderer == nil {
		obs.QuoteRenderTotal.WithLabelValues(string(opts.Template), "error").Inc()
		return Document{}, fail(StageRendering, fmt.Errorf("%w: no renderer configured", ErrRenderFailed))
	}
	doc, err := resilience.Call(ctx, s.renderG, func(ctx context.Context) (Document, error) {
		return s.renderer.Render(ctx, RenderRequest{Calculation: calc, Breakdown: bd, Options: opts})
	})
	if err != nil {
		obs.QuoteRenderTotal.WithLabelValues(string(opts.Template), "error").Inc()
		return Document{}, fail(StageRendering, fmt.Errorf("%w: %w", ErrRenderFailed, err))
	}
	obs.QuoteRenderTotal.WithLabelValues(string(opts.Template), "ok").Inc()
	return doc, nil
}

func (s *Service) run(ctx context.Context, op string, req Request) (calc Calculation, err error) {
	ctx, span := otel.Tracer("quote").Start(ctx, "quote."+op)
	start := time.Now()
	defer func() {
		obs.QuoteCalculationDuration.WithLabelValues(op).Observe(obs.DurationMillis(time.Since(start)))
		if err == nil {
			obs.QuoteCalculationsTotal.WithLabelValues(op, "ok").Inc()
			obs.Annotate(ctx, "quote_reference", calc.Reference)
			span.End()
			return
		}
		stage, _ := FailedStage(err)
		code := ToAppError(err).Code
		obs.QuoteCalculationsTotal.WithLabelValues(op, "error").Inc()
		obs.QuoteStageFailuresTotal.WithLabelValues(string(stage), code).Inc()
		evt := obs.Logger(ctx).Warn()
		if code == CodeInternal {
			evt = obs.Logger(ctx).Error()
		}
		evt.Err(err).Str("operation", op).Str("stage", string(stage)).Str("code", code).Msg("quote pipeline failed")
		span.SetAttributes(attribute.String("quote.failed_stage", string(stage)))
		span.SetStatus(codes.Error, code)
		span.End()
	}()

	at := s.now()
	p, err := s.validate(ctx, req, at)
	if err != nil {
		return Calculation{}, fail(StageValidating, err)
	}

	prices, err := s.resolvePrices(ctx, p.Lines, at)
	if err != nil {
		return Calculation{}, fail(StagePricing, err)
	}

	items := make([]LineItem, len(p.Lines))
	lineTotals := make([]decimal.Decimal, len(p.Lines))
	discountTotal := decimal.Zero
	for i, line := range p.Lines {
		res, err := discount.ApplyLine(prices[i].UnitPrice, line.Quantity, line.Percent, p.Tier)
		if err != nil {
			return Calculation{}, fail(StageDiscounting, err)
		}
		items[i] = newLineItem(line, prices[i], res)
		lineTotals[i] = res.LineTotal
		discountTotal = discountTotal.Add(res.Discount)
	}
	subtotal := decimal.Zero
	for _, lt := range lineTotals {
		subtotal = subtotal.Add(lt)
	}

	taxSummary := tax.NotApplied()
	if p.ApplyTax {
		taxSummary, err = s.tax.ComputeTax(subtotal, p.Address)
		if err != nil {
			return Calculation{}, fail(StageTaxing, err)
		}
	}

	shipLines := make([]shipping.Line, len(p.Lines))
	for i, line := range p.Lines {
		shipLines[i] = shipping.Line{VariantID: line.VariantID, MaterialID: line.MaterialID, Quantity: line.Quantity}
	}
	shipSummary, err := s.shipping.Estimate(shipLines, p.Address)
	if err != nil {
		return Calculation{}, fail(StageShipping, err)
	}

	totals := pricing.Compute(lineTotals, discountTotal, taxSummary.Amount, shipSummary.Cost)
	if err := totals.Check(); err != nil {
		return Calculation{}, fail(StageAssembled, err)
	}

	validUntil := at.Add(s.validity)
	if p.ValidUntil != nil {
		validUntil = *p.ValidUntil
	}
	calc = Calculation{
		Reference: reference(p, at),
		Customer: CustomerRef{
			ID:           p.Customer.ID,
			Name:         p.Customer.Name,
			Email:        p.Customer.Email,
			DiscountTier: p.Tier,
		},
		LineItems:       items,
		Subtotal:        pricing.NewAmount(totals.Subtotal),
		DiscountAmount:  pricing.NewAmount(totals.Discount),
		TaxSummary:      newTaxSummary(taxSummary),
		ShippingSummary: newShippingSummary(shipSummary),
		ShippingAddress: p.Address,
		TotalAmount:     pricing.NewAmount(totals.Total),
		ValidUntil:      validUntil.UTC(),
		EvaluatedAt:     at.UTC(),
		CreatedAt:       s.now().UTC(),
		Notes:           p.Notes,
	}

	if s.audit != nil {
		aerr := s.auditG.Do(ctx, func(ctx context.Context) error {
			return s.audit.Record(ctx, calc)
		})
		if aerr != nil {
			obs.Logger(ctx).Warn().Err(aerr).Str("reference", calc.Reference).Msg("quote audit record failed")
		}
	}
	return calc, nil
}

// resolvePrices resolves every line concurrently. Results are stored by
// index so the output order never depends on scheduling.
func (s *Service) resolvePrices(ctx context.Context, lines []plannedLine, at time.Time) ([]pricing.ResolvedPrice, error) {
	out := make([]pricing.ResolvedPrice, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			rp, err := s.resolver.Resolve(gctx, line.VariantID, line.MaterialID, at)
			if err != nil {
				return err
			}
			out[i] = rp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func newLineItem(line plannedLine, rp pricing.ResolvedPrice, res discount.Result) LineItem {
	entries := make([]DiscountEntry, 0, len(res.Steps))
	for _, st := range res.Steps {
		entries = append(entries, DiscountEntry{
			Kind:            st.Kind,
			Percent:         pricing.Rate{Decimal: st.Percent},
			Amount:          pricing.NewAmount(st.Amount),
			ResultingAmount: pricing.NewAmount(st.Resulting),
			Description:     st.Description,
		})
	}
	return LineItem{
		VariantID:           line.VariantID,
		MaterialID:          line.MaterialID,
		Product:             ProductRef{SKU: rp.Product.SKU, Name: rp.Product.Name, Material: rp.Product.Material},
		Quantity:            line.Quantity,
		UnitPrice:           pricing.NewAmount(rp.UnitPrice),
		PriceRecordID:       rp.RecordID,
		PriceEffectiveDate:  rp.EffectiveDate.UTC(),
		PriceExpirationDate: utcPtr(rp.ExpirationDate),
		Discounts:           entries,
		GrossAmount:         pricing.NewAmount(res.Gross),
		DiscountAmount:      pricing.NewAmount(res.Discount),
		LineTotal:           pricing.NewAmount(res.LineTotal),
		Note:                line.Note,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// reference derives a stable quote reference from the validated request and
// evaluation instant.
func reference(p plan, at time.Time) string {
	var b strings.Builder
	b.WriteString(p.Customer.ID)
	b.WriteString("|" + string(p.Tier))
	for _, l := range p.Lines {
		b.WriteString("|" + l.VariantID + "/" + l.MaterialID + "x")
		b.WriteString(decimal.NewFromInt(int64(l.Quantity)).String())
		b.WriteString("@" + l.Percent.String())
	}
	a := p.Address
	b.WriteString("|" + a.Country + "-" + a.State + "-" + a.PostalCode)
	if p.ApplyTax {
		b.WriteString("|tax")
	}
	b.WriteString("|" + at.UTC().Format(time.RFC3339Nano))
	return "Q-" + at.UTC().Format("20060102") + "-" + strings.ToUpper(common.Sha256Hex(b.String())[:8])
}
