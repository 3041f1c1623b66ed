package shipping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/shopspring/decimal"
)

var (
	// ErrShippingQuoteUnavailable signals the order must be quoted manually.
	ErrShippingQuoteUnavailable = errors.New("shipping quote unavailable")
	// ErrInvalidSchedule is returned for schedules that are not monotonic in quantity.
	ErrInvalidSchedule = errors.New("invalid shipping schedule")
	// ErrNoUnits is returned when the estimate is requested for zero units.
	ErrNoUnits = errors.New("no units to ship")
)

// Tier names the bracket that produced a shipping cost.
type Tier string

const (
	TierFlat       Tier = "flat"
	TierPerUnit    Tier = "per_unit"
	TierNegotiated Tier = "negotiated"
)

// Schedule describes the shipping brackets. Quantities up to FlatMaxUnits pay
// FlatFee, up to PerUnitMaxUnits pay PerUnitRate each, and anything above uses
// NegotiatedRate when it is set.
type Schedule struct {
	FlatFee         decimal.Decimal
	FlatMaxUnits    int
	PerUnitRate     decimal.Decimal
	PerUnitMaxUnits int
	NegotiatedRate  decimal.NullDecimal
	Countries       []string
}

// DefaultSchedule is the standard bracket set for domestic and Canadian orders.
func DefaultSchedule() Schedule {
	return Schedule{
		FlatFee:         decimal.NewFromInt(75),
		FlatMaxUnits:    5,
		PerUnitRate:     decimal.NewFromInt(15),
		PerUnitMaxUnits: 20,
		Countries:       []string{"US", "CA"},
	}
}

// Validate checks the schedule never charges less for more units.
func (s Schedule) Validate() error {
	switch {
	case s.FlatMaxUnits < 1:
		return fmt.Errorf("%w: flat bracket must cover at least one unit", ErrInvalidSchedule)
	case s.PerUnitMaxUnits <= s.FlatMaxUnits:
		return fmt.Errorf("%w: per-unit bracket must end after the flat bracket", ErrInvalidSchedule)
	case s.FlatFee.IsNegative() || s.PerUnitRate.IsNegative():
		return fmt.Errorf("%w: negative fee", ErrInvalidSchedule)
	case len(s.Countries) == 0:
		return fmt.Errorf("%w: no serviceable countries", ErrInvalidSchedule)
	}
	firstPerUnit := s.PerUnitRate.Mul(decimal.NewFromInt(int64(s.FlatMaxUnits + 1)))
	if firstPerUnit.LessThan(s.FlatFee) {
		return fmt.Errorf("%w: %d units would cost %s, below the flat fee %s",
			ErrInvalidSchedule, s.FlatMaxUnits+1, firstPerUnit.StringFixed(2), s.FlatFee.StringFixed(2))
	}
	if s.NegotiatedRate.Valid {
		rate := s.NegotiatedRate.Decimal
		if rate.IsNegative() {
			return fmt.Errorf("%w: negative negotiated rate", ErrInvalidSchedule)
		}
		lastPerUnit := s.PerUnitRate.Mul(decimal.NewFromInt(int64(s.PerUnitMaxUnits)))
		firstNegotiated := rate.Mul(decimal.NewFromInt(int64(s.PerUnitMaxUnits + 1)))
		if firstNegotiated.LessThan(lastPerUnit) {
			return fmt.Errorf("%w: negotiated rate undercuts the per-unit bracket", ErrInvalidSchedule)
		}
	}
	return nil
}

// Line is the shipping-relevant part of a quote line.
type Line struct {
	VariantID  string
	MaterialID string
	Quantity   int
}

// Summary is the shipping outcome of a quote.
type Summary struct {
	Cost        decimal.Decimal
	Tier        Tier
	TotalUnits  int
	Destination string
	Description string
}

// Estimator computes shipping costs from a validated schedule.
type Estimator struct {
	schedule  Schedule
	countries map[string]struct{}
}

// NewEstimator validates the schedule and builds an estimator.
func NewEstimator(s Schedule) (*Estimator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	countries := make(map[string]struct{}, len(s.Countries))
	for _, c := range s.Countries {
		countries[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &Estimator{schedule: s, countries: countries}, nil
}

// Schedule returns the schedule the estimator was built with.
func (e *Estimator) Schedule() Schedule { return e.schedule }

// Estimate prices shipping for the total quantity across lines. Orders above
// the per-unit bracket without a negotiated rate, and destinations outside
// the serviceable countries, fail with ErrShippingQuoteUnavailable.
func (e *Estimator) Estimate(lines []Line, addr pricing.Address) (Summary, error) {
	units := 0
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Summary{}, fmt.Errorf("%w: line %s/%s has quantity %d", ErrNoUnits, l.VariantID, l.MaterialID, l.Quantity)
		}
		next, ok := pricing.AddUnits(units, l.Quantity)
		if !ok {
			return Summary{}, fmt.Errorf("%w: total quantity overflows", ErrShippingQuoteUnavailable)
		}
		units = next
	}
	if units == 0 {
		return Summary{}, ErrNoUnits
	}
	country := addr.Normalize().Country
	if country == "" {
		return Summary{}, fmt.Errorf("%w: destination country is required", ErrShippingQuoteUnavailable)
	}
	if _, ok := e.countries[country]; !ok {
		return Summary{}, fmt.Errorf("%w: destination %s is not serviceable", ErrShippingQuoteUnavailable, country)
	}

	s := e.schedule
	n := decimal.NewFromInt(int64(units))
	out := Summary{TotalUnits: units, Destination: country}
	switch {
	case units <= s.FlatMaxUnits:
		out.Tier = TierFlat
		out.Cost = s.FlatFee
		out.Description = fmt.Sprintf("Flat rate for 1-%d units", s.FlatMaxUnits)
	case units <= s.PerUnitMaxUnits:
		out.Tier = TierPerUnit
		out.Cost = s.PerUnitRate.Mul(n)
		out.Description = fmt.Sprintf("%s per unit x %d units", s.PerUnitRate.StringFixed(2), units)
	case s.NegotiatedRate.Valid:
		out.Tier = TierNegotiated
		out.Cost = s.NegotiatedRate.Decimal.Mul(n)
		out.Description = fmt.Sprintf("Negotiated rate %s per unit x %d units", s.NegotiatedRate.Decimal.StringFixed(2), units)
	default:
		return Summary{}, fmt.Errorf("%w: %d units exceeds %d, contact sales for a freight quote",
			ErrShippingQuoteUnavailable, units, s.PerUnitMaxUnits)
	}
	out.Cost = pricing.Round2(out.Cost)
	return out, nil
}
