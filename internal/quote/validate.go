package quote

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/cabinet-quote/internal/discount"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
)

const (
	// MaxLineQuantity caps the quantity of a single merged line.
	MaxLineQuantity = 100_000
	// MaxQuoteUnits caps the units across all lines of a quote.
	MaxQuoteUnits = 1_000_000
)

// ValidationResult is the outcome of the validating stage alone.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"errors,omitempty"`
}

// plannedLine is a merged, validated request line.
type plannedLine struct {
	VariantID  string
	MaterialID string
	Quantity   int
	Percent    decimal.Decimal
	Note       string
}

// plan is the validated form of a request.
type plan struct {
	Customer   Customer
	Tier       discount.Tier
	Lines      []plannedLine
	Address    pricing.Address
	ApplyTax   bool
	ValidUntil *time.Time
	Notes      string
}

// NewValidator builds a validator that reports json field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type issues []Issue

func (is *issues) add(field, code, msg string, err error) {
	*is = append(*is, Issue{Field: field, Code: code, Message: msg, err: err})
}

// validate runs the validating stage. A non-nil error that is not a
// *ValidationError means a dependency failed.
func (s *Service) validate(ctx context.Context, req Request, now time.Time) (plan, error) {
	var found issues

	if len(req.Items) == 0 {
		found.add("items", CodeEmptyQuote, "at least one item is required", ErrEmptyQuote)
	}
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case item.Quantity <= 0:
			found.add(field+".quantity", CodeInvalidQuantity,
				fmt.Sprintf("must be a positive integer, got %d", item.Quantity), discount.ErrInvalidQuantity)
		case item.Quantity > MaxLineQuantity:
			found.add(field+".quantity", CodeInvalidQuantity,
				fmt.Sprintf("must be at most %d, got %d", MaxLineQuantity, item.Quantity), discount.ErrInvalidQuantity)
		}
		if item.DiscountPercent != nil && !pricing.ValidPercent(*item.DiscountPercent) {
			found.add(field+".discount_percent", CodeInvalidDiscount,
				fmt.Sprintf("must be between 0 and 100, got %s", item.DiscountPercent.String()), discount.ErrInvalidDiscount)
		}
	}
	s.structIssues(req, &found)

	lines := mergeLines(req.Items, &found)
	checkTotalUnits(lines, &found)

	var tier discount.Tier
	if raw := strings.TrimSpace(req.CustomerDiscountTier); raw != "" {
		t, err := discount.ParseTier(raw)
		if err != nil {
			found.add("customer_discount_tier", CodeUnknownTier,
				fmt.Sprintf("%q is not one of retail, contractor, wholesale", raw), discount.ErrUnknownDiscountTier)
		}
		tier = t
	}

	if req.ValidUntil != nil && !req.ValidUntil.After(now) {
		found.add("valid_until", CodeValidation, "must be in the future", ErrInvalidRequest)
	}

	var customer Customer
	customerKnown := false
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		c, err := s.customer(ctx, id)
		switch {
		case errors.Is(err, ErrCustomerNotFound):
			found.add("customer_id", CodeCustomerNotFound, fmt.Sprintf("customer %q does not exist", id), ErrCustomerNotFound)
		case err != nil:
			return plan{}, err
		default:
			customer = c
			customerKnown = true
		}
	}

	if customerKnown && tier == "" && strings.TrimSpace(req.CustomerDiscountTier) == "" {
		raw := customer.Tier
		if strings.TrimSpace(raw) == "" {
			tier = discount.TierRetail
		} else if t, err := discount.ParseTier(raw); err != nil {
			found.add("customer_id", CodeUnknownTier,
				fmt.Sprintf("customer tier %q is not one of retail, contractor, wholesale", raw), discount.ErrUnknownDiscountTier)
		} else {
			tier = t
		}
	}

	var address pricing.Address
	switch {
	case req.ShippingAddress != nil && !req.ShippingAddress.IsZero():
		address = req.ShippingAddress.Normalize()
	case customerKnown && customer.DefaultAddress != nil && !customer.DefaultAddress.IsZero():
		address = customer.DefaultAddress.Normalize()
	case customerKnown:
		found.add("shipping_address", CodeValidation, "required when the customer has no default address", ErrInvalidRequest)
	}

	if len(found) > 0 {
		return plan{}, &ValidationError{Issues: found}
	}
	return plan{
		Customer:   customer,
		Tier:       tier,
		Lines:      lines,
		Address:    address,
		ApplyTax:   req.TaxEnabled(),
		ValidUntil: req.ValidUntil,
		Notes:      strings.TrimSpace(req.Notes),
	}, nil
}

func (s *Service) structIssues(req Request, found *issues) {
	if s.validator == nil {
		return
	}
	err := s.validator.Struct(req)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "max":
			msg = "must be at most " + fe.Param() + " characters"
		default:
			msg = "failed " + fe.Tag() + " check"
		}
		found.add(field, CodeValidation, msg, ErrInvalidRequest)
	}
}

// mergeLines folds repeated (variant, material) pairs into one line with the
// summed quantity, keeping first-seen order. Repeats that disagree on the
// discount percent are reported instead of merged.
func mergeLines(items []ItemRequest, found *issues) []plannedLine {
	index := make(map[string]int, len(items))
	lines := make([]plannedLine, 0, len(items))
	for i, item := range items {
		percent := decimal.Zero
		if item.DiscountPercent != nil {
			percent = *item.DiscountPercent
		}
		variant := strings.TrimSpace(item.VariantID)
		material := strings.TrimSpace(item.MaterialID)
		key := variant + "\x00" + material
		if at, ok := index[key]; ok {
			existing := &lines[at]
			if !existing.Percent.Equal(percent) {
				found.add(fmt.Sprintf("items[%d]", i), CodeValidation,
					fmt.Sprintf("duplicates variant %s material %s with a different discount_percent", variant, material), ErrInvalidRequest)
				continue
			}
			merged, ok := pricing.AddUnits(existing.Quantity, item.Quantity)
			if !ok || merged > MaxLineQuantity {
				if validQuantity(existing.Quantity) && validQuantity(item.Quantity) {
					found.add(fmt.Sprintf("items[%d].quantity", i), CodeInvalidQuantity,
						fmt.Sprintf("merged quantity for variant %s material %s exceeds %d", variant, material, MaxLineQuantity),
						discount.ErrInvalidQuantity)
				}
				continue
			}
			existing.Quantity = merged
			if note := strings.TrimSpace(item.Note); note != "" {
				if existing.Note != "" {
					existing.Note += "; "
				}
				existing.Note += note
			}
			continue
		}
		index[key] = len(lines)
		lines = append(lines, plannedLine{
			VariantID:  variant,
			MaterialID: material,
			Quantity:   item.Quantity,
			Percent:    percent,
			Note:       strings.TrimSpace(item.Note),
		})
	}
	return lines
}

func validQuantity(q int) bool { return q > 0 && q <= MaxLineQuantity }

// checkTotalUnits reports quotes whose combined quantity is too large to
// price or ship. Lines already reported for their own quantity are skipped.
func checkTotalUnits(lines []plannedLine, found *issues) {
	total := 0
	for _, l := range lines {
		if !validQuantity(l.Quantity) {
			return
		}
		next, ok := pricing.AddUnits(total, l.Quantity)
		if !ok || next > MaxQuoteUnits {
			found.add("items", CodeInvalidQuantity,
				fmt.Sprintf("total quantity exceeds %d units", MaxQuoteUnits), discount.ErrInvalidQuantity)
			return
		}
		total = next
	}
}
