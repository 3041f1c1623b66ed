package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/cabinet-quote/internal/common"
	"github.com/noah-isme/cabinet-quote/internal/discount"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
	"github.com/noah-isme/cabinet-quote/internal/resilience"
	"github.com/noah-isme/cabinet-quote/internal/shipping"
	"github.com/noah-isme/cabinet-quote/internal/tax"
)

var (
	// ErrEmptyQuote is returned for requests without items.
	ErrEmptyQuote = errors.New("quote has no items")
	// ErrCustomerNotFound is returned when the customer reference cannot be resolved.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrInvalidRequest covers malformed fields without a more specific code.
	ErrInvalidRequest = errors.New("invalid quote request")
	// ErrUnknownTemplate is returned for document templates outside the known set.
	ErrUnknownTemplate = errors.New("unknown template type")
	// ErrInconsistentCalculation is returned when a supplied calculation does not reconcile.
	ErrInconsistentCalculation = errors.New("calculation is not internally consistent")
	// ErrRenderFailed wraps renderer failures.
	ErrRenderFailed = errors.New("document rendering failed")
	// ErrDocumentNotFound is returned for unknown or expired documents.
	ErrDocumentNotFound = errors.New("document not found")
)

// Error codes exposed to clients.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeEmptyQuote          = "EMPTY_QUOTE"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeInvalidDiscount     = "INVALID_DISCOUNT"
	CodeUnknownTier         = "UNKNOWN_DISCOUNT_TIER"
	CodeCustomerNotFound    = "CUSTOMER_NOT_FOUND"
	CodePriceNotFound       = "PRICE_NOT_FOUND"
	CodeUnknownJurisdiction = "UNKNOWN_JURISDICTION"
	CodeShippingQuote       = "SHIPPING_QUOTE_UNAVAILABLE"
	CodeDocumentNotFound    = "DOCUMENT_NOT_FOUND"
	CodeDownstream          = "DOWNSTREAM_UNAVAILABLE"
	CodeRenderFailed        = "RENDER_FAILED"
	CodeInternal            = "INTERNAL"
)

// Stage names a step of the quote pipeline.
type Stage string

const (
	StageValidating  Stage = "validating"
	StagePricing     Stage = "pricing"
	StageDiscounting Stage = "discounting"
	StageTaxing      Stage = "taxing"
	StageShipping    Stage = "shipping"
	StageAssembled   Stage = "assembled"
	StageRendering   Stage = "rendering"
)

// StageError records the stage a pipeline failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("quote %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage returns the stage err was raised in, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// Issue is a single validation finding.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`

	err error
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// ValidationError collects every issue found while validating a request.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.String())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the sentinel behind each issue to errors.Is.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.err != nil {
			out = append(out, is.err)
		}
	}
	return out
}

// Code is the code of the first issue.
func (e *ValidationError) Code() string {
	if len(e.Issues) == 0 {
		return CodeValidation
	}
	return e.Issues[0].Code
}

// Messages renders every issue as a client message.
func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		out = append(out, is.String())
	}
	return out
}

// ToAppError maps pipeline errors onto the HTTP error taxonomy.
func ToAppError(err error) *common.AppError {
	if err == nil {
		return nil
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &common.AppError{
			Code:       ve.Code(),
			Message:    "quote request is invalid",
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
			Messages:   ve.Messages(),
		}
	}

	bad := func(code, msg string) *common.AppError {
		return &common.AppError{Code: code, Message: msg, HTTPStatus: http.StatusBadRequest, Err: err, Messages: []string{rootMessage(err)}}
	}
	switch {
	case errors.Is(err, ErrRenderFailed):
		return common.NewAppError(CodeRenderFailed, "document rendering failed, retry rendering", http.StatusBadGateway, err)
	case errors.Is(err, ErrDocumentNotFound):
		return common.NewAppError(CodeDocumentNotFound, "document not found or expired", http.StatusNotFound, err)
	case errors.Is(err, pricing.ErrInvariantViolation), errors.Is(err, pricing.ErrInvalidPriceRecord):
		return common.NewAppError(CodeInternal, "internal server error", http.StatusInternalServerError, err)
	case errors.Is(err, resilience.ErrDownstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError(CodeDownstream, "a dependency is unavailable, retry later", http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrCustomerNotFound):
		return bad(CodeCustomerNotFound, "customer not found")
	case errors.Is(err, pricing.ErrPriceNotFound):
		return bad(CodePriceNotFound, "no effective price for a requested item")
	case errors.Is(err, tax.ErrUnknownJurisdiction):
		return bad(CodeUnknownJurisdiction, "tax jurisdiction could not be determined")
	case errors.Is(err, shipping.ErrShippingQuoteUnavailable):
		return bad(CodeShippingQuote, "shipping must be quoted manually")
	case errors.Is(err, discount.ErrUnknownDiscountTier):
		return bad(CodeUnknownTier, "unknown discount tier")
	case errors.Is(err, discount.ErrInvalidDiscount):
		return bad(CodeInvalidDiscount, "discount percent must be between 0 and 100")
	case errors.Is(err, discount.ErrInvalidQuantity), errors.Is(err, shipping.ErrNoUnits):
		return bad(CodeInvalidQuantity, "quantity must be a positive integer")
	case errors.Is(err, ErrEmptyQuote):
		return bad(CodeEmptyQuote, "quote has no items")
	case errors.Is(err, ErrUnknownTemplate), errors.Is(err, ErrInconsistentCalculation), errors.Is(err, ErrInvalidRequest):
		return bad(CodeValidation, "quote request is invalid")
	default:
		return common.NewAppError(CodeInternal, "internal server error", http.StatusInternalServerError, err)
	}
}

// rootMessage strips the pipeline stage prefix so clients see the cause.
func rootMessage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Err.Error()
	}
	return err.Error()
}
