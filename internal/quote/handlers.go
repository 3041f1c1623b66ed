package quote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/noah-isme/cabinet-quote/internal/common"
)

// Handler exposes the quote endpoints.
type Handler struct {
	Svc *Service
}

// PDFRequest renders a previously calculated quote.
type PDFRequest struct {
	QuoteCalculation         *Calculation `json:"quote_calculation"`
	TemplateType             string       `json:"template_type"`
	IncludeTerms             bool         `json:"include_terms"`
	IncludeInstallationGuide bool         `json:"include_installation_guide,omitempty"`
	Watermark                string       `json:"watermark,omitempty"`
}

// CalculateAndPDFRequest is a quote request plus rendering options.
type CalculateAndPDFRequest struct {
	Request
	TemplateType             string `json:"template_type"`
	IncludeTerms             bool   `json:"include_terms"`
	IncludeInstallationGuide bool   `json:"include_installation_guide,omitempty"`
	Watermark                string `json:"watermark,omitempty"`
}

type renderFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type calculateAndPDFResponse struct {
	Calculation Calculation    `json:"calculation"`
	PDF         *Document      `json:"pdf"`
	RenderError *renderFailure `json:"render_error,omitempty"`
}

// Validate handles POST /quotes/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.Validate(r.Context(), req)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	if !res.Valid {
		ve := &ValidationError{Issues: res.Issues}
		common.JSON(w, http.StatusBadRequest, common.Envelope{
			Success: false,
			Data:    res,
			Code:    ve.Code(),
			Message: "quote request is invalid",
			Errors:  ve.Messages(),
		})
		return
	}
	common.OK(w, http.StatusOK, res, nil)
}

// Calculate handles POST /quotes/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req Request
	if !decode(w, r, &req) {
		return
	}
	calc, err := h.Svc.Calculate(r.Context(), req)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.OK(w, http.StatusOK, calc, processingMeta(start))
}

// Breakdown handles POST /quotes/breakdown.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req Request
	if !decode(w, r, &req) {
		return
	}
	_, bd, err := h.Svc.Breakdown(r.Context(), req)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.OK(w, http.StatusOK, bd, processingMeta(start))
}

// PDF handles POST /quotes/pdf.
func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req PDFRequest
	if !decode(w, r, &req) {
		return
	}
	if req.QuoteCalculation == nil {
		common.JSONError(w, http.StatusBadRequest, CodeValidation, "quote request is invalid", []string{"quote_calculation: is required"})
		return
	}
	opts, err := renderOptions(req.TemplateType, req.IncludeTerms, req.IncludeInstallationGuide, req.Watermark)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	doc, err := h.Svc.Render(r.Context(), *req.QuoteCalculation, opts)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.OK(w, http.StatusOK, doc, processingMeta(start))
}

// CalculateAndPDF handles POST /quotes/calculate-and-pdf.
func (h *Handler) CalculateAndPDF(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req CalculateAndPDFRequest
	if !decode(w, r, &req) {
		return
	}
	opts, err := renderOptions(req.TemplateType, req.IncludeTerms, req.IncludeInstallationGuide, req.Watermark)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	out, err := h.Svc.CalculateAndRender(r.Context(), req.Request, opts)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	resp := calculateAndPDFResponse{Calculation: out.Calculation, PDF: out.Document}
	env := common.Envelope{Success: true, Data: &resp, Meta: processingMeta(start)}
	if out.RenderErr != nil {
		appErr := ToAppError(out.RenderErr)
		resp.RenderError = &renderFailure{Code: appErr.Code, Message: appErr.Message}
		env.Message = "calculation succeeded, document rendering failed"
	}
	common.JSON(w, http.StatusOK, env)
}

func renderOptions(template string, terms, guide bool, watermark string) (RenderOptions, error) {
	t, err := ParseTemplate(template)
	if err != nil {
		return RenderOptions{}, &ValidationError{Issues: []Issue{{
			Field: "template_type", Code: CodeValidation,
			Message: "must be one of standard, detailed, compact", err: err,
		}}}
	}
	return RenderOptions{Template: t, IncludeTerms: terms, IncludeInstallationGuide: guide, Watermark: watermark}, nil
}

func processingMeta(start time.Time) map[string]any {
	return map[string]any{"processing_time": time.Since(start).Milliseconds()}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		msg := "malformed JSON body"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		case errors.Is(err, io.EOF):
			msg = "request body is required"
		}
		common.JSONError(w, http.StatusBadRequest, CodeValidation, msg, []string{err.Error()})
		return false
	}
	return true
}
