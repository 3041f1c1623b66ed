package quote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
	Code    string          `json:"code"`
	Meta    map[string]any  `json:"meta"`
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/quotes", func(r chi.Router) {
		r.Post("/validate", h.Validate)
		r.Post("/calculate", h.Calculate)
		r.Post("/breakdown", h.Breakdown)
		r.Post("/pdf", h.PDF)
		r.Post("/calculate-and-pdf", h.CalculateAndPDF)
	})
	return r
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

const contractorBody = `{
	"customer_id": "c-contractor",
	"items": [{"variant_id": "V", "material_id": "plywood", "quantity": 5, "discount_percent": 10}]
}`

func TestQuoteHandlers(t *testing.T) {
	f := newFixture(t)
	router := newRouter(&Handler{Svc: f.svc})

	t.Run("calculate", func(t *testing.T) {
		rec, env := post(t, router, "/api/v1/quotes/calculate", contractorBody)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, env.Success)
		require.Contains(t, env.Meta, "processing_time")

		var calc Calculation
		require.NoError(t, json.Unmarshal(env.Data, &calc))
		require.Equal(t, "290.16", calc.TotalAmount.StringFixed(2))

		var raw map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &raw))
		require.Equal(t, 290.16, raw["total_amount"], "money is a JSON number")
	})

	t.Run("breakdown", func(t *testing.T) {
		rec, env := post(t, router, "/api/v1/quotes/breakdown", contractorBody)
		require.Equal(t, http.StatusOK, rec.Code)
		var bd Breakdown
		require.NoError(t, json.Unmarshal(env.Data, &bd))
		require.Len(t, bd.LineItems, 1)
		require.Len(t, bd.LineItems[0].Discounts, 2)
		require.Equal(t, "47.50", bd.DiscountTotal().StringFixed(2))
	})

	t.Run("validate reports issues", func(t *testing.T) {
		rec, env := post(t, router, "/api/v1/quotes/validate", `{"customer_id":"c-contractor","items":[{"variant_id":"V","material_id":"plywood","quantity":0}]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.False(t, env.Success)
		require.Equal(t, CodeInvalidQuantity, env.Code)
		var res ValidationResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		require.False(t, res.Valid)
		require.Equal(t, "items[0].quantity", res.Issues[0].Field)

		rec, env = post(t, router, "/api/v1/quotes/validate", contractorBody)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, env.Success)
	})

	t.Run("error envelope", func(t *testing.T) {
		rec, env := post(t, router, "/api/v1/quotes/calculate", `{"customer_id":"c-contractor","items":[]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, CodeEmptyQuote, env.Code)
		require.NotEmpty(t, env.Errors)

		rec, env = post(t, router, "/api/v1/quotes/calculate", `{"customer_id":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, CodeValidation, env.Code)

		rec, env = post(t, router, "/api/v1/quotes/calculate", `{"customer_id":"c-contractor","items":[{"variant_id":"V","material_id":"plywood","quantity":21}]}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, CodeShippingQuote, env.Code)
	})

	t.Run("pdf from calculation", func(t *testing.T) {
		_, calcEnv := post(t, router, "/api/v1/quotes/calculate", contractorBody)
		body := `{"quote_calculation":` + string(calcEnv.Data) + `,"template_type":"detailed","include_terms":true}`
		rec, env := post(t, router, "/api/v1/quotes/pdf", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var doc Document
		require.NoError(t, json.Unmarshal(env.Data, &doc))
		require.Equal(t, "doc-1", doc.ID)
		require.Equal(t, TemplateDetailed, doc.Template)

		rec, env = post(t, router, "/api/v1/quotes/pdf", `{"quote_calculation":`+string(calcEnv.Data)+`,"template_type":"fancy"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, CodeValidation, env.Code)

		rec, env = post(t, router, "/api/v1/quotes/pdf", `{"template_type":"standard"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, CodeValidation, env.Code)
	})

	t.Run("calculate and pdf", func(t *testing.T) {
		body := `{"customer_id":"c-contractor","items":[{"variant_id":"V","material_id":"plywood","quantity":1}],"template_type":"compact"}`
		rec, env := post(t, router, "/api/v1/quotes/calculate-and-pdf", body)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Calculation Calculation `json:"calculation"`
			PDF         *Document   `json:"pdf"`
			RenderError *struct {
				Code string `json:"code"`
			} `json:"render_error"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		require.NotNil(t, resp.PDF)
		require.Nil(t, resp.RenderError)

		f.renderer.err = errBoom
		defer func() { f.renderer.err = nil }()
		rec, env = post(t, router, "/api/v1/quotes/calculate-and-pdf", body)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, env.Success)
		require.NotEmpty(t, env.Message)
		resp.PDF, resp.RenderError = nil, nil
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		require.Nil(t, resp.PDF)
		require.NotNil(t, resp.RenderError)
		require.Equal(t, CodeRenderFailed, resp.RenderError.Code)
		require.Equal(t, "45.00", resp.Calculation.Subtotal.StringFixed(2))
	})

	t.Run("body too large", func(t *testing.T) {
		limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, 16)
			router.ServeHTTP(w, r)
		})
		rec, env := post(t, limited, "/api/v1/quotes/calculate", contractorBody)
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		require.Equal(t, "PAYLOAD_TOO_LARGE", env.Code)
	})
}
