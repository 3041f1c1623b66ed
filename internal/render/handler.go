package render

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/cabinet-quote/internal/common"
	"github.com/noah-isme/cabinet-quote/internal/quote"
)

// Handler serves stored documents.
type Handler struct {
	Store DocumentStore
}

// Download handles GET /quotes/pdf/{id}.
func (h Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		common.WriteError(w, quote.ToAppError(quote.ErrDocumentNotFound))
		return
	}
	doc, err := h.Store.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, quote.ToAppError(err))
		return
	}
	name := "quote.pdf"
	if doc.Reference != "" {
		name = doc.Reference + ".pdf"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Cache-Control", "private, max-age=0, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}
