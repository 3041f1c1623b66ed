package render

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/cabinet-quote/internal/quote"
)

// DefaultDocumentTTL bounds how long rendered documents stay downloadable.
const DefaultDocumentTTL = 24 * time.Hour

// Builder produces PDF bytes and a page count for a render request.
type Builder interface {
	Build(ctx context.Context, req quote.RenderRequest) ([]byte, int, error)
}

// StoringRenderer builds a document, stores it and returns where to fetch it.
type StoringRenderer struct {
	Builder Builder
	Store   DocumentStore
	// BaseURL prefixes download links; empty yields relative links.
	BaseURL string
	TTL     time.Duration
	NewID   func() string
	Now     func() time.Time
}

// Render implements quote.Renderer.
func (r StoringRenderer) Render(ctx context.Context, req quote.RenderRequest) (quote.Document, error) {
	if r.Builder == nil || r.Store == nil {
		return quote.Document{}, errors.New("render: builder and store are required")
	}
	data, pages, err := r.Builder.Build(ctx, req)
	if err != nil {
		return quote.Document{}, err
	}
	if len(data) == 0 {
		return quote.Document{}, errors.New("render: builder returned an empty document")
	}

	id := r.newID()
	doc := quote.Document{
		ID:          id,
		FileSize:    len(data),
		Pages:       pages,
		DownloadURL: DownloadURL(r.BaseURL, id),
		Template:    req.Options.Template,
		CreatedAt:   r.now().UTC(),
	}
	if doc.Template == "" {
		doc.Template = quote.TemplateStandard
	}
	stored := StoredDocument{Meta: doc, Reference: req.Calculation.Reference, Content: data}
	if err := r.Store.Put(ctx, stored, r.ttl()); err != nil {
		return quote.Document{}, err
	}
	return doc, nil
}

// DownloadURL builds the link a document is served from.
func DownloadURL(base, id string) string {
	path := "/api/v1/quotes/pdf/" + url.PathEscape(id)
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return base + path
}

func (r StoringRenderer) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r StoringRenderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r StoringRenderer) ttl() time.Duration {
	if r.TTL <= 0 {
		return DefaultDocumentTTL
	}
	return r.TTL
}
