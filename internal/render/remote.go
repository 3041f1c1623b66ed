package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/noah-isme/cabinet-quote/internal/quote"
	"github.com/noah-isme/cabinet-quote/internal/resilience"
)

// maxRemoteDocument caps the size accepted from a remote renderer.
const maxRemoteDocument = 32 << 20

type remotePayload struct {
	Calculation              quote.Calculation `json:"quote_calculation"`
	Breakdown                quote.Breakdown   `json:"breakdown"`
	TemplateType             quote.Template    `json:"template_type"`
	IncludeTerms             bool              `json:"include_terms"`
	IncludeInstallationGuide bool              `json:"include_installation_guide"`
	Watermark                string            `json:"watermark,omitempty"`
}

// RemoteRenderer delegates PDF generation to an HTTP service that answers
// with application/pdf and an optional X-Page-Count header.
type RemoteRenderer struct {
	HTTP resilience.HTTPClient
	URL  string
}

// Build implements Builder.
func (r RemoteRenderer) Build(ctx context.Context, req quote.RenderRequest) ([]byte, int, error) {
	body, err := json.Marshal(remotePayload{
		Calculation:              req.Calculation,
		Breakdown:                req.Breakdown,
		TemplateType:             req.Options.Template,
		IncludeTerms:             req.Options.IncludeTerms,
		IncludeInstallationGuide: req.Options.IncludeInstallationGuide,
		Watermark:                req.Options.Watermark,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("render: encode remote request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("render: build remote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/pdf")

	resp, err := r.HTTP.Do(ctx, httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("render: remote renderer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("render: remote renderer responded %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteDocument+1))
	if err != nil {
		return nil, 0, fmt.Errorf("render: read remote document: %w", err)
	}
	if len(data) > maxRemoteDocument {
		return nil, 0, fmt.Errorf("render: remote document exceeds %d bytes", maxRemoteDocument)
	}
	pages, err := strconv.Atoi(resp.Header.Get("X-Page-Count"))
	if err != nil || pages <= 0 {
		pages = countPages(data)
	}
	return data, pages, nil
}
