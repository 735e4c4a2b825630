package page

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// HTTPSource fetches the page over plain HTTP. Session storage and globals
// are unavailable, so only HTML-based strategies can succeed.
type HTTPSource struct {
	URL       string
	collector *colly.Collector
}

// NewHTTPSource builds a source with a synchronous collector.
func NewHTTPSource(pageURL, userAgent string) *HTTPSource {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	return &HTTPSource{URL: pageURL, collector: c}
}

// WithTransport swaps the collector transport (tests use httpmock).
func (h *HTTPSource) WithTransport(rt http.RoundTripper) {
	h.collector.WithTransport(rt)
}

// Capture downloads the page body.
func (h *HTTPSource) Capture(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snap *Snapshot
	c := h.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		snap = &Snapshot{
			URL:            r.Request.URL.String(),
			HTML:           string(r.Body),
			SessionStorage: map[string]string{},
			Globals:        map[string]string{},
		}
	})
	if err := c.Visit(h.URL); err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", h.URL, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("fetch page %s: empty response", h.URL)
	}
	return snap, nil
}
