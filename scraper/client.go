package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/hashicorp/go-retryablehttp"
)

// Response is a fully read API response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// APIClient issues the JSON calls made during discovery and fetch. Each
// candidate endpoint gets one attempt unless Fetch.MaxRetries says otherwise.
type APIClient struct {
	http      *retryablehttp.Client
	userAgent string
	metrics   *Metrics
}

// NewAPIClient builds a client from cfg.
func NewAPIClient(cfg *config.Config, metrics *Metrics) *APIClient {
	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	rc.RetryMax = cfg.Fetch.MaxRetries
	rc.RetryWaitMin = cfg.Download.RetryBackoff
	rc.RetryWaitMax = cfg.Download.RetryBackoffMax
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = cfg.Timeout

	return &APIClient{
		http:      rc,
		userAgent: cfg.UserAgent,
		metrics:   metrics,
	}
}

// WithTransport swaps the underlying transport (tests use httpmock).
func (c *APIClient) WithTransport(rt http.RoundTripper) {
	c.http.HTTPClient.Transport = rt
}

// Get fetches url and returns the body when the status is 2xx.
func (c *APIClient) Get(ctx context.Context, phase, url string) (*Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req, phase)
}

// PostJSON sends payload as a JSON body.
func (c *APIClient) PostJSON(ctx context.Context, phase, url string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, phase)
}

func (c *APIClient) do(req *retryablehttp.Request, phase string) (*Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	url := req.URL.String()
	start := time.Now()
	c.metrics.IncRequest(phase)

	resp, err := c.http.Do(req)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		classified := classifyError(err, 0)
		c.metrics.IncError(errorTypeLabel(classified))
		slog.Debug("api request failed",
			slog.String("phase", phase),
			slog.String("url", url),
			slog.Any("error", err),
		)
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrConnection{Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		classified := classifyError(nil, resp.StatusCode)
		c.metrics.IncError(errorTypeLabel(classified))
		slog.Debug("api non-success status",
			slog.String("phase", phase),
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
		)
		return nil, classified
	}

	return &Response{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
