package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Downloader fetches a record's assets one at a time, paced by a shared
// limiter so that assets and records never go out faster than Download.Delay.
type Downloader struct {
	cfg       config.DownloadConfig
	collector *colly.Collector
	limiter   *rate.Limiter
	metrics   *Metrics
}

// NewDownloader builds a synchronous collector for binary assets.
func NewDownloader(cfg *config.Config, metrics *Metrics) *Downloader {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	// One byte over the cap lets fetch tell a truncated body from an exact fit.
	if cfg.Download.MaxAssetBytes > 0 {
		collector.MaxBodySize = cfg.Download.MaxAssetBytes + 1
	} else {
		collector.MaxBodySize = 0
	}

	limit := rate.Inf
	if cfg.Download.Delay > 0 {
		limit = rate.Every(cfg.Download.Delay)
	}

	return &Downloader{
		cfg:       cfg.Download,
		collector: collector,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   metrics,
	}
}

// WithTransport swaps the collector transport (tests use httpmock).
func (d *Downloader) WithTransport(rt http.RoundTripper) {
	d.collector.WithTransport(rt)
}

// Pace blocks until the next request slot or until ctx is done.
func (d *Downloader) Pace(ctx context.Context) error {
	return d.limiter.Wait(ctx)
}

// Download fetches every asset rec offers, in canonical role order, and
// hands each success to sink. It returns the number of assets omitted. An
// error from sink stops the record; download failures never do.
func (d *Downloader) Download(ctx context.Context, rec *models.Record, sink func(models.AssetBlob) error) (int, error) {
	failures := 0
	for _, role := range rec.Roles() {
		assetURL, _ := rec.AssetURL(role)

		if err := d.Pace(ctx); err != nil {
			return failures, err
		}

		blob, err := d.fetchWithRetry(ctx, assetURL)
		if err != nil {
			if ctx.Err() != nil {
				return failures, ctx.Err()
			}
			failures++
			d.metrics.IncAssetFailure(string(role))
			slog.Warn("asset download failed",
				slog.String("id", string(rec.ID)),
				slog.String("role", string(role)),
				slog.String("url", assetURL),
				slog.String("category", errorTypeLabel(err)),
				slog.Any("error", err),
			)
			continue
		}

		blob.Role = role
		d.metrics.IncAsset(string(role))
		if err := sink(*blob); err != nil {
			return failures, fmt.Errorf("store %s asset for %s: %w", role, rec.ID, err)
		}
	}
	return failures, nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, assetURL string) (*models.AssetBlob, error) {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d.metrics.IncRetries()
			if err := sleep(ctx, backoff(d.cfg, attempt)); err != nil {
				return nil, err
			}
		}
		blob, err := d.fetch(ctx, assetURL)
		if err == nil {
			return blob, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (d *Downloader) fetch(ctx context.Context, assetURL string) (*models.AssetBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := d.collector.Clone()

	var (
		blob     *models.AssetBlob
		status   int
		declared int64
		start    = time.Now()
	)
	c.OnResponse(func(r *colly.Response) {
		declared, _ = strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64)
		blob = &models.AssetBlob{
			URL:         r.Request.URL.String(),
			ContentType: r.Headers.Get("Content-Type"),
			Data:        r.Body,
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	d.metrics.IncRequest("download")
	err := c.Visit(assetURL)
	d.metrics.ObserveDuration(time.Since(start))

	if err != nil {
		classified := classifyError(err, status)
		d.metrics.IncError(errorTypeLabel(classified))
		return nil, classified
	}
	if blob == nil {
		return nil, ErrBadPayload{Err: fmt.Errorf("no response for %s", assetURL)}
	}
	if limit := d.cfg.MaxAssetBytes; limit > 0 && (len(blob.Data) > limit || declared > int64(limit)) {
		oversized := ErrBadPayload{Err: fmt.Errorf("asset %s exceeds %d bytes", assetURL, limit)}
		d.metrics.IncError(errorTypeLabel(oversized))
		return nil, oversized
	}
	return blob, nil
}
