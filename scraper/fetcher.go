package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/page"
	"github.com/aluiziolira/go-harvest-models/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Fetcher resolves one identifier into a record: detail endpoints first, then
// the page markup, then a best-effort auxiliary document lookup.
type Fetcher struct {
	cfg     config.FetchConfig
	client  *APIClient
	dom     *parser.DOMExtractor
	cache   *lru.Cache[recordKey, *models.Record]
	metrics *Metrics
}

// recordKey scopes cached records to the page they were fetched for.
type recordKey struct {
	page string
	id   models.Identifier
}

// NewFetcher builds a fetcher with an LRU cache of Fetch.CacheSize records.
// Only API records are cached, keyed by page fingerprint and identifier.
func NewFetcher(cfg *config.Config, client *APIClient, metrics *Metrics) (*Fetcher, error) {
	dom, err := parser.NewDOMExtractor(cfg.Fetch)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		cfg:     cfg.Fetch,
		client:  client,
		dom:     dom,
		metrics: metrics,
	}
	if cfg.Fetch.CacheSize > 0 {
		cache, err := lru.New[recordKey, *models.Record](cfg.Fetch.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create record cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch returns nil without error when no data of any kind exists for id.
// Only context cancellation is reported as an error.
func (f *Fetcher) Fetch(ctx context.Context, snap *page.Snapshot, id models.Identifier) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := recordKey{page: snap.Fingerprint(), id: id}
	if f.cache != nil {
		if rec, ok := f.cache.Get(key); ok {
			f.metrics.IncRecord("cache")
			return rec, nil
		}
	}

	rec := f.fromAPI(ctx, snap, id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = f.fromDOM(snap, id)
	}
	if rec == nil {
		slog.Warn("no data for model", slog.String("id", string(id)))
		f.metrics.IncSkipped()
		return nil, nil
	}

	if _, ok := rec.AssetURL(models.RolePDF); !ok {
		if ref := f.auxiliary(ctx, snap, id); ref != "" {
			rec.AssetRefs[models.RolePDF] = ref
		}
	}

	if err := parser.ValidateRecord(rec); err != nil {
		slog.Warn("discarding invalid record",
			slog.String("id", string(id)),
			slog.Any("error", err),
		)
		f.metrics.IncSkipped()
		return nil, nil
	}

	f.metrics.IncRecord(rec.Source)
	if f.cache != nil && rec.Source == "api" {
		f.cache.Add(key, rec)
	}
	return rec, nil
}

func (f *Fetcher) fromAPI(ctx context.Context, snap *page.Snapshot, id models.Identifier) *models.Record {
	for _, tmpl := range f.cfg.DetailEndpoints {
		endpoint, err := expandTemplate(snap.Origin(), tmpl, map[string]string{"id": string(id)})
		if err != nil {
			slog.Debug("skipping detail endpoint", slog.String("template", tmpl), slog.Any("error", err))
			continue
		}
		resp, err := f.client.Get(ctx, "fetch", endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		rec, err := parser.RecordFromJSON(id, resp.Body, f.cfg, snap.Resolve)
		if err != nil {
			f.metrics.IncError(errorTypeLabel(ErrBadPayload{Err: err}))
			slog.Debug("detail endpoint returned unusable body",
				slog.String("url", endpoint),
				slog.Any("error", err),
			)
			continue
		}
		slog.Debug("record fetched from api",
			slog.String("id", string(id)),
			slog.String("url", endpoint),
		)
		return rec
	}
	return nil
}

func (f *Fetcher) fromDOM(snap *page.Snapshot, id models.Identifier) *models.Record {
	doc, err := snap.Document()
	if err != nil {
		slog.Debug("page markup unavailable", slog.Any("error", err))
		return nil
	}
	return f.dom.Extract(doc, id, snap.Resolve)
}

// auxiliary asks the per-identifier document endpoints for a PDF. A PDF
// response makes the endpoint itself the reference; JSON is searched for a URL.
func (f *Fetcher) auxiliary(ctx context.Context, snap *page.Snapshot, id models.Identifier) string {
	for _, tmpl := range f.cfg.AuxiliaryEndpoints {
		endpoint, err := expandTemplate(snap.Origin(), tmpl, map[string]string{"id": string(id)})
		if err != nil {
			continue
		}
		resp, err := f.client.Get(ctx, "auxiliary", endpoint)
		if err != nil {
			continue
		}

		mediaType, _, _ := mime.ParseMediaType(resp.ContentType)
		if strings.EqualFold(mediaType, "application/pdf") {
			return endpoint
		}

		root, err := parser.Unwrap(resp.Body)
		if err != nil {
			continue
		}
		if ref := parser.FirstString(root, f.cfg.AuxiliaryURLPaths); ref != "" {
			if abs, ok := snap.Resolve(ref); ok {
				return abs
			}
		}
	}
	return ""
}
