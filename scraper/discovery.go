package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/page"
	"github.com/aluiziolira/go-harvest-models/parser"
	"github.com/tidwall/gjson"
)

// Strategy is one independent way of finding identifiers on a page. An empty
// result or an error both mean "try the next strategy".
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, snap *page.Snapshot) ([]models.Identifier, error)
}

// Discoverer tries strategies in priority order and stops at the first one
// that yields identifiers.
type Discoverer struct {
	strategies []Strategy
	metrics    *Metrics
}

// NewDiscoverer wires the default strategy chain: seed-and-expand, embedded
// data, session filter.
func NewDiscoverer(cfg *config.Config, client *APIClient, metrics *Metrics) (*Discoverer, error) {
	seed, err := NewSeedStrategy(cfg.Discovery, client)
	if err != nil {
		return nil, err
	}
	embedded, err := NewEmbeddedStrategy(cfg.Discovery, cfg.Page.Globals)
	if err != nil {
		return nil, err
	}
	filter := NewSessionFilterStrategy(cfg.Discovery, cfg.Page.FilterStateKey, client)
	return NewDiscovererWithStrategies(metrics, seed, embedded, filter), nil
}

// NewDiscovererWithStrategies uses the given chain as-is.
func NewDiscovererWithStrategies(metrics *Metrics, strategies ...Strategy) *Discoverer {
	return &Discoverer{strategies: strategies, metrics: metrics}
}

// Discover runs the chain against snap. It returns ErrNoIdentifiers when every
// strategy came back empty.
func (d *Discoverer) Discover(ctx context.Context, snap *page.Snapshot) (*models.DiscoveryResult, error) {
	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ids, err := s.Attempt(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("discovery strategy failed",
				slog.String("strategy", s.Name()),
				slog.Any("error", err),
			)
			continue
		}

		ids = dedupe(ids)
		if len(ids) == 0 {
			slog.Debug("discovery strategy found nothing", slog.String("strategy", s.Name()))
			continue
		}

		d.metrics.IncStrategy(s.Name())
		slog.Info("models discovered",
			slog.String("strategy", s.Name()),
			slog.Int("count", len(ids)),
		)
		return &models.DiscoveryResult{IDs: ids, Strategy: s.Name()}, nil
	}
	return nil, ErrNoIdentifiers
}

func dedupe(ids []models.Identifier) []models.Identifier {
	seen := make(map[models.Identifier]struct{}, len(ids))
	out := make([]models.Identifier, 0, len(ids))
	for _, id := range ids {
		id = models.Identifier(strings.TrimSpace(string(id)))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %q needs a capture group", p)
		}
		out = append(out, re)
	}
	return out, nil
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				return s
			}
		}
	}
	return ""
}

func allMatches(patterns []*regexp.Regexp, text string) []models.Identifier {
	var ids []models.Identifier
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			ids = append(ids, models.Identifier(m[1]))
		}
	}
	return ids
}

// idsFromBody reads identifiers from a list response.
func idsFromBody(body []byte, paths []string) ([]models.Identifier, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrBadPayload{Err: parser.ErrNotJSON}
	}
	return parser.IDsAt(gjson.ParseBytes(body), paths), nil
}

// SeedStrategy takes one identifier already visible on the page and asks a
// list endpoint for its siblings.
type SeedStrategy struct {
	cfg          config.DiscoveryConfig
	client       *APIClient
	pathPatterns []*regexp.Regexp
	textPatterns []*regexp.Regexp
}

// NewSeedStrategy compiles the seed patterns.
func NewSeedStrategy(cfg config.DiscoveryConfig, client *APIClient) (*SeedStrategy, error) {
	pathPatterns, err := compileAll(cfg.SeedPathPatterns)
	if err != nil {
		return nil, err
	}
	textPatterns, err := compileAll(cfg.SeedTextPatterns)
	if err != nil {
		return nil, err
	}
	return &SeedStrategy{
		cfg:          cfg,
		client:       client,
		pathPatterns: pathPatterns,
		textPatterns: textPatterns,
	}, nil
}

func (s *SeedStrategy) Name() string { return "seed" }

func (s *SeedStrategy) Attempt(ctx context.Context, snap *page.Snapshot) ([]models.Identifier, error) {
	seed := s.Seed(snap)
	if seed == "" {
		return nil, nil
	}
	slog.Debug("discovery seed found", slog.String("seed", seed))

	var lastErr error
	for _, tmpl := range s.cfg.ListBySeedEndpoints {
		endpoint, err := expandTemplate(snap.Origin(), tmpl, map[string]string{"seed": seed})
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := s.client.Get(ctx, "discovery", endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		ids, err := idsFromBody(resp.Body, s.cfg.IDPaths)
		if err != nil {
			lastErr = err
			continue
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, lastErr
}

// Seed returns the first identifier visible on the page: URL parameter, URL
// path, breadcrumb trail, then page text.
func (s *SeedStrategy) Seed(snap *page.Snapshot) string {
	query := snap.Query()
	for _, key := range s.cfg.SeedParams {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}

	if seed := firstMatch(s.pathPatterns, snap.Path()); seed != "" {
		return seed
	}

	doc, err := snap.Document()
	if err != nil {
		return ""
	}

	if s.cfg.BreadcrumbSelector != "" {
		items := doc.Find(s.cfg.BreadcrumbSelector)
		for i := items.Length() - 1; i >= 0; i-- {
			item := items.Eq(i)
			if id, ok := item.Attr("data-id"); ok && strings.TrimSpace(id) != "" {
				return strings.TrimSpace(id)
			}
			if seed := firstMatch(s.textPatterns, item.Text()); seed != "" {
				return seed
			}
		}
	}

	return firstMatch(s.textPatterns, parser.NormalizeText(doc.Find("body").Text()))
}

// EmbeddedStrategy scans inline scripts, markup and captured globals for an
// explicit identifier list.
type EmbeddedStrategy struct {
	patterns    []*regexp.Regexp
	globals     []string
	globalPaths []string
}

// NewEmbeddedStrategy compiles the embedded-data patterns. globals fixes the
// order in which captured global expressions are read.
func NewEmbeddedStrategy(cfg config.DiscoveryConfig, globals []string) (*EmbeddedStrategy, error) {
	patterns, err := compileAll(cfg.EmbeddedPatterns)
	if err != nil {
		return nil, err
	}
	return &EmbeddedStrategy{
		patterns:    patterns,
		globals:     globals,
		globalPaths: cfg.GlobalIDPaths,
	}, nil
}

func (s *EmbeddedStrategy) Name() string { return "embedded" }

func (s *EmbeddedStrategy) Attempt(ctx context.Context, snap *page.Snapshot) ([]models.Identifier, error) {
	var ids []models.Identifier

	if doc, err := snap.Document(); err == nil {
		doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
			if _, external := sel.Attr("src"); external {
				return
			}
			ids = append(ids, allMatches(s.patterns, sel.Text())...)
		})
	}
	ids = append(ids, allMatches(s.patterns, snap.HTML)...)

	for _, expr := range s.globals {
		raw, ok := snap.Globals[expr]
		if !ok || !gjson.Valid(raw) {
			continue
		}
		ids = append(ids, parser.IDsAt(gjson.Parse(raw), s.globalPaths)...)
	}
	return ids, ctx.Err()
}

// SessionFilterStrategy turns a filter object kept in session storage into a
// search request.
type SessionFilterStrategy struct {
	cfg    config.DiscoveryConfig
	key    string
	client *APIClient
}

// NewSessionFilterStrategy reads the filter object stored under key.
func NewSessionFilterStrategy(cfg config.DiscoveryConfig, key string, client *APIClient) *SessionFilterStrategy {
	return &SessionFilterStrategy{cfg: cfg, key: key, client: client}
}

func (s *SessionFilterStrategy) Name() string { return "session_filter" }

func (s *SessionFilterStrategy) Attempt(ctx context.Context, snap *page.Snapshot) ([]models.Identifier, error) {
	payload := s.Payload(snap)
	if payload == nil {
		return nil, nil
	}

	var lastErr error
	for _, tmpl := range s.cfg.SearchEndpoints {
		endpoint, err := expandTemplate(snap.Origin(), tmpl, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := s.client.PostJSON(ctx, "discovery", endpoint, payload)
		if err != nil {
			lastErr = err
			continue
		}
		ids, err := idsFromBody(resp.Body, s.cfg.IDPaths)
		if err != nil {
			lastErr = err
			continue
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, lastErr
}

// Payload builds the search body from the stored filter, or nil when there is
// no usable filter.
func (s *SessionFilterStrategy) Payload(snap *page.Snapshot) map[string]any {
	raw, ok := snap.Session(s.key)
	if !ok || !gjson.Valid(raw) {
		return nil
	}
	state := gjson.Parse(raw)
	if !state.IsObject() {
		return nil
	}

	payload := map[string]any{}
	state.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.String:
			if v := strings.TrimSpace(value.String()); v != "" {
				payload[key.String()] = v
			}
		case gjson.Number, gjson.True, gjson.False:
			payload[key.String()] = value.Value()
		}
		return true
	})
	if len(payload) == 0 {
		return nil
	}
	if _, ok := payload["pageSize"]; !ok {
		payload["pageSize"] = s.cfg.SearchPageSize
	}
	return payload
}
