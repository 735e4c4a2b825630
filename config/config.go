package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds harvester configuration.
type Config struct {
	Page        PageConfig      `mapstructure:"page"`
	Discovery   DiscoveryConfig `mapstructure:"discovery"`
	Fetch       FetchConfig     `mapstructure:"fetch"`
	Download    DownloadConfig  `mapstructure:"download"`
	Archive     ArchiveConfig   `mapstructure:"archive"`
	Server      ServerConfig    `mapstructure:"server"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	UserAgent   string          `mapstructure:"user_agent"`
	MetricsAddr string          `mapstructure:"metrics_addr"`
	Verbose     bool            `mapstructure:"verbose"`
}

// PageConfig describes where the host page snapshot comes from.
type PageConfig struct {
	URL           string        `mapstructure:"url"`
	Source        string        `mapstructure:"source"` // file, http, or browser
	HTMLPath      string        `mapstructure:"html_path"`
	StatePath     string        `mapstructure:"state_path"`
	ControlURL    string        `mapstructure:"control_url"`
	Headless      bool          `mapstructure:"headless"`
	Stealth       bool          `mapstructure:"stealth"`
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`

	// Session storage keys read from the page.
	FilterStateKey   string `mapstructure:"filter_state_key"`
	GroupLabelKey    string `mapstructure:"group_label_key"`
	SubGroupLabelKey string `mapstructure:"sub_group_label_key"`

	// Globals are JavaScript expressions captured as JSON from a live page.
	Globals []string `mapstructure:"globals"`
}

// DiscoveryConfig drives the identifier discovery strategies.
type DiscoveryConfig struct {
	SeedParams          []string `mapstructure:"seed_params"`
	SeedPathPatterns    []string `mapstructure:"seed_path_patterns"`
	BreadcrumbSelector  string   `mapstructure:"breadcrumb_selector"`
	SeedTextPatterns    []string `mapstructure:"seed_text_patterns"`
	ListBySeedEndpoints []string `mapstructure:"list_by_seed_endpoints"`
	EmbeddedPatterns    []string `mapstructure:"embedded_patterns"`
	GlobalIDPaths       []string `mapstructure:"global_id_paths"`
	SearchEndpoints     []string `mapstructure:"search_endpoints"`
	SearchPageSize      int      `mapstructure:"search_page_size"`
	IDPaths             []string `mapstructure:"id_paths"`
}

// PathGroup maps a display name onto candidate JSON paths.
type PathGroup struct {
	Name  string   `mapstructure:"name"`
	Paths []string `mapstructure:"paths"`
}

// FetchConfig drives per-identifier record retrieval.
type FetchConfig struct {
	DetailEndpoints    []string    `mapstructure:"detail_endpoints"`
	AuxiliaryEndpoints []string    `mapstructure:"auxiliary_endpoints"`
	AuxiliaryURLPaths  []string    `mapstructure:"auxiliary_url_paths"`
	TitlePaths         []string    `mapstructure:"title_paths"`
	DetailGroups       []PathGroup `mapstructure:"detail_groups"`
	AssetPaths         []PathGroup `mapstructure:"asset_paths"`
	StripKeys          []string    `mapstructure:"strip_keys"`
	MaxRetries         int         `mapstructure:"max_retries"`
	CacheSize          int         `mapstructure:"cache_size"`

	// DOM fallback selectors.
	ScopeSelectors     []string `mapstructure:"scope_selectors"`
	TitleSelector      string   `mapstructure:"title_selector"`
	SpecSelector       string   `mapstructure:"spec_selector"`
	SpecLabelSelector  string   `mapstructure:"spec_label_selector"`
	SpecValueSelector  string   `mapstructure:"spec_value_selector"`
	ImageSelector      string   `mapstructure:"image_selector"`
	FileLinkSelector   string   `mapstructure:"file_link_selector"`
	PlaceholderMarker  string   `mapstructure:"placeholder_marker"`
	DOMGroupName       string   `mapstructure:"dom_group_name"`
}

// DownloadConfig paces and bounds asset downloads.
type DownloadConfig struct {
	Delay           time.Duration `mapstructure:"delay"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `mapstructure:"retry_backoff_max"`
	MaxAssetBytes   int           `mapstructure:"max_asset_bytes"`
}

// ArchiveConfig controls the produced archive.
type ArchiveConfig struct {
	OutputDir            string `mapstructure:"output_dir"`
	SheetFormat          string `mapstructure:"sheet_format"` // xlsx, csv, or dual
	DefaultGroupLabel    string `mapstructure:"default_group_label"`
	DefaultSubGroupLabel string `mapstructure:"default_sub_group_label"`
}

// ServerConfig controls the HTTP control surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"`
}

// DefaultConfig returns defaults matching the endpoints observed on the target site.
func DefaultConfig() *Config {
	return &Config{
		Page: PageConfig{
			Source:           "http",
			Headless:         true,
			SettleTimeout:    10 * time.Second,
			FilterStateKey:   "filterState",
			GroupLabelKey:    "categoryName",
			SubGroupLabelKey: "seriesName",
			Globals:          []string{"window.modelIds", "window.models", "window.__INITIAL_STATE__"},
		},
		Discovery: DiscoveryConfig{
			SeedParams:         []string{"id", "modelId", "setId"},
			SeedPathPatterns:   []string{`/part/detail/([^/?#]+)`, `/models?/([^/?#]+)$`},
			BreadcrumbSelector: ".breadcrumb a, .el-breadcrumb__item",
			SeedTextPatterns:   []string{`(?:型号|Model)\s*[:：]\s*([A-Za-z0-9._-]+)`},
			ListBySeedEndpoints: []string{
				"/api/model/siblings?seed={seed}",
				"/api/models?seed={seed}",
			},
			EmbeddedPatterns: []string{
				`["']modelId["']\s*:\s*["']([^"']+)["']`,
				`data-model-id=["']([^"']+)["']`,
			},
			GlobalIDPaths:   []string{"@this", "#.id", "modelIds", "models.#.id"},
			SearchEndpoints: []string{"/api/search/list"},
			SearchPageSize:  500,
			IDPaths:         []string{"data.#.id", "data.list.#.id", "data.records.#.id", "#.id", "ids", "data.ids"},
		},
		Fetch: FetchConfig{
			DetailEndpoints: []string{
				"/api/model/{id}",
				"/api/models/{id}",
				"/model/{id}",
				"/models/{id}",
				"/api/product/{id}",
				"/product/{id}",
			},
			AuxiliaryEndpoints: []string{"/api/model/{id}/pdf"},
			AuxiliaryURLPaths:  []string{"data.url", "url", "data"},
			TitlePaths:         []string{"title", "name", "prodName", "modelName"},
			DetailGroups: []PathGroup{
				{Name: "wheel attributes", Paths: []string{"wheelAttrs", "wheel"}},
				{Name: "bracket attributes", Paths: []string{"bracketAttrs", "bracket"}},
				{Name: "specifications", Paths: []string{"specs", "specifications", "params"}},
			},
			AssetPaths: []PathGroup{
				{Name: "cad", Paths: []string{"cadUrl", "cad", "cadFile"}},
				{Name: "threeD", Paths: []string{"modelUrl", "model3d", "threeD", "models.0", "modelFiles.0", "files.0"}},
				{Name: "primaryImage", Paths: []string{"image", "imageUrl", "images.0", "imageUrls.0", "pics.0"}},
				{Name: "mountImage", Paths: []string{"mountImage", "installImage", "images.1"}},
				{Name: "pdf", Paths: []string{"pdfUrl", "pdf"}},
			},
			StripKeys:         []string{"token", "password", "createdBy", "updatedBy"},
			MaxRetries:        0,
			CacheSize:         256,
			ScopeSelectors:    []string{"[data-id='{id}']", "[data-model-id='{id}']", "#model-{id}"},
			TitleSelector:     "h1, h2, .title, .product-title",
			SpecSelector:      ".spec, .specification, .parameter",
			SpecLabelSelector: ".label, .key, th",
			SpecValueSelector: ".value, .val, td:last-child",
			ImageSelector:     "img[src*='product'], img[src*='model'], img[data-src*='product'], .product-image img",
			FileLinkSelector:  "a[href*='.stp'], a[href*='.step'], a[href*='.igs'], a[href*='.iges'], a[href*='.dwg'], a[href*='.dxf'], a[href*='.zip'], a[href*='.stl'], a[href*='.pdf']",
			PlaceholderMarker: "placeholder",
			DOMGroupName:      "specifications",
		},
		Download: DownloadConfig{
			Delay:           time.Second,
			MaxRetries:      0,
			RetryBackoff:    500 * time.Millisecond,
			RetryBackoffMax: 5 * time.Second,
			MaxAssetBytes:   200 << 20,
		},
		Archive: ArchiveConfig{
			OutputDir:            "output",
			SheetFormat:          "xlsx",
			DefaultGroupLabel:    "models",
			DefaultSubGroupLabel: "all",
		},
		Server: ServerConfig{
			Addr: ":8080",
			Mode: "release",
		},
		Timeout:   30 * time.Second,
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	switch c.Page.Source {
	case "file":
		if c.Page.HTMLPath == "" {
			return fmt.Errorf("page html path cannot be empty for file source")
		}
	case "http", "browser":
		// A running browser is attached to by matching this URL against its tabs.
		if c.Page.URL == "" {
			return fmt.Errorf("page URL cannot be empty for %s source", c.Page.Source)
		}
	default:
		return fmt.Errorf("page source must be file, http, or browser")
	}

	if c.Page.URL != "" {
		parsedURL, err := url.Parse(c.Page.URL)
		if err != nil {
			return fmt.Errorf("invalid page URL: %w", err)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("page URL must include a host")
		}
	}

	if len(c.Fetch.DetailEndpoints) == 0 {
		return fmt.Errorf("detail endpoints cannot be empty")
	}
	for _, tmpl := range c.Fetch.DetailEndpoints {
		if !strings.Contains(tmpl, "{id}") {
			return fmt.Errorf("detail endpoint %q must contain {id}", tmpl)
		}
	}
	for _, tmpl := range c.Discovery.ListBySeedEndpoints {
		if !strings.Contains(tmpl, "{seed}") {
			return fmt.Errorf("list-by-seed endpoint %q must contain {seed}", tmpl)
		}
	}
	if c.Discovery.SearchPageSize <= 0 {
		return fmt.Errorf("search page size must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch max retries cannot be negative")
	}
	if c.Fetch.CacheSize < 0 {
		return fmt.Errorf("fetch cache size cannot be negative")
	}
	if c.Download.Delay < 0 {
		return fmt.Errorf("download delay cannot be negative")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download max retries cannot be negative")
	}
	if c.Download.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.Download.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.Download.RetryBackoffMax > 0 && c.Download.RetryBackoff > c.Download.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.Download.RetryBackoff, c.Download.RetryBackoffMax)
	}
	if c.Download.MaxAssetBytes < 0 {
		return fmt.Errorf("max asset bytes cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Archive.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	switch c.Archive.SheetFormat {
	case "xlsx", "csv", "dual":
	default:
		return fmt.Errorf("sheet format must be xlsx, csv, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
