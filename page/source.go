package page

import (
	"fmt"

	"github.com/aluiziolira/go-harvest-models/config"
)

// NewSource picks the snapshot source named by cfg.Page.Source.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Page.Source {
	case "file":
		return FileSource{HTMLPath: cfg.Page.HTMLPath, StatePath: cfg.Page.StatePath, URL: cfg.Page.URL}, nil
	case "http":
		return NewHTTPSource(cfg.Page.URL, cfg.UserAgent), nil
	case "browser":
		return BrowserSource{
			URL:           cfg.Page.URL,
			ControlURL:    cfg.Page.ControlURL,
			Headless:      cfg.Page.Headless,
			Stealth:       cfg.Page.Stealth,
			SettleTimeout: cfg.Page.SettleTimeout,
			Globals:       cfg.Page.Globals,
		}, nil
	default:
		return nil, fmt.Errorf("unknown page source %q", cfg.Page.Source)
	}
}
