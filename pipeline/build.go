package pipeline

import (
	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/page"
	"github.com/aluiziolira/go-harvest-models/scraper"
)

// Components are the network-facing collaborators built from a config.
type Components struct {
	Source     page.Source
	Client     *scraper.APIClient
	Discoverer *scraper.Discoverer
	Fetcher    *scraper.Fetcher
	Downloader *scraper.Downloader
}

// NewComponents builds the page source, API client, discoverer, fetcher and
// downloader that a real run uses.
func NewComponents(cfg *config.Config, metrics *scraper.Metrics) (*Components, error) {
	source, err := page.NewSource(cfg)
	if err != nil {
		return nil, err
	}
	client := scraper.NewAPIClient(cfg, metrics)
	discoverer, err := scraper.NewDiscoverer(cfg, client, metrics)
	if err != nil {
		return nil, err
	}
	fetcher, err := scraper.NewFetcher(cfg, client, metrics)
	if err != nil {
		return nil, err
	}
	return &Components{
		Source:     source,
		Client:     client,
		Discoverer: discoverer,
		Fetcher:    fetcher,
		Downloader: scraper.NewDownloader(cfg, metrics),
	}, nil
}

// Deps returns pipeline dependencies wired to these components.
func (c *Components) Deps(confirmer Confirmer, observer Observer) Deps {
	return Deps{
		Source:     c.Source,
		Discoverer: c.Discoverer,
		Fetcher:    c.Fetcher,
		Downloader: c.Downloader,
		Confirmer:  confirmer,
		Observer:   observer,
	}
}
