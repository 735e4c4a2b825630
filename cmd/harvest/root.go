package main

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	v       = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest product models from a catalogue page into a zip archive.",
	Long: `harvest discovers every model listed on a catalogue page, fetches each
model's details and downloadable assets, and bundles them into one archive
with per-model folders, a summary sheet and a manifest.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+config.DefaultFileName+")")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.String("page-url", "", "URL of the catalogue page")
	flags.String("source", defaults.Page.Source, "Page source: file, http, or browser")
	flags.String("html", "", "Saved page HTML (file source)")
	flags.String("state", "", "JSON sidecar with session storage and globals (file source)")
	flags.String("control-url", "", "DevTools websocket of a running browser (browser source)")
	flags.String("output-dir", defaults.Archive.OutputDir, "Directory the archive is written to")
	flags.String("format", defaults.Archive.SheetFormat, "Sheet format: xlsx, csv, or dual")
	flags.Duration("delay", defaults.Download.Delay, "Delay between requests")
	flags.Int("max-retries", defaults.Download.MaxRetries, "Retry attempts per asset")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")

	for key, name := range map[string]string{
		"verbose":              "verbose",
		"page.url":             "page-url",
		"page.source":          "source",
		"page.html_path":       "html",
		"page.state_path":      "state",
		"page.control_url":     "control-url",
		"archive.output_dir":   "output-dir",
		"archive.sheet_format": "format",
		"download.delay":       "delay",
		"download.max_retries": "max-retries",
		"timeout":              "timeout",
		"metrics_addr":         "metrics-addr",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(runCmd, discoverCmd, serveCmd)
}

// loadConfig resolves file, environment and flags, installs the logger and
// validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
