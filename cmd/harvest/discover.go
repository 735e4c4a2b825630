package main

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-harvest-models/pipeline"
	"github.com/aluiziolira/go-harvest-models/scraper"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Print the model identifiers found on the page",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		components, err := pipeline.NewComponents(cfg, scraper.NewMetrics())
		if err != nil {
			return fmt.Errorf("build components: %w", err)
		}

		snap, err := components.Source.Capture(cmd.Context())
		if err != nil {
			return fmt.Errorf("capture page: %w", err)
		}
		found, err := components.Discoverer.Discover(cmd.Context(), snap)
		if err != nil {
			return err
		}

		slog.Info("discovery finished",
			slog.String("strategy", found.Strategy),
			slog.Int("models", len(found.IDs)),
		)
		for _, id := range found.IDs {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}
