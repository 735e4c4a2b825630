package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-harvest-models/models"
	"github.com/aluiziolira/go-harvest-models/pipeline"
	"github.com/aluiziolira/go-harvest-models/scraper"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover, confirm and archive every model on the page",
	RunE:  runHarvest,
}

func init() {
	runCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	assumeYes, _ := cmd.Flags().GetBool("yes")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := scraper.NewMetrics()
	defer startMetricsServer(cfg.MetricsAddr, metrics)()

	components, err := pipeline.NewComponents(cfg, metrics)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}

	out := cmd.OutOrStdout()
	confirmer := pipeline.ConfirmFunc(func(ctx context.Context, found *models.DiscoveryResult) (bool, error) {
		if assumeYes {
			return true, nil
		}
		return promptConfirm(ctx, cmd.InOrStdin(), out, found)
	})

	p, err := pipeline.New(cfg, components.Deps(confirmer, logProgress()))
	if err != nil {
		return err
	}

	slog.Info("starting harvest",
		slog.String("page", cfg.Page.URL),
		slog.String("source", cfg.Page.Source),
	)
	start := time.Now()
	result, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	path, err := pipeline.SaveArchive(cfg.Archive.OutputDir, result.Filename, result.Archive)
	if err != nil {
		return err
	}
	printSummary(out, result, path, time.Since(start))
	return nil
}

// promptConfirm asks on w and reads one answer line from r. Only "y" or
// "yes" confirms.
func promptConfirm(ctx context.Context, r io.Reader, w io.Writer, found *models.DiscoveryResult) (bool, error) {
	fmt.Fprintf(w, "Found %d models (via %s). Download all? [y/N]: ", len(found.IDs), found.Strategy)

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(r).ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// logProgress logs phase changes at info and every update at debug.
func logProgress() pipeline.Observer {
	var last models.Phase
	return func(st models.PipelineState) {
		if st.Phase != last {
			slog.Info("phase", slog.String("phase", string(st.Phase)), slog.String("status", st.StatusMessage))
			last = st.Phase
			return
		}
		slog.Debug("progress",
			slog.Int("current", st.CurrentIndex),
			slog.Int("total", st.TotalCount),
			slog.Int("percent", st.Progress),
			slog.String("status", st.StatusMessage),
		)
	}
}

func printSummary(w io.Writer, result *models.RunResult, path string, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Harvest complete")
	fmt.Fprintf(w, "  Models:         %d\n", len(result.Records))
	fmt.Fprintf(w, "  Skipped:        %d\n", len(result.Skipped))
	if len(result.Skipped) > 0 {
		fmt.Fprintf(w, "  Skipped IDs:    %v\n", result.Skipped)
	}
	fmt.Fprintf(w, "  Asset failures: %d\n", result.AssetFailures)
	fmt.Fprintf(w, "  Discovery:      %s\n", result.Strategy)
	fmt.Fprintf(w, "  Duration:       %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Archive:        %s\n", path)
	fmt.Fprintln(w, separator)
}
