package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-harvest-models/config"
	"github.com/aluiziolira/go-harvest-models/pipeline"
	"github.com/aluiziolira/go-harvest-models/scraper"
	"github.com/aluiziolira/go-harvest-models/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		metrics := scraper.NewMetrics()
		components, err := pipeline.NewComponents(cfg, metrics)
		if err != nil {
			return fmt.Errorf("build components: %w", err)
		}

		gate := server.NewGate()
		p, err := pipeline.New(cfg, components.Deps(gate, logProgress()))
		if err != nil {
			return err
		}
		ctrl := server.NewController(ctx, p, gate)

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: server.NewRouter(cfg, ctrl, metrics),
		}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()
		slog.Info("control API listening", slog.String("addr", cfg.Server.Addr))

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("shutdown signal received, stopping active run")
		ctrl.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", config.DefaultConfig().Server.Addr, "Listen address")
	if err := v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
}
