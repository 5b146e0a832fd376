package main

import (
	"context"
	"log/slog"
	"os"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/flood-hazard-etl/internal/adapter/http"
	"github.com/couchcryptid/flood-hazard-etl/internal/config"
	"github.com/couchcryptid/flood-hazard-etl/internal/observability"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "floodctl",
		Short:         "Derive flood VD and hazard rasters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
	}
	root.AddCommand(
		newDeriveVDCmd(a),
		newDeriveHazardCmd(a),
		newZonalCmd(a),
		newCatalogCmd(a),
		newPurgeCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	a.metrics = observability.NewMetrics()
	a.clock = clockwork.NewRealClock()
	return nil
}

// fail logs err and hands it back for cobra's exit status.
func (a *app) fail(msg string, err error) error {
	a.logger.Error(msg, "error", err)
	return err
}

// serveMetrics starts the health/metrics server when METRICS_ADDR is set. The
// returned func shuts it down within the configured timeout and waits for it.
func (a *app) serveMetrics(ctx context.Context, ready sharedobs.ReadinessChecker) func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	srv := httpadapter.NewServer(a.cfg.MetricsAddr, ready, a.logger)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Run(ctx, a.cfg.ShutdownTimeout); err != nil {
			a.logger.Error("http server error", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// flushMetrics writes the textfile-collector snapshot when configured.
func (a *app) flushMetrics() {
	if a.cfg.MetricsTextfile == "" {
		return
	}
	if err := observability.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		a.logger.Warn("write metrics textfile failed", "path", a.cfg.MetricsTextfile, "error", err)
	}
}
