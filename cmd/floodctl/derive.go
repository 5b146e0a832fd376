package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-hazard-etl/internal/adapter/gdal"
	"github.com/couchcryptid/flood-hazard-etl/internal/adapter/kafka"
	"github.com/couchcryptid/flood-hazard-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
	"github.com/couchcryptid/flood-hazard-etl/internal/pipeline"
	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

// storeCacheEntries bounds how many bands stay in memory between combinations.
const storeCacheEntries = 4

type stageFunc func(*pipeline.Pipeline, context.Context) (*pipeline.Report, error)

func newDeriveVDCmd(a *app) *cobra.Command {
	return newDeriveCmd(a, "derive-vd", "Multiply velocity by depth for every area and return period", (*pipeline.Pipeline).DeriveVD)
}

func newDeriveHazardCmd(a *app) *cobra.Command {
	return newDeriveCmd(a, "derive-hazard", "Classify every VD raster in the VD ledger into hazard classes", (*pipeline.Pipeline).DeriveHazard)
}

func newDeriveCmd(a *app, use, short string, stage stageFunc) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStage(cmd, force, stage)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild outputs that already exist")
	return cmd
}

// runStage wires a pipeline against the on-disk catalog and rasters and runs
// one stage. Only fatal stage errors fail the command; per-combination
// failures are part of the printed report.
func (a *app) runStage(cmd *cobra.Command, force bool, stage stageFunc) error {
	ctx := cmd.Context()

	cat, err := catalog.Load(a.cfg.CatalogPath)
	if err != nil {
		return a.fail("failed to load catalog", err)
	}

	deps := pipeline.Deps{
		Catalog: cat,
		Store:   raster.NewCachedStore(gdal.NewStore(a.cfg.ProjectDir, a.logger), storeCacheEntries),
		Logger:  a.logger,
		Metrics: a.metrics,
		Clock:   a.clock,
	}
	if a.cfg.PublishEnabled() {
		pub := kafka.NewPublisher(a.cfg, a.clock, a.logger)
		defer func() {
			if err := pub.Close(); err != nil {
				a.logger.Error("kafka publisher close error", "error", err)
			}
		}()
		deps.Publisher = pub
	}
	if a.cfg.RunHistoryPath != "" {
		hist, err := sqlite.Open(a.cfg.RunHistoryPath)
		if err != nil {
			return a.fail("failed to open run history", err)
		}
		defer hist.Close() //nolint:errcheck // closing after the run
		deps.History = hist
	}

	p, err := pipeline.New(deps, pipeline.Options{
		Force:            force,
		Years:            a.cfg.ReturnPeriods,
		Limit:            a.cfg.DevLimit,
		RootGroup:        a.cfg.RootGroup,
		DataDir:          a.cfg.DataDir,
		VDLedgerPath:     a.cfg.VDLedgerPath,
		HazardLedgerPath: a.cfg.HazardLedgerPath,
		CatalogPath:      a.cfg.CatalogPath,
		Overrides:        catalog.DefaultOverrides().Merge(cat.Overrides()),
	})
	if err != nil {
		return a.fail("failed to build pipeline", err)
	}

	stop := a.serveMetrics(ctx, p)
	defer stop()
	defer a.flushMetrics()

	rep, err := stage(p, ctx)
	if rep != nil {
		if werr := rep.WriteText(cmd.OutOrStdout()); werr != nil {
			a.logger.Warn("print report failed", "error", werr)
		}
	}
	return err
}
