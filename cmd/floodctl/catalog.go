package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and populate the layer catalog",
	}
	cmd.AddCommand(newCatalogScanCmd(a), newCatalogListCmd(a))
	return cmd
}

func newCatalogScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Register study rasters and shapefiles found under the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(a.cfg.CatalogPath)
			if err != nil {
				return a.fail("failed to load catalog", err)
			}
			res, err := cat.Scan(a.cfg.DataDir, a.cfg.RootGroup)
			if err != nil {
				return a.fail("failed to scan data directory", err)
			}
			if err := cat.Save(a.cfg.CatalogPath); err != nil {
				return a.fail("failed to save catalog", err)
			}

			out := cmd.OutOrStdout()
			for _, id := range res.Added {
				fmt.Fprintf(out, "  Added: %s\n", id)
			}
			fmt.Fprintf(out, "Added %d layer(s), skipped %d already present.\n", len(res.Added), len(res.Skipped))
			fmt.Fprintf(out, "Catalog saved to: %s\n", a.cfg.CatalogPath)
			return nil
		},
	}
}

func newCatalogListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every layer in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(a.cfg.CatalogPath)
			if err != nil {
				return a.fail("failed to load catalog", err)
			}
			out := cmd.OutOrStdout()
			for _, e := range catalog.Leaves(cat.Root()) {
				fmt.Fprintf(out, "%s\t%s\t%s\n", e.ID, e.Node.Layer.Kind, e.Node.Layer.Source)
			}
			return nil
		},
	}
}
