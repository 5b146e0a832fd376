package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-hazard-etl/internal/zonal"
)

func newZonalCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "zonal <features.csv>",
		Short: "Summarise feature counts and areas by partition and hazard class",
		Long: `Reads a CSV of features with an area column, a partition column
(lga_name, lga, name or partition) and either a hazard column or per-class
histogram columns (h1..h6, possibly prefixed), then prints counts and areas per
partition and class.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return a.fail("failed to open features", err)
			}
			defer f.Close() //nolint:errcheck // read-only

			features, err := zonal.ReadFeaturesCSV(f)
			if err != nil {
				return a.fail("failed to read features", fmt.Errorf("%s: %w", args[0], err))
			}
			summary := zonal.Aggregate(features)
			a.logger.Info("zonal summary computed", "features", len(features), "partitions", len(summary.Partitions))

			if asJSON {
				return zonal.WriteJSON(cmd.OutOrStdout(), summary)
			}
			return zonal.WriteText(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}
