package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-hazard-etl/internal/adapter/sqlite"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.RunHistoryPath == "" {
				return a.fail("run history is disabled", errors.New("RUN_HISTORY_PATH is not set"))
			}
			store, err := sqlite.Open(a.cfg.RunHistoryPath)
			if err != nil {
				return a.fail("failed to open run history", err)
			}
			defer store.Close() //nolint:errcheck // read-only

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return a.fail("failed to list runs", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTAGE\tFORCE\tCREATED\tSKIPPED\tFAILURES\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Format(time.RFC3339), r.Stage, r.Force, r.Created, r.Skipped, len(r.Failures), r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
