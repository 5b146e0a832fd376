package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
	"github.com/couchcryptid/flood-hazard-etl/internal/purge"
)

func newPurgeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete rasters no catalog layer references, in two steps",
	}
	cmd.AddCommand(newPurgePlanCmd(a), newPurgeConfirmCmd(a))
	return cmd
}

func newPurgePlanCmd(a *app) *cobra.Command {
	var group, dir string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write the list of unreferenced files and folders to the purge plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(a.cfg.CatalogPath)
			if err != nil {
				return a.fail("failed to load catalog", err)
			}
			plan, err := purge.Build(cat, strings.Split(group, "/"), dir, a.cfg.ProjectDir)
			if err != nil {
				return a.fail("failed to build purge plan", err)
			}
			if err := plan.Write(a.cfg.PurgePlanPath); err != nil {
				return a.fail("failed to write purge plan", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Files to delete:")
			printPaths(out, plan.Files)
			fmt.Fprintln(out, "\nFolders to delete:")
			printPaths(out, plan.Folders)
			if plan.Len() == 0 {
				fmt.Fprintln(out, "\nNothing to purge.")
				return nil
			}
			fmt.Fprintf(out, "\nWritten %d path(s) to: %s\n", plan.Len(), a.cfg.PurgePlanPath)
			fmt.Fprintln(out, "Next step: floodctl purge confirm")
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "Depth", "catalog group whose layers are kept, '/'-separated")
	cmd.Flags().StringVar(&dir, "dir", "data/depth", "directory of area folders to prune")
	return cmd
}

func newPurgeConfirmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm",
		Short: "Delete everything listed in the purge plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := purge.Confirm(a.cfg.PurgePlanPath, a.logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %d file(s), %d folder(s)\n", res.DeletedFiles, res.DeletedFolders)
			if len(res.Errors) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Errors: %d\n", len(res.Errors))
			}
			if err != nil {
				return a.fail("purge incomplete", err)
			}
			return nil
		},
	}
}

func printPaths(out io.Writer, paths []string) {
	if len(paths) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	for _, p := range paths {
		fmt.Fprintf(out, "  %s\n", p)
	}
}
