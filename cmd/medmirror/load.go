package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmedline/medmirror/internal/ingest"
)

func init() {
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load FILE...",
	Short: "Bulk-load citation files through COPY",
	Long: `Bulk-load citation files through the PostgreSQL COPY protocol.

Much faster than insert for large baselines, but intended for an empty
database: an already stored citation aborts the whole load.

Example:
  medmirror load medline14n*.xml.gz`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	pmids, paths := ingest.Partition(args)
	if len(pmids) > 0 {
		return fmt.Errorf("load takes files only, got PMID %d", pmids[0])
	}

	ctx := cmd.Context()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.pipeline("load").Load(ctx, paths) {
		return fmt.Errorf("load failed")
	}
	return nil
}
