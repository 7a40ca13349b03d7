package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmedline/medmirror/internal/dump"
	"github.com/openmedline/medmirror/internal/ingest"
	"github.com/openmedline/medmirror/internal/observability"
)

var (
	parseOutputDir string
	parseUpdateAll bool
)

func init() {
	parseCmd.Flags().StringVarP(&parseOutputDir, "output", "o", ".",
		"Directory for the generated table files")
	parseCmd.Flags().BoolVar(&parseUpdateAll, "update-all", false,
		"Add every parsed PMID to the deletion list")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse FILE...",
	Short: "Parse citation files into COPY-ready table files",
	Long: `Parse citation files into tab-separated table files.

One file per table plus delete.txt is written into the output directory,
ready for PostgreSQL COPY. No database connection is made. With
--update-all every parsed PMID is also added to delete.txt so the load
can replace existing citations.

Example:
  medmirror parse -o /tmp/out medline14n0001.xml.gz`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	pmids, paths := ingest.Partition(args)
	if len(pmids) > 0 {
		return fmt.Errorf("parse takes files only, got PMID %d", pmids[0])
	}

	_, logger, err := newLogger()
	if err != nil {
		return err
	}
	logger = observability.WithComponent(logger, "parse")

	opts := dump.Options{Unique: uniqueOnly, UpdateAll: parseUpdateAll}
	if err := dump.Run(paths, parseOutputDir, opts, logger); err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}
	return nil
}
