package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmedline/medmirror/internal/ingest"
)

func init() {
	rootCmd.AddCommand(insertCmd)
}

var insertCmd = &cobra.Command{
	Use:   "insert (PMID|FILE)...",
	Short: "Insert citations as new records",
	Long: `Insert citations as new records.

Arguments are MEDLINE XML files (plain or .gz) or literal PMIDs to
download from eUtils. A citation that already exists aborts the whole
batch; use update to replace stored citations.

Examples:
  medmirror insert medline14n0001.xml.gz
  medmirror insert 23144668 24073207`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInsert,
}

func runInsert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.pipeline("insert").Run(ctx, args, ingest.Insert) {
		return fmt.Errorf("insert failed")
	}
	return nil
}
