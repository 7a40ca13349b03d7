package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmedline/medmirror/internal/ingest"
)

func init() {
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update (PMID|FILE)...",
	Short: "Insert or replace citations",
	Long: `Insert or replace citations.

Like insert, but a citation that already exists is deleted and rewritten
from the parsed records instead of aborting the batch.

Examples:
  medmirror update medline14n0001.xml.gz
  medmirror update 23144668`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.pipeline("update").Run(ctx, args, ingest.Update) {
		return fmt.Errorf("update failed")
	}
	return nil
}
