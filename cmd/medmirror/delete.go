package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmedline/medmirror/internal/ingest"
)

func init() {
	rootCmd.AddCommand(deleteCmd)
}

var deleteCmd = &cobra.Command{
	Use:   "delete PMID...",
	Short: "Delete citations and all their records",
	Long: `Delete citations and all their records.

Child rows (abstracts, authors, MeSH terms, ...) are removed by cascade.
PMIDs that are not stored are ignored.

Example:
  medmirror delete 23144668 24073207`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	pmids, rest := ingest.Partition(args)
	if len(rest) > 0 {
		return fmt.Errorf("not a PMID: %s", rest[0])
	}

	ctx := cmd.Context()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.pipeline("delete").Delete(ctx, pmids) {
		return fmt.Errorf("delete failed")
	}
	return nil
}
