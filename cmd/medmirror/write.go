package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openmedline/medmirror/internal/ingest"
	"github.com/openmedline/medmirror/internal/observability"
	"github.com/openmedline/medmirror/internal/render"
	"github.com/openmedline/medmirror/internal/repository"
)

var writeOutputFile string

func init() {
	writeCmd.Flags().StringVarP(&writeOutputFile, "output", "o", "",
		"File to write the HTML to (default stdout)")
	rootCmd.AddCommand(writeCmd)
}

var writeCmd = &cobra.Command{
	Use:   "write PMID...",
	Short: "Write stored citations as HTML",
	Long: `Write stored citations as a single HTML document.

PMIDs that are not stored are skipped with a warning.

Example:
  medmirror write -o articles.html 23144668 24073207`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
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

	logger := observability.WithComponent(app.logger, "write")

	store := repository.NewPgCitationStore(app.db)
	aggregates, err := store.GetAggregates(ctx, pmids)
	if err != nil {
		return fmt.Errorf("read citations: %w", err)
	}
	if len(aggregates) < len(pmids) {
		logger.Warn().
			Int("requested", len(pmids)).
			Int("found", len(aggregates)).
			Msg("some citations are not stored")
	}

	out := os.Stdout
	if writeOutputFile != "" {
		f, err := os.Create(writeOutputFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return render.NewHTML(logger).Write(out, aggregates)
}
