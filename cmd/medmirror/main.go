// Package main provides the medmirror CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// uniqueOnly skips citations whose VersionID is not "1".
var uniqueOnly bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "medmirror",
	Short: "Mirror MEDLINE/PubMed citations into PostgreSQL",
	Long: `medmirror maintains a local relational mirror of MEDLINE citations.

Citations come from MEDLINE XML files (plain or gzip) or are downloaded
from NCBI eUtils by PMID. Records are parsed in a single streaming pass
and written transactionally: a batch commits as a whole or not at all.

Configuration is read from config.yaml and MEDMIRROR_* environment
variables; a .env file is loaded if present.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Load .env if present (for MEDMIRROR_* settings)
	_ = godotenv.Load()

	rootCmd.Version = Version
	rootCmd.PersistentFlags().BoolVar(&uniqueOnly, "unique", true,
		"Skip citation versions other than 1")
}
