// Package observability provides structured logging support for the
// MEDLINE mirror.
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stderr",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Int64("pmid", pmid).Msg("citation parsed")
//
// Add component context to a logger:
//
//	logger = observability.WithComponent(logger, "parser")
//
// # Standard Fields
//
// Common fields used across the mirror:
//
//   - component: parser, grouper, pipeline, store, eutils, dump
//   - pmid: PubMed identifier of the citation being processed
//   - source: input file path or "eutils"
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
