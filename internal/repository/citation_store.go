package repository

import (
	"context"
	"time"

	"github.com/openmedline/medmirror/internal/domain"
)

// CitationStore handles citation persistence. Records passed to Add, Merge,
// and BulkInsert must be ordered parents before children (the Citation root
// first) so foreign keys resolve.
type CitationStore interface {
	// Add inserts records as new rows.
	// Returns domain.ErrIntegrity on constraint violations.
	Add(ctx context.Context, records []domain.Record) error

	// Merge upserts records: existing rows (matched by primary key) are
	// updated, missing rows are inserted.
	Merge(ctx context.Context, records []domain.Record) error

	// DeleteCitations removes the citations with the given PMIDs and,
	// through cascading, all of their child rows. PMIDs that do not exist
	// are ignored. Returns the number of citations removed.
	DeleteCitations(ctx context.Context, pmids []int64) (int64, error)

	// BulkInsert loads records through the COPY protocol, one batch per
	// table in dependency order. Intended for initial loads into an empty
	// database.
	BulkInsert(ctx context.Context, records []domain.Record) error

	// ExistingIDs returns the subset of the given PMIDs that are stored.
	ExistingIDs(ctx context.Context, pmids []int64) (map[int64]struct{}, error)

	// ModifiedBefore returns the subset of the given PMIDs whose modified
	// date is older than the cutoff.
	ModifiedBefore(ctx context.Context, pmids []int64, cutoff time.Time) (map[int64]struct{}, error)

	// CountCitations returns the number of stored citations.
	CountCitations(ctx context.Context) (int64, error)

	// GetAggregates assembles the stored citations with all of their
	// children, in the order of the given PMIDs. PMIDs that are not stored
	// are skipped.
	GetAggregates(ctx context.Context, pmids []int64) ([]*domain.CitationAggregate, error)
}
