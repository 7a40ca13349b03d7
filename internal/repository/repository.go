// Package repository provides data access for the MEDLINE citation mirror.
//
// # Overview
//
// The package defines the CitationStore interface and its PostgreSQL
// implementation following the repository pattern to abstract data
// persistence from the ingestion pipeline.
//
// # Thread Safety
//
// The store is safe for concurrent use by multiple goroutines. The
// underlying pgxpool handles connection pooling and synchronization.
//
// # Error Handling
//
// Database errors are wrapped with context using fmt.Errorf with the %w
// verb. Constraint violations are classified as domain.IntegrityError so
// callers can roll back and report failure without inspecting SQLSTATE
// codes themselves.
//
// # Transactions
//
// The DBTX interface supports both pool and transaction contexts. Create a
// transactional store inside database.DB.WithTransaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    store := repository.NewPgCitationStore(tx)
//	    return store.Add(ctx, records)
//	})
package repository

import (
	"github.com/openmedline/medmirror/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX
