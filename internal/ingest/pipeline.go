// Package ingest drives citation ingestion: MEDLINE XML sources in,
// relational rows out, one transaction per invocation.
package ingest

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/openmedline/medmirror/internal/domain"
	"github.com/openmedline/medmirror/internal/eutils"
	"github.com/openmedline/medmirror/internal/medline"
	"github.com/openmedline/medmirror/internal/repository"
)

// Policy selects how parsed citation groups are written.
type Policy int

const (
	// Insert writes groups as new rows; a duplicate PMID aborts the batch.
	Insert Policy = iota

	// Update replaces stored aggregates: delete the citation, then rewrite
	// all of its rows.
	Update
)

// loadBatchSize is the number of citation groups buffered between COPY
// flushes during bulk loading.
const loadBatchSize = 1000

// Fetcher downloads citation XML for a page of PMIDs.
type Fetcher interface {
	Fetch(ctx context.Context, pmids []int64) (io.ReadCloser, error)
}

// TxRunner executes a function within a database transaction.
// *database.DB satisfies this.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Config holds pipeline tuning knobs.
type Config struct {
	// FetchSize is the number of PMIDs per efetch page (1-100).
	// Defaults to eutils.MaxFetchSize.
	FetchSize int

	// Unique skips citations whose VersionID is not "1".
	Unique bool
}

// Pipeline parses citation sources and writes them to the store. All writes
// of one invocation share a transaction: the batch commits as a whole or not
// at all.
type Pipeline struct {
	runner  TxRunner
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger

	// newStore is swapped in tests.
	newStore func(db repository.DBTX) repository.CitationStore
}

// New creates a pipeline writing through the given transaction runner.
// The fetcher may be nil when only file sources are used.
func New(runner TxRunner, fetcher Fetcher, cfg Config, logger zerolog.Logger) *Pipeline {
	if cfg.FetchSize <= 0 || cfg.FetchSize > eutils.MaxFetchSize {
		cfg.FetchSize = eutils.MaxFetchSize
	}

	return &Pipeline{
		runner:  runner,
		fetcher: fetcher,
		config:  cfg,
		logger:  logger,
		newStore: func(db repository.DBTX) repository.CitationStore {
			return repository.NewPgCitationStore(db)
		},
	}
}

// Partition splits command line arguments into PMIDs and file paths.
// Anything that parses as a positive integer is a PMID.
func Partition(args []string) (pmids []int64, paths []string) {
	for _, arg := range args {
		if pmid, err := strconv.ParseInt(arg, 10, 64); err == nil && pmid > 0 {
			pmids = append(pmids, pmid)
			continue
		}
		paths = append(paths, arg)
	}
	return pmids, paths
}

// Run ingests the given sources (file paths and literal PMIDs) under the
// policy and reports success. On any storage or parse error the transaction
// is rolled back and nothing is written.
func (p *Pipeline) Run(ctx context.Context, args []string, policy Policy) bool {
	pmids, paths := Partition(args)

	err := p.runner.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := p.newStore(tx)

		before, err := store.CountCitations(ctx)
		if err != nil {
			return err
		}
		p.logger.Info().Int64("citations", before).Msg("citation count before ingestion")

		var deletions []int64

		for _, path := range paths {
			if err := p.ingestFile(ctx, store, path, policy, &deletions); err != nil {
				return err
			}
		}
		if len(pmids) > 0 {
			if err := p.ingestRemote(ctx, store, pmids, policy, &deletions); err != nil {
				return err
			}
		}

		if len(deletions) > 0 {
			count, err := store.DeleteCitations(ctx, deletions)
			if err != nil {
				return err
			}
			p.logger.Info().
				Int("requested", len(deletions)).
				Int64("deleted", count).
				Msg("applied citation deletions")
		}

		after, err := store.CountCitations(ctx)
		if err != nil {
			return err
		}
		p.logger.Info().Int64("citations", after).Msg("citation count after ingestion")
		return nil
	})
	if err != nil {
		p.logEvent(err).Msg("ingestion rolled back")
		return false
	}
	return true
}

// Delete removes the given citations in one transaction and reports success.
func (p *Pipeline) Delete(ctx context.Context, pmids []int64) bool {
	err := p.runner.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := p.newStore(tx)
		count, err := store.DeleteCitations(ctx, pmids)
		if err != nil {
			return err
		}
		p.logger.Info().
			Int("requested", len(pmids)).
			Int64("deleted", count).
			Msg("deleted citations")
		return nil
	})
	if err != nil {
		p.logEvent(err).Msg("deletion rolled back")
		return false
	}
	return true
}

// Load bulk-loads the given XML files through the COPY protocol. Intended
// for initial loads into an empty database; duplicates abort the batch.
func (p *Pipeline) Load(ctx context.Context, paths []string) bool {
	err := p.runner.WithTransaction(ctx, func(tx pgx.Tx) error {
		store := p.newStore(tx)

		var records []domain.Record
		var deletions []int64
		groups := 0

		flush := func() error {
			if len(records) == 0 {
				return nil
			}
			if err := store.BulkInsert(ctx, records); err != nil {
				return err
			}
			records = records[:0]
			groups = 0
			return nil
		}

		for _, path := range paths {
			err := p.withSource(path, func(r io.Reader) error {
				grouper := medline.NewGrouper(p.newParser(r, medline.Medline))
				for grouper.Scan() {
					item := grouper.Item()
					if item.IsDelete() {
						deletions = append(deletions, item.Delete)
						continue
					}
					if item.Root() == nil {
						p.logger.Warn().Int("records", len(item.Group)).
							Msg("discarding incomplete citation group")
						continue
					}
					records = append(records, item.Group...)
					groups++
					if groups >= loadBatchSize {
						if err := flush(); err != nil {
							return err
						}
					}
				}
				return grouper.Err()
			})
			if err != nil {
				return err
			}
		}
		if err := flush(); err != nil {
			return err
		}

		if len(deletions) > 0 {
			if _, err := store.DeleteCitations(ctx, deletions); err != nil {
				return err
			}
		}

		count, err := store.CountCitations(ctx)
		if err != nil {
			return err
		}
		p.logger.Info().Int64("citations", count).Msg("citation count after bulk load")
		return nil
	})
	if err != nil {
		p.logEvent(err).Msg("bulk load rolled back")
		return false
	}
	return true
}

// ingestFile parses one local file in offline (MEDLINE) mode.
func (p *Pipeline) ingestFile(ctx context.Context, store repository.CitationStore, path string, policy Policy, deletions *[]int64) error {
	p.logger.Debug().Str("path", path).Msg("ingesting file")
	return p.withSource(path, func(r io.Reader) error {
		return p.writeGroups(ctx, store, r, medline.Medline, policy, deletions)
	})
}

// ingestRemote downloads the PMIDs page by page and parses them in online
// (PubMed) mode.
func (p *Pipeline) ingestRemote(ctx context.Context, store repository.CitationStore, pmids []int64, policy Policy, deletions *[]int64) error {
	if p.fetcher == nil {
		return fmt.Errorf("no fetcher configured for %d PMID arguments", len(pmids))
	}

	for start := 0; start < len(pmids); start += p.config.FetchSize {
		end := start + p.config.FetchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		page := pmids[start:end]

		p.logger.Debug().Int("pmids", len(page)).Msg("fetching citation page")

		body, err := p.fetcher.Fetch(ctx, page)
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}

		err = p.writeGroups(ctx, store, body, medline.PubMed, policy, deletions)
		if closeErr := body.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeGroups parses one stream and writes each citation group under the
// policy. Deletion PMIDs are buffered for the end of the batch.
func (p *Pipeline) writeGroups(ctx context.Context, store repository.CitationStore, r io.Reader, mode medline.Mode, policy Policy, deletions *[]int64) error {
	grouper := medline.NewGrouper(p.newParser(r, mode))
	for grouper.Scan() {
		item := grouper.Item()
		if item.IsDelete() {
			*deletions = append(*deletions, item.Delete)
			continue
		}

		root := item.Root()
		if root == nil {
			// a corrupt archive can cut the stream between a citation's
			// children and its root; the partial group is unusable
			p.logger.Warn().Int("records", len(item.Group)).
				Msg("discarding incomplete citation group")
			continue
		}

		if policy == Update {
			if _, err := store.DeleteCitations(ctx, []int64{root.ID}); err != nil {
				return err
			}
		}
		if err := store.Add(ctx, rootFirst(item.Group, root)); err != nil {
			return err
		}
	}
	return grouper.Err()
}

func (p *Pipeline) newParser(r io.Reader, mode medline.Mode) *medline.Parser {
	return medline.NewParser(r, mode, p.config.Unique, p.logger)
}

// withSource opens a file, transparently decompressing .gz, and hands the
// reader to fn.
func (p *Pipeline) withSource(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	return fn(r)
}

// rootFirst reorders a group so the citation root precedes its children.
// The parser emits the root last.
func rootFirst(group []domain.Record, root *domain.Citation) []domain.Record {
	ordered := make([]domain.Record, 0, len(group))
	ordered = append(ordered, root)
	for _, record := range group {
		if record != domain.Record(root) {
			ordered = append(ordered, record)
		}
	}
	return ordered
}

func (p *Pipeline) logEvent(err error) *zerolog.Event {
	event := p.logger.Error().Err(err)
	if errors.Is(err, domain.ErrIntegrity) {
		var integrityErr *domain.IntegrityError
		if errors.As(err, &integrityErr) {
			event = event.Str("table", integrityErr.Table).Str("constraint", integrityErr.Constraint)
		}
	}
	return event
}
