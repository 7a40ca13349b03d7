package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openmedline/medmirror/internal/domain"
)

// Compile-time interface verification.
var _ CitationStore = (*PgCitationStore)(nil)

// PgCitationStore is a PostgreSQL implementation of CitationStore.
type PgCitationStore struct {
	db DBTX
}

// NewPgCitationStore creates a new PostgreSQL citation store.
func NewPgCitationStore(db DBTX) *PgCitationStore {
	return &PgCitationStore{db: db}
}

// tableSQL holds the statements generated for one record type.
type tableSQL struct {
	insert string
	merge  string
}

var sqlByTable = map[string]tableSQL{}

func init() {
	prototypes := []domain.Record{
		&domain.Citation{},
		&domain.Abstract{},
		&domain.Section{},
		&domain.Author{},
		&domain.Descriptor{},
		&domain.Qualifier{},
		&domain.Chemical{},
		&domain.DatabaseRef{},
		&domain.Identifier{},
		&domain.Keyword{},
		&domain.PublicationType{},
	}
	for _, record := range prototypes {
		sqlByTable[record.Table()] = tableSQL{
			insert: insertSQL(record),
			merge:  mergeSQL(record),
		}
	}
}

func insertSQL(record domain.Record) string {
	columns := record.Columns()
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		record.Table(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
}

func mergeSQL(record domain.Record) string {
	keys := record.KeyColumns()
	columns := record.Columns()
	rest := columns[len(keys):]

	conflict := fmt.Sprintf(" ON CONFLICT (%s) DO ", strings.Join(keys, ", "))
	if len(rest) == 0 {
		return insertSQL(record) + conflict + "NOTHING"
	}

	assignments := make([]string, len(rest))
	for i, column := range rest {
		assignments[i] = fmt.Sprintf("%s = EXCLUDED.%s", column, column)
	}
	return insertSQL(record) + conflict + "UPDATE SET " + strings.Join(assignments, ", ")
}

// Add inserts records as new rows.
func (s *PgCitationStore) Add(ctx context.Context, records []domain.Record) error {
	for _, record := range records {
		if _, err := s.db.Exec(ctx, sqlByTable[record.Table()].insert, record.Values()...); err != nil {
			return classifyError(record.Table(), err)
		}
	}
	return nil
}

// Merge upserts records by primary key.
func (s *PgCitationStore) Merge(ctx context.Context, records []domain.Record) error {
	for _, record := range records {
		if _, err := s.db.Exec(ctx, sqlByTable[record.Table()].merge, record.Values()...); err != nil {
			return classifyError(record.Table(), err)
		}
	}
	return nil
}

// DeleteCitations removes the citations with the given PMIDs; child rows
// cascade.
func (s *PgCitationStore) DeleteCitations(ctx context.Context, pmids []int64) (int64, error) {
	if len(pmids) == 0 {
		return 0, nil
	}

	tag, err := s.db.Exec(ctx, "DELETE FROM citations WHERE pmid = ANY($1)", pmids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete citations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BulkInsert loads records through COPY, one batch per table in dependency
// order.
func (s *PgCitationStore) BulkInsert(ctx context.Context, records []domain.Record) error {
	byTable := make(map[string][][]any)
	for _, record := range records {
		byTable[record.Table()] = append(byTable[record.Table()], record.Values())
	}

	for _, table := range domain.TableOrder {
		rows := byTable[table]
		if len(rows) == 0 {
			continue
		}

		// any record of the table yields the column list; take a prototype
		var columns []string
		for _, record := range records {
			if record.Table() == table {
				columns = record.Columns()
				break
			}
		}

		if _, err := s.db.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
			return classifyError(table, err)
		}
	}
	return nil
}

// ExistingIDs returns the subset of the given PMIDs that are stored.
func (s *PgCitationStore) ExistingIDs(ctx context.Context, pmids []int64) (map[int64]struct{}, error) {
	if len(pmids) == 0 {
		return map[int64]struct{}{}, nil
	}

	rows, err := s.db.Query(ctx,
		"SELECT pmid FROM citations WHERE pmid = ANY($1)", pmids)
	if err != nil {
		return nil, fmt.Errorf("failed to list citations: %w", err)
	}
	defer rows.Close()

	return scanPMIDSet(rows)
}

// ModifiedBefore returns the subset of the given PMIDs whose modified date
// is older than the cutoff.
func (s *PgCitationStore) ModifiedBefore(ctx context.Context, pmids []int64, cutoff time.Time) (map[int64]struct{}, error) {
	if len(pmids) == 0 {
		return map[int64]struct{}{}, nil
	}

	rows, err := s.db.Query(ctx,
		"SELECT pmid FROM citations WHERE pmid = ANY($1) AND modified < $2", pmids, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale citations: %w", err)
	}
	defer rows.Close()

	return scanPMIDSet(rows)
}

// CountCitations returns the number of stored citations.
func (s *PgCitationStore) CountCitations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM citations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count citations: %w", err)
	}
	return count, nil
}

// GetAggregates assembles the stored citations with all of their children,
// in the order of the given PMIDs. PMIDs that are not stored are skipped.
func (s *PgCitationStore) GetAggregates(ctx context.Context, pmids []int64) ([]*domain.CitationAggregate, error) {
	aggregates := make([]*domain.CitationAggregate, 0, len(pmids))
	for _, pmid := range pmids {
		aggregate, err := s.GetAggregate(ctx, pmid)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		aggregates = append(aggregates, aggregate)
	}
	return aggregates, nil
}

// GetAggregate assembles one citation with all of its children. Returns
// domain.ErrNotFound if the PMID is not stored.
func (s *PgCitationStore) GetAggregate(ctx context.Context, pmid int64) (*domain.CitationAggregate, error) {
	aggregate := &domain.CitationAggregate{
		Citation:    domain.Citation{ID: pmid},
		Identifiers: make(map[string]*domain.Identifier),
	}

	err := s.db.QueryRow(ctx, `
		SELECT status, title, journal, pub_date, issue, pagination,
			created, completed, revised, modified
		FROM citations
		WHERE pmid = $1`, pmid).Scan(
		&aggregate.Status, &aggregate.Title, &aggregate.Journal,
		&aggregate.PubDate, &aggregate.Issue, &aggregate.Pagination,
		&aggregate.Created, &aggregate.Completed, &aggregate.Revised,
		&aggregate.Modified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("citation", fmt.Sprintf("%d", pmid))
		}
		return nil, fmt.Errorf("failed to get citation %d: %w", pmid, err)
	}

	if err := s.loadAbstracts(ctx, pmid, aggregate); err != nil {
		return nil, err
	}
	if err := s.loadAuthors(ctx, pmid, aggregate); err != nil {
		return nil, err
	}
	if err := s.loadDescriptors(ctx, pmid, aggregate); err != nil {
		return nil, err
	}
	if err := s.loadChemicals(ctx, pmid, aggregate); err != nil {
		return nil, err
	}
	if err := s.loadDatabases(ctx, pmid, aggregate); err != nil {
		return nil, err
	}
	if err := s.loadIdentifiers(ctx, pmid, aggregate); err != nil {
		return nil, err
	}
	if err := s.loadKeywords(ctx, pmid, aggregate); err != nil {
		return nil, err
	}
	if err := s.loadPublicationTypes(ctx, pmid, aggregate); err != nil {
		return nil, err
	}

	return aggregate, nil
}

func (s *PgCitationStore) loadAbstracts(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx,
		"SELECT source, copyright FROM abstracts WHERE pmid = $1 ORDER BY source", pmid)
	if err != nil {
		return fmt.Errorf("failed to load abstracts for %d: %w", pmid, err)
	}
	defer rows.Close()

	views := make(map[string]*domain.AbstractView)
	for rows.Next() {
		view := &domain.AbstractView{Abstract: domain.Abstract{ID: pmid}}
		if err := rows.Scan(&view.Source, &view.Copyright); err != nil {
			return fmt.Errorf("failed to scan abstract: %w", err)
		}
		views[view.Source] = view
		aggregate.Abstracts = append(aggregate.Abstracts, view)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	sectionRows, err := s.db.Query(ctx, `
		SELECT source, seq, name, label, content, truncated
		FROM sections
		WHERE pmid = $1
		ORDER BY source, seq`, pmid)
	if err != nil {
		return fmt.Errorf("failed to load sections for %d: %w", pmid, err)
	}
	defer sectionRows.Close()

	for sectionRows.Next() {
		section := &domain.Section{ID: pmid}
		if err := sectionRows.Scan(&section.Source, &section.Seq, &section.Name,
			&section.Label, &section.Content, &section.Truncated); err != nil {
			return fmt.Errorf("failed to scan section: %w", err)
		}
		if view, ok := views[section.Source]; ok {
			view.Sections = append(view.Sections, section)
		}
	}
	return sectionRows.Err()
}

func (s *PgCitationStore) loadAuthors(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx, `
		SELECT pos, name, initials, forename, suffix
		FROM authors
		WHERE pmid = $1
		ORDER BY pos`, pmid)
	if err != nil {
		return fmt.Errorf("failed to load authors for %d: %w", pmid, err)
	}
	defer rows.Close()

	for rows.Next() {
		author := &domain.Author{ID: pmid}
		if err := rows.Scan(&author.Pos, &author.Name, &author.Initials,
			&author.Forename, &author.Suffix); err != nil {
			return fmt.Errorf("failed to scan author: %w", err)
		}
		aggregate.Authors = append(aggregate.Authors, author)
	}
	return rows.Err()
}

func (s *PgCitationStore) loadDescriptors(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx,
		"SELECT num, major, name FROM descriptors WHERE pmid = $1 ORDER BY num", pmid)
	if err != nil {
		return fmt.Errorf("failed to load descriptors for %d: %w", pmid, err)
	}
	defer rows.Close()

	views := make(map[int]*domain.DescriptorView)
	for rows.Next() {
		view := &domain.DescriptorView{Descriptor: domain.Descriptor{ID: pmid}}
		if err := rows.Scan(&view.Num, &view.Major, &view.Name); err != nil {
			return fmt.Errorf("failed to scan descriptor: %w", err)
		}
		views[view.Num] = view
		aggregate.Descriptors = append(aggregate.Descriptors, view)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	qualifierRows, err := s.db.Query(ctx, `
		SELECT num, sub, major, name
		FROM qualifiers
		WHERE pmid = $1
		ORDER BY num, sub`, pmid)
	if err != nil {
		return fmt.Errorf("failed to load qualifiers for %d: %w", pmid, err)
	}
	defer qualifierRows.Close()

	for qualifierRows.Next() {
		qualifier := &domain.Qualifier{ID: pmid}
		if err := qualifierRows.Scan(&qualifier.Num, &qualifier.Sub,
			&qualifier.Major, &qualifier.Name); err != nil {
			return fmt.Errorf("failed to scan qualifier: %w", err)
		}
		if view, ok := views[qualifier.Num]; ok {
			view.Qualifiers = append(view.Qualifiers, qualifier)
		}
	}
	return qualifierRows.Err()
}

func (s *PgCitationStore) loadChemicals(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx,
		"SELECT idx, uid, name FROM chemicals WHERE pmid = $1 ORDER BY idx", pmid)
	if err != nil {
		return fmt.Errorf("failed to load chemicals for %d: %w", pmid, err)
	}
	defer rows.Close()

	for rows.Next() {
		chemical := &domain.Chemical{ID: pmid}
		if err := rows.Scan(&chemical.Idx, &chemical.UID, &chemical.Name); err != nil {
			return fmt.Errorf("failed to scan chemical: %w", err)
		}
		aggregate.Chemicals = append(aggregate.Chemicals, chemical)
	}
	return rows.Err()
}

func (s *PgCitationStore) loadDatabases(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx,
		"SELECT name, accession FROM databases WHERE pmid = $1 ORDER BY name, accession", pmid)
	if err != nil {
		return fmt.Errorf("failed to load databases for %d: %w", pmid, err)
	}
	defer rows.Close()

	for rows.Next() {
		ref := &domain.DatabaseRef{ID: pmid}
		if err := rows.Scan(&ref.Name, &ref.Accession); err != nil {
			return fmt.Errorf("failed to scan database reference: %w", err)
		}
		aggregate.Databases = append(aggregate.Databases, ref)
	}
	return rows.Err()
}

func (s *PgCitationStore) loadIdentifiers(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx,
		"SELECT namespace, value FROM identifiers WHERE pmid = $1 ORDER BY namespace", pmid)
	if err != nil {
		return fmt.Errorf("failed to load identifiers for %d: %w", pmid, err)
	}
	defer rows.Close()

	for rows.Next() {
		identifier := &domain.Identifier{ID: pmid}
		if err := rows.Scan(&identifier.Namespace, &identifier.Value); err != nil {
			return fmt.Errorf("failed to scan identifier: %w", err)
		}
		aggregate.Identifiers[identifier.Namespace] = identifier
	}
	return rows.Err()
}

func (s *PgCitationStore) loadKeywords(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx,
		"SELECT owner, cnt, major, name FROM keywords WHERE pmid = $1 ORDER BY owner, cnt", pmid)
	if err != nil {
		return fmt.Errorf("failed to load keywords for %d: %w", pmid, err)
	}
	defer rows.Close()

	for rows.Next() {
		keyword := &domain.Keyword{ID: pmid}
		if err := rows.Scan(&keyword.Owner, &keyword.Cnt, &keyword.Major, &keyword.Name); err != nil {
			return fmt.Errorf("failed to scan keyword: %w", err)
		}
		aggregate.Keywords = append(aggregate.Keywords, keyword)
	}
	return rows.Err()
}

func (s *PgCitationStore) loadPublicationTypes(ctx context.Context, pmid int64, aggregate *domain.CitationAggregate) error {
	rows, err := s.db.Query(ctx,
		"SELECT value FROM publication_types WHERE pmid = $1 ORDER BY value", pmid)
	if err != nil {
		return fmt.Errorf("failed to load publication types for %d: %w", pmid, err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return fmt.Errorf("failed to scan publication type: %w", err)
		}
		aggregate.PublicationTypes = append(aggregate.PublicationTypes, value)
	}
	return rows.Err()
}

func scanPMIDSet(rows pgx.Rows) (map[int64]struct{}, error) {
	pmids := make(map[int64]struct{})
	for rows.Next() {
		var pmid int64
		if err := rows.Scan(&pmid); err != nil {
			return nil, fmt.Errorf("failed to scan PMID: %w", err)
		}
		pmids[pmid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pmids, nil
}

// classifyError converts PostgreSQL constraint violations into
// domain.IntegrityError so callers can match with errors.Is.
func classifyError(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514", "23502":
			return domain.NewIntegrityError(table, pgErr.ConstraintName, pgErr.Code, err)
		}
	}
	return fmt.Errorf("%s write failed: %w", table, err)
}
