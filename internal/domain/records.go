// Package domain defines the citation record model shared by the parser,
// the storage layer, and the dump/render paths.
package domain

import (
	"time"
)

// Table names, in the dependency order required for bulk loading: parents
// before children so foreign keys resolve.
var TableOrder = []string{
	TableCitations,
	TableAbstracts,
	TableDescriptors,
	TableSections,
	TableAuthors,
	TableQualifiers,
	TableChemicals,
	TableDatabases,
	TableIdentifiers,
	TableKeywords,
	TablePublicationTypes,
}

const (
	TableCitations        = "citations"
	TableAbstracts        = "abstracts"
	TableSections         = "sections"
	TableAuthors          = "authors"
	TableDescriptors      = "descriptors"
	TableQualifiers       = "qualifiers"
	TableChemicals        = "chemicals"
	TableDatabases        = "databases"
	TableIdentifiers      = "identifiers"
	TableKeywords         = "keywords"
	TablePublicationTypes = "publication_types"
)

// Record is one relational row produced by the parser. Columns and Values
// are aligned and ordered; KeyColumns is the leading subset of Columns that
// forms the primary key.
type Record interface {
	// PMID returns the citation this row belongs to.
	PMID() int64
	// Table returns the target table name.
	Table() string
	// Columns returns the column names, primary key columns first.
	Columns() []string
	// Values returns the column values in the same order as Columns.
	Values() []any
	// KeyColumns returns the primary key column names.
	KeyColumns() []string
}

// Entry is one element of the parser output stream: either a typed record
// or a bare PMID marking a citation for deletion.
type Entry struct {
	Record Record
	Delete int64
}

// IsDelete reports whether the entry is a deletion request.
func (e Entry) IsDelete() bool { return e.Record == nil }

// Citation is the aggregate root. All child records cascade on delete.
type Citation struct {
	ID         int64
	Status     string
	Title      string
	Journal    string
	PubDate    string
	Issue      *string
	Pagination *string
	Created    time.Time
	Completed  *time.Time
	Revised    *time.Time
	// Modified is maintained by the store; zero means "today".
	Modified time.Time
}

// Year derives the publication year from the first four characters of the
// publication date string, or 0 if they do not form a number.
func (c *Citation) Year() int {
	if len(c.PubDate) < 4 {
		return 0
	}
	year := 0
	for _, r := range c.PubDate[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}

func (c *Citation) PMID() int64   { return c.ID }
func (c *Citation) Table() string { return TableCitations }

func (c *Citation) KeyColumns() []string { return []string{"pmid"} }

func (c *Citation) Columns() []string {
	return []string{
		"pmid", "status", "year", "title", "journal", "pub_date",
		"issue", "pagination", "created", "completed", "revised", "modified",
	}
}

func (c *Citation) Values() []any {
	modified := c.Modified
	if modified.IsZero() {
		modified = Today()
	}
	return []any{
		c.ID, c.Status, c.Year(), c.Title, c.Journal, c.PubDate,
		c.Issue, c.Pagination, c.Created, c.Completed, c.Revised, modified,
	}
}

// Abstract groups the text sections of one provenance source.
type Abstract struct {
	ID        int64
	Source    string
	Copyright *string
}

func (a *Abstract) PMID() int64          { return a.ID }
func (a *Abstract) Table() string        { return TableAbstracts }
func (a *Abstract) KeyColumns() []string { return []string{"pmid", "source"} }
func (a *Abstract) Columns() []string    { return []string{"pmid", "source", "copyright"} }
func (a *Abstract) Values() []any        { return []any{a.ID, a.Source, a.Copyright} }

// Section is one text block of an abstract. Truncated marks content that
// carried the "(ABSTRACT TRUNCATED AT n WORDS)" suffix in the source.
type Section struct {
	ID        int64
	Source    string
	Seq       int
	Name      string
	Label     *string
	Content   string
	Truncated bool
}

func (s *Section) PMID() int64          { return s.ID }
func (s *Section) Table() string        { return TableSections }
func (s *Section) KeyColumns() []string { return []string{"pmid", "source", "seq"} }

func (s *Section) Columns() []string {
	return []string{"pmid", "source", "seq", "name", "label", "content", "truncated"}
}

func (s *Section) Values() []any {
	return []any{s.ID, s.Source, s.Seq, s.Name, s.Label, s.Content, s.Truncated}
}

// Author is one name on the citation, at its 1-based source position.
// Initials, forename, and suffix are empty strings when the source declares
// them absent (collective names) and nil when unknown.
type Author struct {
	ID       int64
	Pos      int
	Name     string
	Initials *string
	Forename *string
	Suffix   *string
}

func (a *Author) PMID() int64          { return a.ID }
func (a *Author) Table() string        { return TableAuthors }
func (a *Author) KeyColumns() []string { return []string{"pmid", "pos"} }

func (a *Author) Columns() []string {
	return []string{"pmid", "pos", "name", "initials", "forename", "suffix"}
}

func (a *Author) Values() []any {
	return []any{a.ID, a.Pos, a.Name, a.Initials, a.Forename, a.Suffix}
}

// FullName joins forename (or initials), last name, and suffix.
func (a *Author) FullName() string {
	name := ""
	if a.Forename != nil && *a.Forename != "" {
		name = *a.Forename + " "
	} else if a.Initials != nil && *a.Initials != "" {
		name = *a.Initials + " "
	}
	name += a.Name
	if a.Suffix != nil && *a.Suffix != "" {
		name += " " + *a.Suffix
	}
	return name
}

// Descriptor is a MeSH heading, numbered in source order.
type Descriptor struct {
	ID    int64
	Num   int
	Major bool
	Name  string
}

func (d *Descriptor) PMID() int64          { return d.ID }
func (d *Descriptor) Table() string        { return TableDescriptors }
func (d *Descriptor) KeyColumns() []string { return []string{"pmid", "num"} }
func (d *Descriptor) Columns() []string    { return []string{"pmid", "num", "major", "name"} }
func (d *Descriptor) Values() []any        { return []any{d.ID, d.Num, d.Major, d.Name} }

// Qualifier refines one descriptor; Sub numbers it within the descriptor.
type Qualifier struct {
	ID    int64
	Num   int
	Sub   int
	Major bool
	Name  string
}

func (q *Qualifier) PMID() int64          { return q.ID }
func (q *Qualifier) Table() string        { return TableQualifiers }
func (q *Qualifier) KeyColumns() []string { return []string{"pmid", "num", "sub"} }
func (q *Qualifier) Columns() []string    { return []string{"pmid", "num", "sub", "major", "name"} }
func (q *Qualifier) Values() []any        { return []any{q.ID, q.Num, q.Sub, q.Major, q.Name} }

// Chemical is a curated substance reference. UID is nil when the source
// registry number is absent or the "0" sentinel.
type Chemical struct {
	ID   int64
	Idx  int
	UID  *string
	Name string
}

func (c *Chemical) PMID() int64          { return c.ID }
func (c *Chemical) Table() string        { return TableChemicals }
func (c *Chemical) KeyColumns() []string { return []string{"pmid", "idx"} }
func (c *Chemical) Columns() []string    { return []string{"pmid", "idx", "uid", "name"} }
func (c *Chemical) Values() []any        { return []any{c.ID, c.Idx, c.UID, c.Name} }

// DatabaseRef is an external databank accession for the citation.
type DatabaseRef struct {
	ID        int64
	Name      string
	Accession string
}

func (d *DatabaseRef) PMID() int64          { return d.ID }
func (d *DatabaseRef) Table() string        { return TableDatabases }
func (d *DatabaseRef) KeyColumns() []string { return []string{"pmid", "name", "accession"} }
func (d *DatabaseRef) Columns() []string    { return []string{"pmid", "name", "accession"} }
func (d *DatabaseRef) Values() []any        { return []any{d.ID, d.Name, d.Accession} }

// Identifier is an alternate ID in a lowercase namespace (doi, pmc, pii,
// pubmed, ...). At most one identifier per namespace per citation.
type Identifier struct {
	ID        int64
	Namespace string
	Value     string
}

func (i *Identifier) PMID() int64          { return i.ID }
func (i *Identifier) Table() string        { return TableIdentifiers }
func (i *Identifier) KeyColumns() []string { return []string{"pmid", "namespace"} }
func (i *Identifier) Columns() []string    { return []string{"pmid", "namespace", "value"} }
func (i *Identifier) Values() []any        { return []any{i.ID, i.Namespace, i.Value} }

// Keyword is counted 1-based per (pmid, owner).
type Keyword struct {
	ID    int64
	Owner string
	Cnt   int
	Major bool
	Name  string
}

func (k *Keyword) PMID() int64          { return k.ID }
func (k *Keyword) Table() string        { return TableKeywords }
func (k *Keyword) KeyColumns() []string { return []string{"pmid", "owner", "cnt"} }
func (k *Keyword) Columns() []string    { return []string{"pmid", "owner", "cnt", "major", "name"} }
func (k *Keyword) Values() []any        { return []any{k.ID, k.Owner, k.Cnt, k.Major, k.Name} }

// PublicationType is an upper-cased publication type value.
type PublicationType struct {
	ID    int64
	Value string
}

func (p *PublicationType) PMID() int64          { return p.ID }
func (p *PublicationType) Table() string        { return TablePublicationTypes }
func (p *PublicationType) KeyColumns() []string { return []string{"pmid", "value"} }
func (p *PublicationType) Columns() []string    { return []string{"pmid", "value"} }
func (p *PublicationType) Values() []any        { return []any{p.ID, p.Value} }

// Today returns the current date truncated to midnight UTC, the granularity
// stored in the modified column.
func Today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CitationAggregate is the read-side view of one citation with all of its
// children, assembled by the store for rendering.
type CitationAggregate struct {
	Citation
	Abstracts        []*AbstractView
	Authors          []*Author
	Descriptors      []*DescriptorView
	Chemicals        []*Chemical
	Databases        []*DatabaseRef
	Identifiers      map[string]*Identifier
	Keywords         []*Keyword
	PublicationTypes []string
}

// AbstractView is an abstract with its sections in sequence order.
type AbstractView struct {
	Abstract
	Sections []*Section
}

// DescriptorView is a descriptor with its qualifiers in sub order.
type DescriptorView struct {
	Descriptor
	Qualifiers []*Qualifier
}

// CitationLine formats the journal issue reference of the aggregate, e.g.
// "2010 Jan; 12(3): 11-16".
func (c *Citation) CitationLine() string {
	line := c.PubDate
	if c.Issue != nil && *c.Issue != "" {
		line += "; " + *c.Issue
	}
	if c.Pagination != nil && *c.Pagination != "" {
		line += ": " + *c.Pagination
	}
	return line
}
