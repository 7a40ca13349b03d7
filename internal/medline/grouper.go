package medline

import (
	"github.com/openmedline/medmirror/internal/domain"
)

// Item is one unit of ingestion work: either all records of one citation or
// a single PMID deletion notice.
type Item struct {
	Group  []domain.Record
	Delete int64
}

// IsDelete reports whether the item is a deletion notice.
func (it Item) IsDelete() bool { return len(it.Group) == 0 }

// Root returns the Citation record of a group. The parser emits the root
// after the children, so the scan runs from the back.
func (it Item) Root() *domain.Citation {
	for i := len(it.Group) - 1; i >= 0; i-- {
		if citation, ok := it.Group[i].(*domain.Citation); ok {
			return citation
		}
	}
	return nil
}

// Grouper batches the parser's record stream into per-citation groups. A
// group is complete when a record for a different PMID arrives or the stream
// ends. Deletion notices pass through immediately, interleaved with groups.
type Grouper struct {
	parser *Parser

	buf    []domain.Record
	pmid   int64
	ptypes map[string]struct{}

	queue []Item
	item  Item
	done  bool
}

// NewGrouper wraps a parser into a per-citation group stream.
func NewGrouper(parser *Parser) *Grouper {
	return &Grouper{parser: parser}
}

// Scan advances to the next item. It returns false at the end of the stream
// or on the first parse error; Err disambiguates.
func (g *Grouper) Scan() bool {
	for {
		if len(g.queue) > 0 {
			g.item = g.queue[0]
			g.queue = g.queue[1:]
			return true
		}
		if g.done {
			return false
		}

		if !g.parser.Scan() {
			g.done = true
			if g.parser.Err() == nil {
				g.flush()
			}
			continue
		}

		entry := g.parser.Entry()
		if entry.IsDelete() {
			g.queue = append(g.queue, Item{Delete: entry.Delete})
			continue
		}
		g.collect(entry.Record)
	}
}

// Item returns the item produced by the last successful Scan.
func (g *Grouper) Item() Item { return g.item }

// Err returns the first error encountered by the underlying parser.
func (g *Grouper) Err() error { return g.parser.Err() }

func (g *Grouper) collect(record domain.Record) {
	if len(g.buf) > 0 && record.PMID() != g.pmid {
		g.flush()
	}
	if len(g.buf) == 0 {
		g.pmid = record.PMID()
		g.ptypes = make(map[string]struct{})
	}

	// publication types repeat across PublicationTypeList entries; keep the
	// first occurrence of each value
	if ptype, ok := record.(*domain.PublicationType); ok {
		if _, dup := g.ptypes[ptype.Value]; dup {
			return
		}
		g.ptypes[ptype.Value] = struct{}{}
	}

	g.buf = append(g.buf, record)
}

func (g *Grouper) flush() {
	if len(g.buf) == 0 {
		return
	}
	g.queue = append(g.queue, Item{Group: g.buf})
	g.buf = nil
	g.ptypes = nil
}
