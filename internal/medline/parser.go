// Package medline parses MEDLINE and PubMed citation XML into the relational
// record model. The parser streams: it never holds more than one citation's
// worth of data in memory, so full distribution files can be processed with
// constant memory.
package medline

import (
	"compress/flate"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmedline/medmirror/internal/domain"
)

// Mode selects the wire format variant.
type Mode int

const (
	// Medline parses offline distribution files. The citation root is
	// emitted and parsing state resets when a MedlineCitation closes.
	Medline Mode = iota
	// PubMed parses eUtils efetch output. The citation root is emitted when
	// a MedlineCitation closes, but state resets only when the enclosing
	// PubmedArticle closes, so ArticleId elements from PubmedData are still
	// attributed to the citation.
	PubMed
)

type parseState int

const (
	stateUndefined parseState = iota
	stateParsing
	stateSkipping
)

var truncMsg = regexp.MustCompile(`\(ABSTRACT TRUNCATED AT \d+ WORDS\)$`)

// Parser is a pull parser over one XML input stream. Use it like a
// bufio.Scanner: call Scan until it returns false, read each result with
// Entry, and check Err afterwards.
type Parser struct {
	dec    *xml.Decoder
	mode   Mode
	unique bool
	logger zerolog.Logger

	state      parseState
	pmid       int64
	stash      *citationStash
	namespaces map[string]struct{}
	seq        int

	queue []domain.Entry
	entry domain.Entry
	done  bool
	err   error
}

// NewParser creates a parser for the given stream. With unique set, citation
// versions other than "1" are skipped; deletion notices always pass through
// regardless of state.
func NewParser(r io.Reader, mode Mode, unique bool, logger zerolog.Logger) *Parser {
	kind := "non-unique"
	if unique {
		kind = "unique"
	}
	logger.Debug().Str("variant", kind).Msg("parser configured")

	return &Parser{
		dec:    xml.NewDecoder(r),
		mode:   mode,
		unique: unique,
		logger: logger,
	}
}

// Scan advances to the next entry. It returns false at the end of the stream
// or on the first error; Err disambiguates.
func (p *Parser) Scan() bool {
	for {
		if len(p.queue) > 0 {
			p.entry = p.queue[0]
			p.queue = p.queue[1:]
			return true
		}
		if p.done || p.err != nil {
			return false
		}
		if err := p.next(); err != nil {
			p.err = err
			return false
		}
	}
}

// Entry returns the entry produced by the last successful Scan.
func (p *Parser) Entry() domain.Entry { return p.entry }

// Err returns the first error encountered, or nil on clean end of stream.
func (p *Parser) Err() error { return p.err }

func (p *Parser) next() error {
	tok, err := p.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.done = true
			return nil
		}
		if isCorruptStream(err) {
			p.logger.Error().Err(err).Msg("compressed input stream is corrupt")
			p.done = true
			return nil
		}
		p.logger.Error().Err(err).Msg("corrupt or truncated input stream")
		return err
	}

	switch t := tok.(type) {
	case xml.StartElement:
		if err := p.startElement(t); err != nil {
			if isCorruptStream(err) {
				p.logger.Error().Err(err).Int64("pmid", p.pmid).
					Msg("compressed input stream is corrupt")
				p.done = true
				return nil
			}
			p.logger.Error().Err(err).Int64("pmid", p.pmid).
				Str("element", t.Name.Local).Msg("citation parse failed")
			return err
		}
	case xml.EndElement:
		if err := p.endElement(t); err != nil {
			p.logger.Error().Err(err).Int64("pmid", p.pmid).
				Msg("citation parse failed")
			return err
		}
	}
	return nil
}

// isCorruptStream reports whether the error originates in the compressed
// layer rather than in the XML. A corrupt archive ends the scan after the
// last complete citation; everything parsed up to that point stands.
func isCorruptStream(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &corrupt)
}

func (p *Parser) startElement(t xml.StartElement) error {
	switch t.Name.Local {
	case "MedlineCitation":
		p.stash = &citationStash{status: attrValue(t, "Status")}
		if p.unique {
			if version := attrValue(t, "VersionID"); version != "" && strings.TrimSpace(version) != "1" {
				p.logger.Debug().Str("version", version).Msg("skipping citation version")
				p.state = stateSkipping
			}
		}
		return nil

	case "PMID":
		var text string
		if err := p.dec.DecodeElement(&text, &t); err != nil {
			return err
		}
		return p.handlePMID(text)

	case "DeleteCitation":
		var del deleteCitationElement
		if err := p.dec.DecodeElement(&del, &t); err != nil {
			return err
		}
		for _, text := range del.PMIDs {
			pmid, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid DeleteCitation PMID %q: %w", text, err)
			}
			p.queue = append(p.queue, domain.Entry{Delete: pmid})
		}
		return nil
	}

	if p.state != stateParsing {
		return nil
	}

	switch t.Name.Local {
	case "DateCreated":
		return p.decodeDate(&t, &p.stash.created)
	case "DateCompleted":
		return p.decodeDate(&t, &p.stash.completed)
	case "DateRevised":
		return p.decodeDate(&t, &p.stash.revised)

	case "MedlineJournalInfo":
		var info journalInfoElement
		if err := p.dec.DecodeElement(&info, &t); err != nil {
			return err
		}
		p.stash.journal = strings.TrimSpace(info.MedlineTA)

	case "ArticleTitle":
		var text string
		if err := p.dec.DecodeElement(&text, &t); err != nil {
			return err
		}
		p.stash.title = strings.TrimSpace(text)

	case "VernacularTitle":
		var text string
		if err := p.dec.DecodeElement(&text, &t); err != nil {
			return err
		}
		p.stash.vernacular = strings.TrimSpace(text)

	case "Journal":
		var journal journalElement
		if err := p.dec.DecodeElement(&journal, &t); err != nil {
			return err
		}
		pubDate, err := parsePubDate(&journal.Issue.PubDate)
		if err != nil {
			return err
		}
		p.stash.pubDate = pubDate
		p.stash.issue = parseIssue(&journal.Issue)

	case "Pagination":
		var pagination paginationElement
		if err := p.dec.DecodeElement(&pagination, &t); err != nil {
			return err
		}
		if text := strings.TrimSpace(pagination.MedlinePgn); text != "" {
			p.stash.pagination = &text
		}

	case "Abstract":
		var abstract abstractElement
		if err := p.dec.DecodeElement(&abstract, &t); err != nil {
			return err
		}
		p.emitAbstract(&abstract, "NLM")

	case "OtherAbstract":
		var abstract abstractElement
		if err := p.dec.DecodeElement(&abstract, &t); err != nil {
			return err
		}
		if !isPublisherPlaceholder(&abstract) {
			p.emitAbstract(&abstract, abstract.Type)
		}

	case "AuthorList":
		var list authorListElement
		if err := p.dec.DecodeElement(&list, &t); err != nil {
			return err
		}
		for pos, author := range list.Authors {
			if parsed := p.parseAuthor(pos, &author); parsed != nil {
				p.emit(parsed)
			}
		}

	case "ChemicalList":
		var list chemicalListElement
		if err := p.dec.DecodeElement(&list, &t); err != nil {
			return err
		}
		for idx, chemical := range list.Chemicals {
			p.emit(p.parseChemical(idx, &chemical))
		}

	case "DataBank":
		var bank dataBankElement
		if err := p.dec.DecodeElement(&bank, &t); err != nil {
			return err
		}
		p.emitDataBank(&bank)

	case "ELocationID":
		var loc eLocationElement
		if err := p.dec.DecodeElement(&loc, &t); err != nil {
			return err
		}
		ns := strings.ToLower(strings.TrimSpace(loc.EIdType))
		if p.claimNamespace(ns) {
			p.emit(&domain.Identifier{ID: p.pmid, Namespace: ns, Value: strings.TrimSpace(loc.Text)})
		}

	case "OtherID":
		var other otherIDElement
		if err := p.dec.DecodeElement(&other, &t); err != nil {
			return err
		}
		if other.Source == "NLM" {
			text := strings.TrimSpace(other.Text)
			if strings.HasPrefix(text, "PMC") && p.claimNamespace("pmc") {
				value, _, _ := strings.Cut(text, " ")
				p.emit(&domain.Identifier{ID: p.pmid, Namespace: "pmc", Value: value})
			}
		}

	case "ArticleId":
		if p.mode != PubMed {
			return nil
		}
		var id articleIDElement
		if err := p.dec.DecodeElement(&id, &t); err != nil {
			return err
		}
		p.handleArticleID(&id)

	case "KeywordList":
		var list keywordListElement
		if err := p.dec.DecodeElement(&list, &t); err != nil {
			return err
		}
		p.emitKeywords(&list)

	case "MeshHeadingList":
		var list meshHeadingListElement
		if err := p.dec.DecodeElement(&list, &t); err != nil {
			return err
		}
		p.emitMeshHeadings(&list)

	case "PublicationType":
		var ptype publicationTypeElement
		if err := p.dec.DecodeElement(&ptype, &t); err != nil {
			return err
		}
		if text := strings.TrimSpace(ptype.Text); text != "" {
			p.emit(&domain.PublicationType{ID: p.pmid, Value: strings.ToUpper(text)})
		}
	}

	return nil
}

func (p *Parser) endElement(t xml.EndElement) error {
	switch t.Name.Local {
	case "MedlineCitation":
		switch p.state {
		case stateSkipping:
			if p.mode == Medline {
				p.state = stateUndefined
			}
		case stateParsing:
			citation, err := p.stash.build(p.pmid, p.logger)
			if err != nil {
				return err
			}
			p.emit(citation)
			if p.mode == Medline {
				p.state = stateUndefined
			}
		}

	case "PubmedArticle":
		if p.mode == PubMed {
			p.state = stateUndefined
		}
	}
	return nil
}

func (p *Parser) handlePMID(text string) error {
	pmid, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid PMID %q: %w", text, err)
	}

	switch p.state {
	case stateUndefined:
		p.logger.Debug().Int64("pmid", pmid).Msg("parsing citation")
		p.pmid = pmid
		p.namespaces = make(map[string]struct{})
		p.state = stateParsing
	case stateParsing:
		// a citation can reference other PMIDs, e.g. in CommentsCorrections
		p.logger.Debug().Int64("pmid", pmid).Msg("nested PMID reference")
	case stateSkipping:
		p.logger.Info().Int64("pmid", pmid).Msg("skipping citation")
	}
	return nil
}

func (p *Parser) emit(record domain.Record) {
	p.queue = append(p.queue, domain.Entry{Record: record})
}

// claimNamespace reserves an identifier namespace for the current citation;
// the first occurrence wins.
func (p *Parser) claimNamespace(ns string) bool {
	if _, taken := p.namespaces[ns]; taken {
		return false
	}
	p.namespaces[ns] = struct{}{}
	return true
}

var doiShape = regexp.MustCompile(`^\d[\d.]+/.+`)

func (p *Parser) handleArticleID(id *articleIDElement) {
	ns := strings.ToLower(strings.TrimSpace(id.IdType))
	text := strings.TrimSpace(id.Text)

	if _, taken := p.namespaces[ns]; taken {
		// a pre-claimed namespace carrying a DOI-shaped value is salvaged
		// as the doi identifier
		if doiShape.MatchString(text) && p.claimNamespace("doi") {
			p.emit(&domain.Identifier{ID: p.pmid, Namespace: "doi", Value: text})
			return
		}
		p.logger.Debug().Str("namespace", ns).Str("value", text).
			Msg("skipping duplicate identifier")
		return
	}

	p.namespaces[ns] = struct{}{}
	p.emit(&domain.Identifier{ID: p.pmid, Namespace: ns, Value: text})
}

// isPublisherPlaceholder detects OtherAbstract elements that only declare
// the abstract is available from the publisher.
func isPublisherPlaceholder(abstract *abstractElement) bool {
	return abstract.Type == "Publisher" &&
		abstract.Copyright == "" &&
		len(abstract.Children) == 1 &&
		abstract.Children[0].XMLName.Local == "AbstractText" &&
		strings.TrimSpace(abstract.Children[0].Text) == "Abstract available from the publisher."
}

// emitAbstract queues the Abstract record followed by its Sections, with the
// section sequence restarting at 1 for each abstract.
func (p *Parser) emitAbstract(abstract *abstractElement, source string) {
	var copyright *string
	if text := strings.TrimSpace(abstract.Copyright); text != "" {
		copyright = &text
	}

	p.emit(&domain.Abstract{ID: p.pmid, Source: source, Copyright: copyright})
	p.seq = 0

	for i := range abstract.Children {
		child := &abstract.Children[i]
		if child.XMLName.Local != "AbstractText" {
			continue
		}
		if strings.TrimSpace(child.Text) == "" {
			continue
		}
		p.emit(p.parseSection(child, source))
	}
}

func (p *Parser) parseSection(child *abstractChild, source string) *domain.Section {
	p.seq++
	name := child.NlmCategory
	if name == "" {
		name = "Unassigned"
	}

	content := strings.TrimSpace(child.Text)
	truncated := false
	if truncMsg.MatchString(content) {
		content = strings.TrimRight(truncMsg.ReplaceAllString(content, ""), " \t\n\r")
		truncated = true
		if content == "" {
			content = " " // the whole section was truncated away
		}
	}

	var label *string
	if child.Label != "" {
		value := child.Label
		label = &value
	}

	return &domain.Section{
		ID:        p.pmid,
		Source:    source,
		Seq:       p.seq,
		Name:      capitalize(name),
		Label:     label,
		Content:   content,
		Truncated: truncated,
	}
}

func (p *Parser) parseAuthor(pos int, author *authorElement) *domain.Author {
	var name, forename, initials, suffix *string

	for i := range author.Children {
		child := &author.Children[i]
		if child.Text == "" {
			p.logger.Warn().Int64("pmid", p.pmid).Str("element", child.XMLName.Local).
				Msg("empty Author element")
			continue
		}
		text := strings.TrimSpace(child.Text)

		switch child.XMLName.Local {
		case "LastName":
			name = &text
		case "ForeName":
			value := truncateRunes(text, 256)
			forename = &value
		case "Initials":
			initials = &text
		case "Suffix":
			suffix = &text
		case "CollectiveName":
			name = &text
			empty := ""
			forename, initials, suffix = &empty, &empty, &empty
		case "Identifier", "Affiliation", "AffiliationInfo":
			// not stored
		default:
			p.logger.Warn().Int64("pmid", p.pmid).Str("element", child.XMLName.Local).
				Str("value", text).Msg("unknown Author element")
		}
	}

	// prune a forename that merely repeats the initials
	if forename != nil && initials != nil {
		if *forename == *initials ||
			(*forename != "" && strings.ReplaceAll(*forename, " ", "") == *initials) {
			forename = nil
		}
	}

	if name == nil || *name == "" {
		p.logger.Warn().Int64("pmid", p.pmid).
			Msg("empty or missing Author LastName or CollectiveName")
		return nil
	}

	return &domain.Author{
		ID:       p.pmid,
		Pos:      pos + 1,
		Name:     *name,
		Initials: initials,
		Forename: forename,
		Suffix:   suffix,
	}
}

func (p *Parser) parseChemical(idx int, chemical *chemicalElement) *domain.Chemical {
	var uid *string
	if text := strings.TrimSpace(chemical.RegistryNumber); text != "" && text != "0" {
		uid = &text
	}

	return &domain.Chemical{
		ID:   p.pmid,
		Idx:  idx + 1,
		UID:  uid,
		Name: strings.TrimSpace(chemical.NameOfSubstance),
	}
}

func (p *Parser) emitDataBank(bank *dataBankElement) {
	name := strings.TrimSpace(bank.Name)
	if name == "" {
		return
	}

	seen := make(map[string]struct{}, len(bank.Accessions))
	for _, acc := range bank.Accessions {
		acc = strings.TrimSpace(acc)
		if acc == "" {
			continue
		}
		if _, dup := seen[acc]; dup {
			continue
		}
		seen[acc] = struct{}{}
		p.emit(&domain.DatabaseRef{ID: p.pmid, Name: name, Accession: acc})
	}
}

func (p *Parser) emitKeywords(list *keywordListElement) {
	owner := strings.ToUpper(strings.TrimSpace(list.Owner))
	if owner == "" {
		owner = "NLM"
	}

	// the count enumerates every Keyword element, so skipped empties still
	// consume their ordinal
	for cnt, keyword := range list.Keywords {
		text := strings.TrimSpace(keyword.Text)
		if i := strings.IndexByte(text, '\r'); i >= 0 {
			text = text[:i]
		}
		if text == "" {
			continue
		}
		p.emit(&domain.Keyword{
			ID:    p.pmid,
			Owner: owner,
			Cnt:   cnt + 1,
			Major: keyword.Major == "Y",
			Name:  text,
		})
	}
}

func (p *Parser) emitMeshHeadings(list *meshHeadingListElement) {
	for num, heading := range list.Headings {
		if text := strings.TrimSpace(heading.Descriptor.Text); text != "" {
			p.emit(&domain.Descriptor{
				ID:    p.pmid,
				Num:   num + 1,
				Major: heading.Descriptor.Major == "Y",
				Name:  text,
			})
		}

		// like keywords, skipped empties still consume their ordinal
		for sub, qualifier := range heading.Qualifiers {
			text := strings.TrimSpace(qualifier.Text)
			if text == "" {
				continue
			}
			p.emit(&domain.Qualifier{
				ID:    p.pmid,
				Num:   num + 1,
				Sub:   sub + 1,
				Major: qualifier.Major == "Y",
				Name:  text,
			})
		}
	}
}

// citationStash accumulates the citation root fields while the child
// elements of one MedlineCitation stream by.
type citationStash struct {
	status     string
	created    *time.Time
	completed  *time.Time
	revised    *time.Time
	journal    string
	title      string
	vernacular string
	pubDate    string
	issue      *string
	pagination *string
}

func (s *citationStash) build(pmid int64, logger zerolog.Logger) (*domain.Citation, error) {
	if s.created == nil {
		return nil, fmt.Errorf("citation %d has no DateCreated", pmid)
	}
	if s.journal == "" {
		return nil, fmt.Errorf("citation %d has no MedlineTA journal name", pmid)
	}
	if s.pubDate == "" {
		return nil, fmt.Errorf("citation %d has no publication date", pmid)
	}

	title := s.title
	if title == "" && s.vernacular != "" {
		// some records violate the DTD with an empty ArticleTitle but
		// carry a VernacularTitle
		logger.Info().Int64("pmid", pmid).Msg("no ArticleTitle; using VernacularTitle")
		title = s.vernacular
	}
	if title == "" {
		logger.Warn().Int64("pmid", pmid).Msg("could not find any title")
		title = "UNKNOWN"
	}

	return &domain.Citation{
		ID:         pmid,
		Status:     s.status,
		Title:      title,
		Journal:    s.journal,
		PubDate:    s.pubDate,
		Issue:      s.issue,
		Pagination: s.pagination,
		Created:    *s.created,
		Completed:  s.completed,
		Revised:    s.revised,
	}, nil
}

func (p *Parser) decodeDate(t *xml.StartElement, target **time.Time) error {
	var e dateElement
	if err := p.dec.DecodeElement(&e, t); err != nil {
		return err
	}
	date, err := resolveDate(&e, p.logger)
	if err != nil {
		return err
	}
	*target = &date
	return nil
}

// parsePubDate renders the publication date as text: a verbatim MedlineDate
// when present, otherwise the year followed by the season or the month and
// day.
func parsePubDate(e *pubDateElement) (string, error) {
	if text := strings.TrimSpace(e.MedlineDate); text != "" {
		return text, nil
	}

	year := strings.TrimSpace(e.Year)
	if year == "" {
		return "", errors.New("PubDate has neither MedlineDate nor Year")
	}

	parts := []string{year}
	if season := strings.TrimSpace(e.Season); season != "" {
		parts = append(parts, season)
	} else if month := strings.TrimSpace(e.Month); month != "" {
		parts = append(parts, month)
		if day := strings.TrimSpace(e.Day); day != "" {
			parts = append(parts, day)
		}
	}
	return strings.Join(parts, " "), nil
}

// parseIssue renders "volume(issue)", the volume alone, or the issue alone.
func parseIssue(e *journalIssueElement) *string {
	volume := strings.TrimSpace(e.Volume)
	number := strings.TrimSpace(e.Issue)

	var issue string
	switch {
	case volume != "" && number != "":
		issue = fmt.Sprintf("%s(%s)", volume, number)
	case volume != "":
		issue = volume
	case number != "":
		issue = number
	default:
		return nil
	}
	return &issue
}

func attrValue(t xml.StartElement, name string) string {
	for _, attr := range t.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
