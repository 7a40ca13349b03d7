package medline

import (
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmedline/medmirror/internal/domain"
)

const medlineSample = `<MedlineCitationSet>
<MedlineCitation Owner="NLM" Status="MEDLINE">
<PMID Version="1">1</PMID>
<DateCreated><Year>2013</Year><Month>06</Month><Day>17</Day></DateCreated>
<DateCompleted><Year>2013</Year><Month>Jul</Month><Day>18</Day></DateCompleted>
<Article PubModel="Print">
<Journal>
<JournalIssue CitedMedium="Print">
<Volume>12</Volume>
<Issue>3</Issue>
<PubDate><Year>2010</Year><Month>Jan</Month></PubDate>
</JournalIssue>
<Title>Journal of Testing</Title>
</Journal>
<ArticleTitle>A test citation.</ArticleTitle>
<Pagination><MedlinePgn>11-16</MedlinePgn></Pagination>
<Abstract>
<AbstractText Label="BACKGROUND" NlmCategory="BACKGROUND">Background text.</AbstractText>
<AbstractText Label="METHODS" NlmCategory="METHODS">Methods text. (ABSTRACT TRUNCATED AT 250 WORDS)</AbstractText>
<CopyrightInformation>(c) 2010 Testing Inc.</CopyrightInformation>
</Abstract>
<AuthorList CompleteYN="Y">
<Author ValidYN="Y"><LastName>Doe</LastName><ForeName>J D</ForeName><Initials>JD</Initials></Author>
<Author ValidYN="Y"><CollectiveName>The Test Consortium</CollectiveName></Author>
</AuthorList>
<PublicationTypeList>
<PublicationType>Journal Article</PublicationType>
<PublicationType>Journal Article</PublicationType>
</PublicationTypeList>
<ELocationID EIdType="doi">10.1000/test.1</ELocationID>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
<ChemicalList>
<Chemical><RegistryNumber>0</RegistryNumber><NameOfSubstance>Water</NameOfSubstance></Chemical>
<Chemical><RegistryNumber>EC 2.7.11.1</RegistryNumber><NameOfSubstance>Kinases</NameOfSubstance></Chemical>
</ChemicalList>
<MeshHeadingList>
<MeshHeading>
<DescriptorName MajorTopicYN="Y">Testing</DescriptorName>
<QualifierName MajorTopicYN="N">methods</QualifierName>
<QualifierName MajorTopicYN="Y">standards</QualifierName>
</MeshHeading>
</MeshHeadingList>
<OtherID Source="NLM">PMC1234567 [Available on 01/01/14]</OtherID>
<KeywordList Owner="NOTNLM">
<Keyword MajorTopicYN="Y">first keyword</Keyword>
<Keyword> </Keyword>
<Keyword MajorTopicYN="N">third keyword</Keyword>
</KeywordList>
</MedlineCitation>
<DeleteCitation><PMID>555</PMID></DeleteCitation>
</MedlineCitationSet>`

func parseEntries(t *testing.T, doc string, mode Mode, unique bool) []domain.Entry {
	t.Helper()

	parser := NewParser(strings.NewReader(doc), mode, unique, zerolog.Nop())
	var entries []domain.Entry
	for parser.Scan() {
		entries = append(entries, parser.Entry())
	}
	require.NoError(t, parser.Err())
	return entries
}

func recordsOf[T domain.Record](entries []domain.Entry) []T {
	var out []T
	for _, entry := range entries {
		if entry.Record == nil {
			continue
		}
		if record, ok := entry.Record.(T); ok {
			out = append(out, record)
		}
	}
	return out
}

func TestParser_MedlineCitation(t *testing.T) {
	entries := parseEntries(t, medlineSample, Medline, true)

	citations := recordsOf[*domain.Citation](entries)
	require.Len(t, citations, 1)
	citation := citations[0]

	t.Run("citation root fields", func(t *testing.T) {
		assert.Equal(t, int64(1), citation.ID)
		assert.Equal(t, "MEDLINE", citation.Status)
		assert.Equal(t, "A test citation.", citation.Title)
		assert.Equal(t, "J Test", citation.Journal)
		assert.Equal(t, "2010 Jan", citation.PubDate)
		assert.Equal(t, 2010, citation.Year())
		require.NotNil(t, citation.Issue)
		assert.Equal(t, "12(3)", *citation.Issue)
		require.NotNil(t, citation.Pagination)
		assert.Equal(t, "11-16", *citation.Pagination)
		assert.Equal(t, "2013-06-17", citation.Created.Format("2006-01-02"))
		require.NotNil(t, citation.Completed)
		assert.Equal(t, "2013-07-18", citation.Completed.Format("2006-01-02"))
		assert.Nil(t, citation.Revised)
	})

	t.Run("citation root is emitted after its children", func(t *testing.T) {
		var lastRecord domain.Record
		for _, entry := range entries {
			if entry.Record != nil {
				lastRecord = entry.Record
			}
		}
		assert.Same(t, citation, lastRecord)
	})

	t.Run("abstract and sections", func(t *testing.T) {
		abstracts := recordsOf[*domain.Abstract](entries)
		require.Len(t, abstracts, 1)
		assert.Equal(t, "NLM", abstracts[0].Source)
		require.NotNil(t, abstracts[0].Copyright)
		assert.Equal(t, "(c) 2010 Testing Inc.", *abstracts[0].Copyright)

		sections := recordsOf[*domain.Section](entries)
		require.Len(t, sections, 2)
		assert.Equal(t, 1, sections[0].Seq)
		assert.Equal(t, "Background", sections[0].Name)
		require.NotNil(t, sections[0].Label)
		assert.Equal(t, "BACKGROUND", *sections[0].Label)
		assert.Equal(t, "Background text.", sections[0].Content)
		assert.False(t, sections[0].Truncated)

		assert.Equal(t, 2, sections[1].Seq)
		assert.Equal(t, "Methods text.", sections[1].Content)
		assert.True(t, sections[1].Truncated)
	})

	t.Run("authors", func(t *testing.T) {
		authors := recordsOf[*domain.Author](entries)
		require.Len(t, authors, 2)

		assert.Equal(t, 1, authors[0].Pos)
		assert.Equal(t, "Doe", authors[0].Name)
		require.NotNil(t, authors[0].Initials)
		assert.Equal(t, "JD", *authors[0].Initials)
		// "J D" collapses to the initials, so the forename is pruned
		assert.Nil(t, authors[0].Forename)

		assert.Equal(t, 2, authors[1].Pos)
		assert.Equal(t, "The Test Consortium", authors[1].Name)
		require.NotNil(t, authors[1].Forename)
		assert.Empty(t, *authors[1].Forename)
		require.NotNil(t, authors[1].Initials)
		assert.Empty(t, *authors[1].Initials)
		require.NotNil(t, authors[1].Suffix)
		assert.Empty(t, *authors[1].Suffix)
	})

	t.Run("chemicals", func(t *testing.T) {
		chemicals := recordsOf[*domain.Chemical](entries)
		require.Len(t, chemicals, 2)

		assert.Equal(t, 1, chemicals[0].Idx)
		assert.Equal(t, "Water", chemicals[0].Name)
		assert.Nil(t, chemicals[0].UID)

		assert.Equal(t, 2, chemicals[1].Idx)
		require.NotNil(t, chemicals[1].UID)
		assert.Equal(t, "EC 2.7.11.1", *chemicals[1].UID)
	})

	t.Run("mesh headings", func(t *testing.T) {
		descriptors := recordsOf[*domain.Descriptor](entries)
		require.Len(t, descriptors, 1)
		assert.Equal(t, 1, descriptors[0].Num)
		assert.True(t, descriptors[0].Major)
		assert.Equal(t, "Testing", descriptors[0].Name)

		qualifiers := recordsOf[*domain.Qualifier](entries)
		require.Len(t, qualifiers, 2)
		assert.Equal(t, 1, qualifiers[0].Sub)
		assert.Equal(t, "methods", qualifiers[0].Name)
		assert.False(t, qualifiers[0].Major)
		assert.Equal(t, 2, qualifiers[1].Sub)
		assert.True(t, qualifiers[1].Major)
	})

	t.Run("identifiers", func(t *testing.T) {
		identifiers := recordsOf[*domain.Identifier](entries)
		require.Len(t, identifiers, 2)

		byNS := map[string]string{}
		for _, id := range identifiers {
			byNS[id.Namespace] = id.Value
		}
		assert.Equal(t, "10.1000/test.1", byNS["doi"])
		// only the accession token before the first space is kept
		assert.Equal(t, "PMC1234567", byNS["pmc"])
	})

	t.Run("keywords skip empties but keep their ordinal", func(t *testing.T) {
		keywords := recordsOf[*domain.Keyword](entries)
		require.Len(t, keywords, 2)
		assert.Equal(t, "NOTNLM", keywords[0].Owner)
		assert.Equal(t, 1, keywords[0].Cnt)
		assert.True(t, keywords[0].Major)
		assert.Equal(t, "first keyword", keywords[0].Name)
		assert.Equal(t, 3, keywords[1].Cnt)
		assert.False(t, keywords[1].Major)
	})

	t.Run("publication types are uppercased and not deduplicated here", func(t *testing.T) {
		ptypes := recordsOf[*domain.PublicationType](entries)
		require.Len(t, ptypes, 2)
		assert.Equal(t, "JOURNAL ARTICLE", ptypes[0].Value)
		assert.Equal(t, "JOURNAL ARTICLE", ptypes[1].Value)
	})

	t.Run("deletion notice", func(t *testing.T) {
		require.True(t, entries[len(entries)-1].IsDelete())
		assert.Equal(t, int64(555), entries[len(entries)-1].Delete)
	})
}

func TestParser_VersionSkip(t *testing.T) {
	doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE" VersionID="2">
<PMID Version="2">10</PMID>
<DateCreated><Year>2013</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2013</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Versioned citation.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
<MedlineCitation Status="MEDLINE" VersionID="1">
<PMID Version="1">11</PMID>
<DateCreated><Year>2013</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2013</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Current citation.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
<DeleteCitation><PMID>555</PMID><PMID>556</PMID></DeleteCitation>
</MedlineCitationSet>`

	t.Run("unique mode drops non-current versions", func(t *testing.T) {
		entries := parseEntries(t, doc, Medline, true)

		citations := recordsOf[*domain.Citation](entries)
		require.Len(t, citations, 1)
		assert.Equal(t, int64(11), citations[0].ID)

		var deletes []int64
		for _, entry := range entries {
			if entry.IsDelete() {
				deletes = append(deletes, entry.Delete)
			}
		}
		assert.Equal(t, []int64{555, 556}, deletes)
	})

	t.Run("non-unique mode keeps every version", func(t *testing.T) {
		entries := parseEntries(t, doc, Medline, false)

		citations := recordsOf[*domain.Citation](entries)
		require.Len(t, citations, 2)
		assert.Equal(t, int64(10), citations[0].ID)
		assert.Equal(t, int64(11), citations[1].ID)
	})
}

func TestParser_TitleFallbacks(t *testing.T) {
	t.Run("vernacular title replaces an empty article title", func(t *testing.T) {
		doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">22536004</PMID>
<DateCreated><Year>2012</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2012</Year></PubDate></JournalIssue></Journal>
<ArticleTitle></ArticleTitle>
<VernacularTitle>Titre vernaculaire.</VernacularTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
</MedlineCitationSet>`

		entries := parseEntries(t, doc, Medline, true)
		citations := recordsOf[*domain.Citation](entries)
		require.Len(t, citations, 1)
		assert.Equal(t, "Titre vernaculaire.", citations[0].Title)
	})

	t.Run("missing titles fall back to UNKNOWN", func(t *testing.T) {
		doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">12</PMID>
<DateCreated><Year>2012</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2012</Year></PubDate></JournalIssue></Journal>
<ArticleTitle></ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
</MedlineCitationSet>`

		entries := parseEntries(t, doc, Medline, true)
		citations := recordsOf[*domain.Citation](entries)
		require.Len(t, citations, 1)
		assert.Equal(t, "UNKNOWN", citations[0].Title)
	})
}

func TestParser_OtherAbstract(t *testing.T) {
	doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">13</PMID>
<DateCreated><Year>2012</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2012</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Abstracts.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
<OtherAbstract Type="Publisher">
<AbstractText>Abstract available from the publisher.</AbstractText>
</OtherAbstract>
<OtherAbstract Type="NASA">
<AbstractText>Observed from orbit.</AbstractText>
</OtherAbstract>
</MedlineCitation>
</MedlineCitationSet>`

	entries := parseEntries(t, doc, Medline, true)

	abstracts := recordsOf[*domain.Abstract](entries)
	require.Len(t, abstracts, 1, "the publisher placeholder must be dropped")
	assert.Equal(t, "NASA", abstracts[0].Source)

	sections := recordsOf[*domain.Section](entries)
	require.Len(t, sections, 1)
	assert.Equal(t, "NASA", sections[0].Source)
	assert.Equal(t, 1, sections[0].Seq)
	assert.Equal(t, "Unassigned", sections[0].Name)
	assert.Equal(t, "Observed from orbit.", sections[0].Content)
}

func TestParser_FullyTruncatedSection(t *testing.T) {
	doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">14</PMID>
<DateCreated><Year>2012</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2012</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Truncated.</ArticleTitle>
<Abstract>
<AbstractText>(ABSTRACT TRUNCATED AT 400 WORDS)</AbstractText>
</Abstract>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
</MedlineCitationSet>`

	entries := parseEntries(t, doc, Medline, true)
	sections := recordsOf[*domain.Section](entries)
	require.Len(t, sections, 1)
	assert.True(t, sections[0].Truncated)
	assert.Equal(t, " ", sections[0].Content, "fully truncated content keeps a placeholder")
}

func TestParser_PubMedArticleIDs(t *testing.T) {
	doc := `<PubmedArticleSet>
<PubmedArticle>
<MedlineCitation Status="PubMed-not-MEDLINE">
<PMID Version="1">20</PMID>
<DateCreated><Year>2013</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2013</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Online record.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
<PubmedData>
<ArticleIdList>
<ArticleId IdType="pubmed">20</ArticleId>
<ArticleId IdType="pubmed">10.1000/j.test.20</ArticleId>
<ArticleId IdType="pubmed">10.1000/j.test.duplicate</ArticleId>
</ArticleIdList>
</PubmedData>
</PubmedArticle>
<PubmedArticle>
<MedlineCitation Status="PubMed-not-MEDLINE">
<PMID Version="1">21</PMID>
<DateCreated><Year>2013</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2013</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Second online record.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
<PubmedData>
<ArticleIdList>
<ArticleId IdType="doi">10.1000/j.test.21</ArticleId>
</ArticleIdList>
</PubmedData>
</PubmedArticle>
</PubmedArticleSet>`

	entries := parseEntries(t, doc, PubMed, true)

	citations := recordsOf[*domain.Citation](entries)
	require.Len(t, citations, 2)

	identifiers := recordsOf[*domain.Identifier](entries)
	byPMID := map[int64]map[string]string{}
	for _, id := range identifiers {
		if byPMID[id.ID] == nil {
			byPMID[id.ID] = map[string]string{}
		}
		byPMID[id.ID][id.Namespace] = id.Value
	}

	t.Run("duplicate namespace with DOI shape becomes the doi identifier", func(t *testing.T) {
		require.Len(t, byPMID[20], 2)
		assert.Equal(t, "20", byPMID[20]["pubmed"])
		assert.Equal(t, "10.1000/j.test.20", byPMID[20]["doi"])
	})

	t.Run("identifier namespaces reset per article", func(t *testing.T) {
		require.Len(t, byPMID[21], 1)
		assert.Equal(t, "10.1000/j.test.21", byPMID[21]["doi"])
	})
}

func TestParser_QualifierOrdinalGaps(t *testing.T) {
	doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">15</PMID>
<DateCreated><Year>2012</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2012</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Qualifiers.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
<MeshHeadingList>
<MeshHeading>
<DescriptorName MajorTopicYN="N">Testing</DescriptorName>
<QualifierName MajorTopicYN="N">methods</QualifierName>
<QualifierName MajorTopicYN="N"> </QualifierName>
<QualifierName MajorTopicYN="Y">standards</QualifierName>
</MeshHeading>
</MeshHeadingList>
</MedlineCitation>
</MedlineCitationSet>`

	entries := parseEntries(t, doc, Medline, true)
	qualifiers := recordsOf[*domain.Qualifier](entries)
	require.Len(t, qualifiers, 2)
	assert.Equal(t, "methods", qualifiers[0].Name)
	assert.Equal(t, 1, qualifiers[0].Sub)
	assert.Equal(t, "standards", qualifiers[1].Name)
	assert.Equal(t, 3, qualifiers[1].Sub, "an empty qualifier still consumes its ordinal")
}

// corruptReader yields its payload and then fails the way a broken gzip
// stream does, instead of returning io.EOF.
type corruptReader struct {
	r   io.Reader
	err error
}

func (c *corruptReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		err = c.err
	}
	return n, err
}

func TestParser_CorruptCompressedStream(t *testing.T) {
	doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">40</PMID>
<DateCreated><Year>2013</Year></DateCreated>
<Article>
<Journal><JournalIssue><PubDate><Year>2013</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>Complete before the corruption.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">41</PMID>
<DateCreated><Year>2013</Year>`

	for _, cause := range []error{gzip.ErrChecksum, gzip.ErrHeader, io.ErrUnexpectedEOF} {
		t.Run(cause.Error(), func(t *testing.T) {
			parser := NewParser(&corruptReader{r: strings.NewReader(doc), err: cause}, Medline, true, zerolog.Nop())
			var entries []domain.Entry
			for parser.Scan() {
				entries = append(entries, parser.Entry())
			}
			require.NoError(t, parser.Err(), "a corrupt archive ends the scan without failing it")

			citations := recordsOf[*domain.Citation](entries)
			require.Len(t, citations, 1)
			assert.Equal(t, int64(40), citations[0].ID)
		})
	}
}

func TestParser_TruncatedStream(t *testing.T) {
	doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">30</PMID>
<DateCreated><Year>2013</Year></DateCreated>`

	parser := NewParser(strings.NewReader(doc), Medline, true, zerolog.Nop())
	for parser.Scan() {
	}
	assert.Error(t, parser.Err())
}

func TestParser_MissingDateCreated(t *testing.T) {
	doc := `<MedlineCitationSet>
<MedlineCitation Status="MEDLINE">
<PMID Version="1">31</PMID>
<Article>
<Journal><JournalIssue><PubDate><Year>2013</Year></PubDate></JournalIssue></Journal>
<ArticleTitle>No creation date.</ArticleTitle>
</Article>
<MedlineJournalInfo><MedlineTA>J Test</MedlineTA></MedlineJournalInfo>
</MedlineCitation>
</MedlineCitationSet>`

	parser := NewParser(strings.NewReader(doc), Medline, true, zerolog.Nop())
	for parser.Scan() {
	}
	require.Error(t, parser.Err())
	assert.Contains(t, parser.Err().Error(), "DateCreated")
}
