package medline

import "encoding/xml"

// Element shapes decoded wholesale by the parser. Only the fields the
// relational model needs are mapped; everything else is dropped by the
// XML decoder.

type deleteCitationElement struct {
	PMIDs []string `xml:"PMID"`
}

type dateElement struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type journalInfoElement struct {
	MedlineTA string `xml:"MedlineTA"`
}

type journalElement struct {
	Issue journalIssueElement `xml:"JournalIssue"`
}

type journalIssueElement struct {
	Volume  string         `xml:"Volume"`
	Issue   string         `xml:"Issue"`
	PubDate pubDateElement `xml:"PubDate"`
}

type pubDateElement struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	Season      string `xml:"Season"`
	MedlineDate string `xml:"MedlineDate"`
}

type paginationElement struct {
	MedlinePgn string `xml:"MedlinePgn"`
}

// abstractElement covers both Abstract and OtherAbstract. Children captures
// every child except CopyrightInformation so the publisher placeholder
// detection can count them.
type abstractElement struct {
	Type      string          `xml:"Type,attr"`
	Copyright string          `xml:"CopyrightInformation"`
	Children  []abstractChild `xml:",any"`
}

type abstractChild struct {
	XMLName     xml.Name
	Label       string `xml:"Label,attr"`
	NlmCategory string `xml:"NlmCategory,attr"`
	Text        string `xml:",chardata"`
}

type authorListElement struct {
	Authors []authorElement `xml:"Author"`
}

// authorElement keeps raw children so unknown or empty name parts can be
// reported per tag.
type authorElement struct {
	Children []authorChild `xml:",any"`
}

type authorChild struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

type chemicalListElement struct {
	Chemicals []chemicalElement `xml:"Chemical"`
}

type chemicalElement struct {
	RegistryNumber  string `xml:"RegistryNumber"`
	NameOfSubstance string `xml:"NameOfSubstance"`
}

type dataBankElement struct {
	Name       string   `xml:"DataBankName"`
	Accessions []string `xml:"AccessionNumberList>AccessionNumber"`
}

type eLocationElement struct {
	EIdType string `xml:"EIdType,attr"`
	Text    string `xml:",chardata"`
}

type otherIDElement struct {
	Source string `xml:"Source,attr"`
	Text   string `xml:",chardata"`
}

type articleIDElement struct {
	IdType string `xml:"IdType,attr"`
	Text   string `xml:",chardata"`
}

type keywordListElement struct {
	Owner    string           `xml:"Owner,attr"`
	Keywords []keywordElement `xml:"Keyword"`
}

type keywordElement struct {
	Major string `xml:"MajorTopicYN,attr"`
	Text  string `xml:",chardata"`
}

type meshHeadingListElement struct {
	Headings []meshHeadingElement `xml:"MeshHeading"`
}

type meshHeadingElement struct {
	Descriptor meshTermElement   `xml:"DescriptorName"`
	Qualifiers []meshTermElement `xml:"QualifierName"`
}

type meshTermElement struct {
	Major string `xml:"MajorTopicYN,attr"`
	Text  string `xml:",chardata"`
}

type publicationTypeElement struct {
	Text string `xml:",chardata"`
}
