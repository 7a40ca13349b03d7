// Package render writes stored citation aggregates as a self-contained HTML
// document.
package render

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openmedline/medmirror/internal/domain"
)

// databankLink maps databank names to the base URL their accession numbers
// attach to. Names without a stable link target map to "#".
var databankLink = map[string]string{
	"DOI":                 "http://dx.doi.org/",
	"GDB":                 "#",
	"GENBANK":             "http://www.ncbi.nlm.nih.gov/nucgss/",
	"OMIM":                "http://omim.org/entry/",
	"PDB":                 "http://www.rcsb.org/pdb/explore/explore.do?structureId=",
	"PIR":                 "#",
	"PMC":                 "http://www.ncbi.nlm.nih.gov/pmc/articles/",
	"RefSeq":              "http://www.ncbi.nlm.nih.gov/nuccore/",
	"SWISSPROT":           "http://www.uniprot.org/uniprot/",
	"ClinicalTrials.gov":  "#",
	"ISRCTN":              "#",
	"GEO":                 "#",
	"PubChem-Substance":   "http://pubchem.ncbi.nlm.nih.gov/summary/summary.cgi?sid=",
	"PubChem-Compound":    "http://pubchem.ncbi.nlm.nih.gov/summary/summary.cgi?cid=",
	"PubChem-BioAssay":    "http://pubchem.ncbi.nlm.nih.gov/assay/assay.cgi?aid=",
	"PubMed":              "http://www.ncbi.nlm.nih.gov/pubmed/",
}

// keywordGroup collects the keywords of one owner for rendering.
type keywordGroup struct {
	Owner    string
	Keywords []*domain.Keyword
}

// citationView augments an aggregate with precomputed rendering fields.
type citationView struct {
	*domain.CitationAggregate
	Reference     string
	ArticleLink   template.URL
	KeywordGroups []keywordGroup
}

// HTML renders citation aggregates into an HTML document.
type HTML struct {
	tmpl   *template.Template
	logger zerolog.Logger
}

// NewHTML creates an HTML renderer.
func NewHTML(logger zerolog.Logger) *HTML {
	funcs := template.FuncMap{
		"upper": func(s *string) string {
			if s == nil {
				return ""
			}
			return strings.ToUpper(*s)
		},
		"databank": func(name string) template.URL {
			base, ok := databankLink[name]
			if !ok {
				logger.Error().Str("name", name).Msg("unknown databank name")
				base = "#"
			}
			return template.URL(base)
		},
	}
	return &HTML{
		tmpl:   template.Must(template.New("citations").Funcs(funcs).Parse(documentTemplate)),
		logger: logger,
	}
}

// Write renders the aggregates as one HTML document.
func (h *HTML) Write(w io.Writer, aggregates []*domain.CitationAggregate) error {
	views := make([]*citationView, len(aggregates))
	for i, aggregate := range aggregates {
		h.logger.Debug().Int64("pmid", aggregate.ID).Msg("rendering citation")
		views[i] = newCitationView(aggregate)
	}

	if err := h.tmpl.Execute(w, views); err != nil {
		return fmt.Errorf("failed to render citations: %w", err)
	}
	return nil
}

func newCitationView(aggregate *domain.CitationAggregate) *citationView {
	view := &citationView{
		CitationAggregate: aggregate,
		Reference:         aggregate.Journal + ", " + aggregate.CitationLine(),
	}

	// prefer a DOI link for the citation header, then PMC
	if doi, ok := aggregate.Identifiers["doi"]; ok {
		view.ArticleLink = template.URL(databankLink["DOI"] + doi.Value)
	} else if pmc, ok := aggregate.Identifiers["pmc"]; ok {
		view.ArticleLink = template.URL(databankLink["PMC"] + pmc.Value)
	}

	for _, keyword := range aggregate.Keywords {
		if n := len(view.KeywordGroups); n == 0 || view.KeywordGroups[n-1].Owner != keyword.Owner {
			view.KeywordGroups = append(view.KeywordGroups, keywordGroup{Owner: keyword.Owner})
		}
		last := &view.KeywordGroups[len(view.KeywordGroups)-1]
		last.Keywords = append(last.Keywords, keyword)
	}
	return view
}

const documentTemplate = `<!doctype html>
<html><head>
  <meta charset="UTF-8"/>
  <title>PubMed Articles</title>
  <script>
function toggle(e) {
    if (e.style.display == 'none')
        e.style.display = 'block'
    else
        e.style.display = 'none'
}
function toggleAll(items) {
    for (var i = items.length; i--; i != 0) {
      toggle(items.item(i))
    }
}
function toggleVisibility(pmid, target) {
    var metadata = document.getElementById(
      pmid
    ).getElementsByTagName('div').item(0)
    var elements = metadata.childNodes;
    for (i = elements.length; i--; i != 0) {
      var e = elements.item(i)
      if (typeof(e.getAttribute) != 'undefined' &&
          e.getAttribute("class") == target) {
        toggle(e)
      }
    }
  }
  </script>
</head><body>
{{- range .}}
<article id="{{.ID}}">
  {{- if .ArticleLink}}
  <p class="citation"><small><a href="{{.ArticleLink}}">{{.Reference}}</a> ({{range $i, $pt := .PublicationTypes}}{{if $i}}, {{end}}{{$pt}}{{end}}, PMID:{{.ID}})</small></p>
  {{- else}}
  <p class="citation"><small>{{.Reference}} ({{range $i, $pt := .PublicationTypes}}{{if $i}}, {{end}}{{$pt}}{{end}}, PMID:{{.ID}})</small></p>
  {{- end}}
  <h1><a href="http://www.ncbi.nlm.nih.gov/pubmed/{{.ID}}">{{.Title}}</a></h1>
  <ol>
  {{- range .Authors}}
    <li>{{.FullName}}</li>
  {{- end}}
  </ol>
  {{- range .Abstracts}}
  <h3>{{.Source}} Abstract</h3>
  {{- range .Sections}}
  <p title="{{.Name}}">{{if .Label}}{{upper .Label}}<br/>{{end}}{{.Content}}</p>
  {{- end}}
  {{- if .Copyright}}
  <p title="Copyright"><small>{{.Copyright}}</small></p>
  {{- end}}
  {{- end}}
  <div title="Metadata">
    {{- if .Descriptors}}
    <button onclick="toggleVisibility({{.ID}}, 'mesh')">MeSH Terms</button>
    {{- end}}
    {{- if .KeywordGroups}}
    <button onclick="toggleVisibility({{.ID}}, 'kwds')">Keywords</button>
    {{- end}}
    {{- if .Chemicals}}
    <button onclick="toggleVisibility({{.ID}}, 'chem')">Chemicals</button>
    {{- end}}
    {{- if .Databases}}
    <button onclick="toggleVisibility({{.ID}}, 'xref')">DB Links</button>
    {{- end}}
    {{- if .Identifiers}}
    <button onclick="toggleVisibility({{.ID}}, 'ids')">Article IDs</button>
    {{- end}}
    {{- if .Descriptors}}
    <dl class="mesh">
    {{- range .Descriptors}}
      <dt>{{if .Major}}<b>{{.Name}}</b>{{else}}{{.Name}}{{end}}</dt><dd><ol>
      {{- range .Qualifiers}}
        <li>{{if .Major}}<b>{{.Name}}</b>{{else}}{{.Name}}{{end}}</li>
      {{- end}}
      </ol></dd>
    {{- end}}
    </dl>
    {{- end}}
    {{- if .Chemicals}}
    <ul class="chem">
    {{- range .Chemicals}}
      <li>{{.Name}}{{if .UID}} ({{.UID}}){{end}}</li>
    {{- end}}
    </ul>
    {{- end}}
    {{- if .KeywordGroups}}
    <dl class="kwds">
    {{- range .KeywordGroups}}
      <dt>{{.Owner}}</dt><dd><ul>
      {{- range .Keywords}}
        <li>{{if .Major}}<b>{{.Name}}</b>{{else}}{{.Name}}{{end}}</li>
      {{- end}}
      </ul></dd>
    {{- end}}
    </dl>
    {{- end}}
    {{- if .Databases}}
    <ul class="xref">
    {{- range .Databases}}
      <li>{{.Name}} <a href="{{databank .Name}}{{.Accession}}">{{.Accession}}</a></li>
    {{- end}}
    </ul>
    {{- end}}
    {{- if .Identifiers}}
    <ul class="ids">
    {{- range $ns, $id := .Identifiers}}
      {{- if eq $ns "doi"}}
      <li><a href="http://dx.doi.org/{{$id.Value}}">{{$id.Value}}</a></li>
      {{- else if eq $ns "pmc"}}
      <li><a href="http://www.ncbi.nlm.nih.gov/pmc/articles/{{$id.Value}}">{{$id.Value}}</a></li>
      {{- else}}
      <li>{{$ns}}:{{$id.Value}}</li>
      {{- end}}
    {{- end}}
    </ul>
    {{- end}}
  </div>
</article><hr/>
{{- end}}
  <script>
window.onload = function() {
    toggleAll(document.getElementsByTagName("ul"))
    toggleAll(document.getElementsByTagName("dl"))
}
  </script>
</body></html>
`
