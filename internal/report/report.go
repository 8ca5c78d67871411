package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/rankwatch/internal/pagestore"
	"github.com/FranksOps/rankwatch/internal/ranking"
)

const dateLayout = "2006-01-02 15:04:05 MST"

// Report is everything a renderer needs to describe one analyzed query.
type Report struct {
	Run        pagestore.Manifest `json:"run"`
	Results    []ranking.Result   `json:"results"`
	Summary    ranking.Summary    `json:"summary"`
	Marked     ranking.HostSet    `json:"-"`
	AnalyzedAt time.Time          `json:"analyzed_at"`
}

// New aggregates results and wraps them with the run that produced them.
// results are merged once here, so input in any order is accepted.
func New(run pagestore.Manifest, results []ranking.Result, marked ranking.HostSet, analyzedAt time.Time) Report {
	results = ranking.Merge(results)
	return Report{
		Run:        run,
		Results:    results,
		Summary:    ranking.AggregateMerged(results, marked, run.RequestedPages),
		Marked:     marked,
		AnalyzedAt: analyzedAt,
	}
}

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name. An empty name means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatHTML, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// Extension is the file extension reports of this format are written with.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// Write renders r in format f.
func Write(w io.Writer, f Format, r Report) error {
	switch f {
	case FormatText, "":
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	case FormatXLSX:
		return WriteXLSX(w, r)
	default:
		return fmt.Errorf("report: unknown format %q", f)
	}
}

type jsonReport struct {
	Report
	Marked []string `json:"marked"`
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	if r.Results == nil {
		r.Results = []ranking.Result{}
	}
	if r.Summary.Clusters == nil {
		r.Summary.Clusters = []ranking.Cluster{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport{Report: r, Marked: r.Marked.Sorted()}); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

type row struct {
	Prefix        string
	Rank          int
	URI           string
	Advertisement bool
}

type pageView struct {
	Number int
	Rows   []row
}

type clusterView struct {
	ranking.Cluster
	Prefix string
	Label  string
}

// view flattens a Report into what the templates print.
type view struct {
	Engine         string
	Query          string
	QueryDate      string
	AnalysisDate   string
	Total          int
	Advertisements int
	PagesReached   int
	PagesRequested int
	Markers        []string
	Pages          []pageView
	Clusters       []clusterView
}

func prefix(marked bool) string {
	if marked {
		return "*"
	}
	return " "
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func newView(r Report) view {
	v := view{
		Engine:         r.Run.Engine,
		Query:          r.Run.Query,
		QueryDate:      formatDate(r.Run.RequestedAt),
		AnalysisDate:   formatDate(r.AnalyzedAt),
		Total:          r.Summary.Total,
		Advertisements: r.Summary.Advertisements,
		PagesReached:   r.Summary.PagesReached,
		PagesRequested: r.Summary.PagesRequested,
		Markers:        r.Marked.Sorted(),
	}

	for _, res := range r.Results {
		if n := len(v.Pages); n == 0 || v.Pages[n-1].Number != res.Page {
			v.Pages = append(v.Pages, pageView{Number: res.Page})
		}
		p := &v.Pages[len(v.Pages)-1]
		p.Rows = append(p.Rows, row{
			Prefix:        prefix(r.Marked.Contains(res.Host())),
			Rank:          res.Rank,
			URI:           res.URI,
			Advertisement: res.Advertisement,
		})
	}

	for _, c := range r.Summary.Clusters {
		label := c.Host
		if label == "" {
			label = "(no host)"
		}
		v.Clusters = append(v.Clusters, clusterView{Cluster: c, Prefix: prefix(c.Marked), Label: label})
	}
	return v
}

const textTmpl = `Overview
========
          URL: {{.Engine}}
        Query: {{.Query}}
   Query Date: {{.QueryDate}}
Analysis Date: {{.AnalysisDate}}
      Results: {{.Total}}
        Pages: {{.PagesReached}} / {{.PagesRequested}}
{{- if .Markers}}
 Host markers:
{{- range .Markers}}
    - {{.}}
{{- end}}
{{- end}}

Pages
======
{{range .Pages}}
  =================================== Page {{printf "%02d" .Number}} ===================================
{{- range .Rows}}
{{.Prefix}} {{printf "%03d" .Rank}}: {{if .Advertisement}}ADV{{else}}   {{end}} {{.URI}}
{{- end}}
{{- end}}

Statistic
=========
{{range .Clusters}}
{{.Prefix}} {{.Label}}
   -      total: {{.Count}} (ADV: {{.Advertisements}})
   - best rank: {{.BestRank}}
   - best page: {{.BestPage}}
{{- end}}
`

var textTemplate = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes the plain-text report: an overview, every result grouped
// by page and the per-host statistic. Rows of marked hosts start with '*'.
func WriteText(w io.Writer, r Report) error {
	if err := textTemplate.Execute(w, newView(r)); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
