package report

import (
	"fmt"
	"io"
	"slices"
	"text/template"
	"time"

	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/storage"
)

// Position is where one marked host stood in a stored run.
// Found is false when the host had no result at all.
type Position struct {
	Host           string `json:"host"`
	Found          bool   `json:"found"`
	BestRank       int    `json:"best_rank,omitempty"`
	BestPage       int    `json:"best_page,omitempty"`
	Count          int    `json:"count,omitempty"`
	Advertisements int    `json:"advertisements,omitempty"`
}

// Trend is the position of every marked host in one stored run.
type Trend struct {
	RunID       string     `json:"run_id"`
	RequestedAt time.Time  `json:"requested_at"`
	Total       int        `json:"total"`
	Positions   []Position `json:"positions"`
}

// BuildTrend computes the positions of the marked hosts for each snapshot,
// oldest run first.
func BuildTrend(snapshots []*storage.Snapshot, marked ranking.HostSet) []Trend {
	hosts := marked.Sorted()
	trend := make([]Trend, 0, len(snapshots))
	for _, s := range snapshots {
		summary := ranking.Aggregate(s.Results, marked, s.RequestedPages)
		t := Trend{
			RunID:       s.ID,
			RequestedAt: s.RequestedAt,
			Total:       summary.Total,
			Positions:   make([]Position, 0, len(hosts)),
		}
		for _, h := range hosts {
			p := Position{Host: h}
			if c, ok := summary.Cluster(h); ok {
				p.Found = true
				p.BestRank = c.BestRank
				p.BestPage = c.BestPage
				p.Count = c.Count
				p.Advertisements = c.Advertisements
			}
			t.Positions = append(t.Positions, p)
		}
		trend = append(trend, t)
	}
	slices.SortStableFunc(trend, func(a, b Trend) int {
		return a.RequestedAt.Compare(b.RequestedAt)
	})
	return trend
}

type historyView struct {
	Query string
	Runs  []Trend
}

const historyTmpl = `History: {{.Query}}
{{- range .Runs}}

{{date .RequestedAt}}  ({{.Total}} results, run {{.RunID}})
{{- range .Positions}}
{{- if .Found}}
  * {{.Host}}: best rank {{.BestRank}} (page {{.BestPage}}), total {{.Count}} (ADV: {{.Advertisements}})
{{- else}}
  * {{.Host}}: not ranked
{{- end}}
{{- end}}
{{- else}}

No stored runs.
{{- end}}
`

var historyTemplate = template.Must(template.New("history").
	Funcs(template.FuncMap{"date": formatDate}).
	Parse(historyTmpl))

// WriteHistory writes the trend of the marked hosts across stored runs of query.
func WriteHistory(w io.Writer, query string, snapshots []*storage.Snapshot, marked ranking.HostSet) error {
	v := historyView{Query: query, Runs: BuildTrend(snapshots, marked)}
	if err := historyTemplate.Execute(w, v); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
