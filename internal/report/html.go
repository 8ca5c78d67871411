package report

import (
	"fmt"
	"html/template"
	"io"
)

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Ranking Report: {{.Query}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 6px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  tr.marked { background: #fff3c4; font-weight: bold; }
  .adv { color: #b00; }
</style>
</head>
<body>
  <h1>Ranking Report: {{.Query}}</h1>
  <p><strong>Engine:</strong> {{.Engine}}</p>
  <p><strong>Query date:</strong> {{.QueryDate}} &middot; <strong>Analysis date:</strong> {{.AnalysisDate}}</p>
  {{- if .Markers}}
  <p><strong>Host markers:</strong>{{range .Markers}} <code>{{.}}</code>{{end}}</p>
  {{- end}}

  <div class="stat-card">
    <div>Results</div>
    <div class="stat-val">{{.Total}}</div>
  </div>
  <div class="stat-card">
    <div>Advertisements</div>
    <div class="stat-val">{{.Advertisements}}</div>
  </div>
  <div class="stat-card">
    <div>Pages</div>
    <div class="stat-val">{{.PagesReached}} / {{.PagesRequested}}</div>
  </div>

  <h3>Statistic</h3>
  <table>
    <tr><th>Host</th><th>Total</th><th>ADV</th><th>Best rank</th><th>Best page</th></tr>
    {{- range .Clusters}}
    <tr{{if .Marked}} class="marked"{{end}}><td>{{.Label}}</td><td>{{.Count}}</td><td>{{.Advertisements}}</td><td>{{.BestRank}}</td><td>{{.BestPage}}</td></tr>
    {{- else}}
    <tr><td colspan="5">No results</td></tr>
    {{- end}}
  </table>

  {{- range .Pages}}
  <h3>Page {{printf "%02d" .Number}}</h3>
  <table>
    <tr><th>Rank</th><th></th><th>URI</th></tr>
    {{- range .Rows}}
    <tr{{if eq .Prefix "*"}} class="marked"{{end}}><td>{{printf "%03d" .Rank}}</td><td>{{if .Advertisement}}<span class="adv">ADV</span>{{end}}</td><td>{{if .URI}}<a href="{{.URI}}">{{.URI}}</a>{{end}}</td></tr>
    {{- end}}
  </table>
  {{- end}}
</body>
</html>
`

var htmlTemplate = template.Must(template.New("htmlReport").Parse(htmlTmpl))

// WriteHTML writes a standalone HTML page. html/template escapes every URI
// taken from the captured pages.
func WriteHTML(w io.Writer, r Report) error {
	if err := htmlTemplate.Execute(w, newView(r)); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
