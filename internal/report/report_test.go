package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/FranksOps/rankwatch/internal/pagestore"
	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/storage"
)

var (
	requestedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	analyzedAt  = time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
)

func sampleReport() Report {
	run := pagestore.Manifest{
		ID:             "run-1",
		Query:          "laufschuhe herren",
		Engine:         "https://www.google.com",
		RequestedAt:    requestedAt,
		RequestedPages: 2,
		FetchedPages:   2,
	}
	results := []ranking.Result{
		{Page: 1, Rank: 1, URI: "https://a.example/"},
		{Page: 1, Rank: 2, URI: "https://shop.example/"},
		{Page: 1, Rank: 3, URI: "https://a.example/2"},
		{Page: 2, Rank: 4, URI: "https://paid.example/", Advertisement: true},
		{Page: 2, Rank: 5, URI: "https://shop.example/x"},
	}
	return New(run, results, ranking.NewHostSet("shop.example"), analyzedAt)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `Overview
========
          URL: https://www.google.com
        Query: laufschuhe herren
   Query Date: 2024-05-01 10:00:00 UTC
Analysis Date: 2024-05-01 11:00:00 UTC
      Results: 5
        Pages: 2 / 2
 Host markers:
    - shop.example

Pages
======

  =================================== Page 01 ===================================
  001:     https://a.example/
* 002:     https://shop.example/
  003:     https://a.example/2
  =================================== Page 02 ===================================
  004: ADV https://paid.example/
* 005:     https://shop.example/x

Statistic
=========

  a.example
   -      total: 2 (ADV: 0)
   - best rank: 1
   - best page: 1
* shop.example
   -      total: 2 (ADV: 0)
   - best rank: 2
   - best page: 1
  paid.example
   -      total: 1 (ADV: 1)
   - best rank: 4
   - best page: 2
`
	if got := buf.String(); got != want {
		t.Errorf("unexpected text report:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestWriteText_Empty(t *testing.T) {
	r := New(pagestore.Manifest{Query: "q", Engine: "https://www.google.com", RequestedPages: 10}, nil, nil, analyzedAt)

	var buf bytes.Buffer
	if err := WriteText(&buf, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "      Results: 0\n") {
		t.Errorf("expected zero results, got:\n%s", out)
	}
	if !strings.Contains(out, "        Pages: 0 / 10\n") {
		t.Errorf("expected 0 / 10 pages, got:\n%s", out)
	}
	if strings.Contains(out, "Host markers") {
		t.Errorf("expected no host markers section without markers")
	}
	if !strings.Contains(out, "Statistic\n=========\n") {
		t.Errorf("expected statistic section to be present")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Run struct {
			Query string `json:"query"`
		} `json:"run"`
		Results []ranking.Result `json:"results"`
		Summary ranking.Summary  `json:"summary"`
		Marked  []string         `json:"marked"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Run.Query != "laufschuhe herren" {
		t.Errorf("unexpected query %q", decoded.Run.Query)
	}
	if len(decoded.Results) != 5 || decoded.Summary.Total != 5 {
		t.Errorf("expected 5 results, got %d / %d", len(decoded.Results), decoded.Summary.Total)
	}
	if len(decoded.Marked) != 1 || decoded.Marked[0] != "shop.example" {
		t.Errorf("unexpected marked hosts %v", decoded.Marked)
	}
	if !strings.Contains(buf.String(), "\n  \"run\"") {
		t.Errorf("expected indented JSON")
	}
}

func TestWriteJSON_EmptyArrays(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Report{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"results": []`) || !strings.Contains(out, `"clusters": []`) {
		t.Errorf("expected empty arrays instead of null, got %s", out)
	}
}

func TestWriteHTML(t *testing.T) {
	r := sampleReport()
	r.Results = append(r.Results, ranking.Result{Page: 2, Rank: 6, URI: `https://evil.example/"><script>alert(1)</script>`})

	var buf bytes.Buffer
	if err := WriteHTML(&buf, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Ranking Report: laufschuhe herren</title>") {
		t.Errorf("expected HTML title")
	}
	if !strings.Contains(out, `<tr class="marked"><td>shop.example</td>`) {
		t.Errorf("expected marked host row in statistic table")
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Errorf("expected URIs to be escaped")
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("cannot open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Results")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header plus 5 rows, got %d", len(rows))
	}
	if rows[4][1] != "4" || rows[4][2] != "TRUE" || rows[4][3] != "paid.example" {
		t.Errorf("unexpected advertisement row %v", rows[4])
	}

	stats, err := f.GetRows("Statistic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 4 || stats[1][0] != "a.example" || stats[2][0] != "shop.example" {
		t.Errorf("unexpected statistic sheet %v", stats)
	}
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, Report{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("cannot open workbook: %v", err)
	}
	defer f.Close()

	rows, _ := f.GetRows("Results")
	if len(rows) != 1 {
		t.Errorf("expected only the header row, got %v", rows)
	}
}

func TestWrite_Dispatch(t *testing.T) {
	for _, name := range []string{"", "text", "JSON", "html", "xlsx"} {
		f, err := ParseFormat(name)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", name, err)
		}
		var buf bytes.Buffer
		if err := Write(&buf, f, sampleReport()); err != nil {
			t.Errorf("Write(%s): %v", f, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Write(%s) produced no output", f)
		}
	}

	if _, err := ParseFormat("pdf"); err == nil {
		t.Errorf("expected error for unknown format")
	}
	if FormatText.Extension() != "txt" || FormatXLSX.Extension() != "xlsx" {
		t.Errorf("unexpected extensions")
	}
}

func TestWriteHistory(t *testing.T) {
	older := &storage.Snapshot{
		ID:             "old",
		RequestedAt:    requestedAt.Add(-24 * time.Hour),
		RequestedPages: 1,
		Results: []ranking.Result{
			{Page: 1, Rank: 1, URI: "https://a.example/"},
		},
	}
	newer := &storage.Snapshot{
		ID:             "new",
		RequestedAt:    requestedAt,
		RequestedPages: 1,
		Results: []ranking.Result{
			{Page: 1, Rank: 1, URI: "https://a.example/"},
			{Page: 1, Rank: 2, URI: "https://shop.example/"},
		},
	}

	// backends return newest first
	trend := BuildTrend([]*storage.Snapshot{newer, older}, ranking.NewHostSet("shop.example"))
	if len(trend) != 2 || trend[0].RunID != "old" {
		t.Fatalf("expected oldest run first, got %+v", trend)
	}
	if trend[0].Positions[0].Found {
		t.Errorf("expected shop.example to be unranked in the old run")
	}
	if p := trend[1].Positions[0]; !p.Found || p.BestRank != 2 || p.BestPage != 1 || p.Count != 1 {
		t.Errorf("unexpected position %+v", p)
	}

	var buf bytes.Buffer
	if err := WriteHistory(&buf, "q", []*storage.Snapshot{newer, older}, ranking.NewHostSet("shop.example")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "* shop.example: not ranked") {
		t.Errorf("expected unranked line, got:\n%s", out)
	}
	if !strings.Contains(out, "* shop.example: best rank 2 (page 1), total 1 (ADV: 0)") {
		t.Errorf("expected ranked line, got:\n%s", out)
	}
	if strings.Index(out, "run old") > strings.Index(out, "run new") {
		t.Errorf("expected chronological order, got:\n%s", out)
	}
}

func TestWriteHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, "q", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "No stored runs.") {
		t.Errorf("expected empty history notice, got %q", buf.String())
	}
}
