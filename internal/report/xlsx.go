package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet   = "Results"
	statisticSheet = "Statistic"
	overviewSheet  = "Overview"
)

// WriteXLSX writes a workbook with an overview, every result and the
// per-host statistic on separate sheets. Rows of marked hosts are bold.
func WriteXLSX(w io.Writer, r Report) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("report: close workbook: %w", cerr)
		}
	}()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if _, err := f.NewSheet(statisticSheet); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if _, err := f.NewSheet(overviewSheet); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	results := [][]any{{"Page", "Rank", "Advertisement", "Host", "URI"}}
	boldResults := []int{1}
	for _, res := range r.Results {
		host := res.Host()
		results = append(results, []any{res.Page, res.Rank, res.Advertisement, host, res.URI})
		if r.Marked.Contains(host) {
			boldResults = append(boldResults, len(results))
		}
	}
	if err := writeRows(f, resultsSheet, results, boldResults, bold); err != nil {
		return err
	}

	stats := [][]any{{"Host", "Marked", "Total", "Advertisements", "Best rank", "Best page"}}
	boldStats := []int{1}
	for _, c := range r.Summary.Clusters {
		stats = append(stats, []any{c.Host, c.Marked, c.Count, c.Advertisements, c.BestRank, c.BestPage})
		if c.Marked {
			boldStats = append(boldStats, len(stats))
		}
	}
	if err := writeRows(f, statisticSheet, stats, boldStats, bold); err != nil {
		return err
	}

	overview := [][]any{
		{"URL", r.Run.Engine},
		{"Query", r.Run.Query},
		{"Query Date", formatDate(r.Run.RequestedAt)},
		{"Analysis Date", formatDate(r.AnalyzedAt)},
		{"Results", r.Summary.Total},
		{"Advertisements", r.Summary.Advertisements},
		{"Pages reached", r.Summary.PagesReached},
		{"Pages requested", r.Summary.PagesRequested},
	}
	for _, h := range r.Marked.Sorted() {
		overview = append(overview, []any{"Host marker", h})
	}
	if err := writeRows(f, overviewSheet, overview, nil, bold); err != nil {
		return err
	}

	if err := f.SetColWidth(resultsSheet, "D", "D", 30); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := f.SetColWidth(resultsSheet, "E", "E", 80); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := f.SetColWidth(statisticSheet, "A", "A", 30); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := f.SetColWidth(overviewSheet, "A", "B", 24); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}

// writeRows fills sheet from A1 and applies style to the 1-based row numbers in boldRows.
func writeRows(f *excelize.File, sheet string, rows [][]any, boldRows []int, style int) error {
	width := 0
	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("report: %s: %w", sheet, err)
		}
		width = max(width, len(values))
	}
	for _, n := range boldRows {
		first, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(width, n)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if err := f.SetCellStyle(sheet, first, last, style); err != nil {
			return fmt.Errorf("report: %s: %w", sheet, err)
		}
	}
	return nil
}
