package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/FranksOps/rankwatch/internal/pipeline"
)

var (
	headColor   = color.New(color.FgCyan, color.Bold)
	markedColor = color.New(color.FgGreen, color.Bold)
	missColor   = color.New(color.FgRed)
	noteColor   = color.New(color.FgYellow)
)

// printSummary writes a short console digest of a run: result counts and
// the position of every highlighted host.
func printSummary(w io.Writer, res *pipeline.Result, reportPath string) {
	r := res.Report
	s := r.Summary

	headColor.Fprintf(w, "%s\n", r.Run.Query)
	fmt.Fprintf(w, "  %d results (%d ADV) on %d / %d pages\n", s.Total, s.Advertisements, s.PagesReached, s.PagesRequested)
	if res.Cached {
		noteColor.Fprintf(w, "  reused pages captured %s\n", formatTime(r.Run.RequestedAt))
	} else if res.Stop != "" {
		fmt.Fprintf(w, "  crawl stopped: %s\n", res.Stop)
	}

	for _, host := range r.Marked.Sorted() {
		c, ok := s.Cluster(host)
		if !ok {
			missColor.Fprintf(w, "* %s: not ranked\n", host)
			continue
		}
		markedColor.Fprintf(w, "* %s: best rank %d (page %d), total %d (ADV: %d)\n",
			host, c.BestRank, c.BestPage, c.Count, c.Advertisements)
	}

	fmt.Fprintf(w, "report: %s\n", reportPath)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
