package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/FranksOps/rankwatch/internal/extract"
	"github.com/FranksOps/rankwatch/internal/pagestore"
	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/scraper"
	"github.com/FranksOps/rankwatch/internal/storage"
)

// Crawler fetches the result pages of a query into a directory.
type Crawler interface {
	Run(ctx context.Context, query, dir string) (scraper.Outcome, error)
}

// Config holds the per-run settings of a Pipeline.
type Config struct {
	Engine         string
	RequestedPages int
	Marked         ranking.HostSet
	// MaxAge is how long captured pages are reused. Zero always crawls.
	MaxAge time.Duration
	// Refresh ignores captured pages regardless of their age.
	Refresh bool
}

// Pipeline runs one query end to end: reuse or crawl the result pages,
// extract and rank them, record the run and build the report.
type Pipeline struct {
	cfg       Config
	store     *pagestore.Store
	crawler   Crawler
	collector *extract.Collector
	history   storage.Backend
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Pipeline. history may be nil to skip recording runs.
func New(cfg Config, store *pagestore.Store, crawler Crawler, collector *extract.Collector, history storage.Backend, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = extract.NewCollector(store, nil, 0, logger)
	}
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		crawler:   crawler,
		collector: collector,
		history:   history,
		logger:    logger,
		now:       time.Now,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	Report report.Report
	Dir    string
	// Cached is true when previously captured pages were analyzed.
	Cached bool
	// Stop is why the crawl ended. Empty for cached runs.
	Stop scraper.StopReason
}

// Run analyzes query. Captured pages younger than MaxAge are reused,
// otherwise the pages are crawled anew and the run is saved to history.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	dir := p.store.QueryDir(query)
	res := &Result{Dir: dir}

	run, cached, err := p.cached(dir)
	if err != nil {
		return nil, err
	}

	if cached {
		res.Cached = true
		p.logger.Info("reusing captured pages", "query", query, "dir", dir, "captured_at", run.RequestedAt)
	} else {
		if p.crawler == nil {
			return nil, errors.New("pipeline: no crawler configured")
		}
		out, err := p.crawler.Run(ctx, query, dir)
		if err != nil {
			return nil, fmt.Errorf("pipeline: crawl: %w", err)
		}
		run = out.Manifest
		res.Stop = out.Stop
	}
	if run.Query == "" {
		run.Query = query
	}

	results, err := p.collector.Collect(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	if !cached && p.history != nil {
		snapshot := &storage.Snapshot{
			ID:             run.ID,
			Query:          run.Query,
			Engine:         run.Engine,
			RequestedAt:    run.RequestedAt,
			RequestedPages: run.RequestedPages,
			Results:        results,
		}
		if err := p.history.Save(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("pipeline: save history: %w", err)
		}
	}

	res.Report = report.New(run, results, p.cfg.Marked, p.now().UTC())
	p.logger.Info("analysis finished", "query", query, "results", res.Report.Summary.Total,
		"advertisements", res.Report.Summary.Advertisements, "hosts", len(res.Report.Summary.Clusters))
	return res, nil
}

// cached returns the manifest of dir when its pages can be reused for this
// run. Pages are reused only if they are fresh, non-empty and were captured
// by a finished crawl from the same engine with the same page limit.
func (p *Pipeline) cached(dir string) (pagestore.Manifest, bool, error) {
	if p.cfg.Refresh || p.cfg.MaxAge <= 0 {
		return pagestore.Manifest{}, false, nil
	}

	fresh, err := p.store.Fresh(dir, p.cfg.MaxAge, p.now())
	if err != nil {
		return pagestore.Manifest{}, false, fmt.Errorf("pipeline: %w", err)
	}
	if !fresh {
		return pagestore.Manifest{}, false, nil
	}
	pages, err := p.store.Pages(dir)
	if err != nil || len(pages) == 0 {
		return pagestore.Manifest{}, false, nil
	}

	run, err := p.store.ReadManifest(dir)
	switch {
	case errors.Is(err, pagestore.ErrNoManifest):
		captured, err := p.store.CapturedAt(dir)
		if err != nil {
			return pagestore.Manifest{}, false, fmt.Errorf("pipeline: %w", err)
		}
		return pagestore.Manifest{
			Engine:         p.cfg.Engine,
			RequestedAt:    captured,
			RequestedPages: p.cfg.RequestedPages,
			FetchedPages:   len(pages),
		}, true, nil
	case err != nil:
		p.logger.Warn("unreadable manifest, crawling again", "dir", dir, "err", err)
		return pagestore.Manifest{}, false, nil
	}

	if !run.Complete() {
		p.logger.Info("captured pages are from an interrupted crawl, crawling again", "dir", dir)
		return pagestore.Manifest{}, false, nil
	}
	if (p.cfg.Engine != "" && run.Engine != p.cfg.Engine) ||
		(p.cfg.RequestedPages > 0 && run.RequestedPages != p.cfg.RequestedPages) {
		p.logger.Info("captured pages were taken with other settings, crawling again",
			"dir", dir, "engine", run.Engine, "pages", run.RequestedPages)
		return pagestore.Manifest{}, false, nil
	}
	return run, true, nil
}

// ReportPath is where a report of format f is written when no output path
// is given: next to the captured pages.
func ReportPath(dir string, f report.Format) string {
	return filepath.Join(dir, "report."+f.Extension())
}

// WriteReport renders res in format f to path, or to ReportPath when path
// is empty, and returns the path written.
func (p *Pipeline) WriteReport(res *Result, f report.Format, path string) (written string, err error) {
	if path == "" {
		path = ReportPath(res.Dir, f)
	}
	file, err := p.store.Create(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("pipeline: close %s: %w", path, cerr)
		}
	}()

	if err := report.Write(file, f, res.Report); err != nil {
		return "", err
	}
	return path, nil
}
