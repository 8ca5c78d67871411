package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/pagestore"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/internal/storage"
)

// StopReason tells why pagination ended.
type StopReason string

const (
	StopPageLimit   StopReason = "page-limit"
	StopNoNextPage  StopReason = "no-next-page"
	StopFetchFailed StopReason = "fetch-failed"
	StopChallenged  StopReason = "challenged"
	StopRobots      StopReason = "robots-disallowed"
)

// CrawlConfig provides parameters for paging through a query's results.
type CrawlConfig struct {
	// Engine is the search engine origin, e.g. https://www.google.com.
	Engine string
	// Params are extra query parameters of the initial request.
	Params   url.Values
	MaxPages int
	Markup   serp.Markup
	// RespectRobots checks every page URL against the engine's robots.txt.
	RespectRobots bool
	// RobotsAgent is the agent name matched against robots.txt groups.
	RobotsAgent string
}

// Outcome summarizes a finished crawl.
type Outcome struct {
	Manifest pagestore.Manifest
	Dir      string
	Pages    int
	Stop     StopReason
	// LastURL is the last URL requested, or that would have been requested next.
	LastURL string
}

// Crawler fetches the result pages of one query strictly in sequence and
// stores them in fetch order.
type Crawler struct {
	cfg     CrawlConfig
	fetcher *Fetcher
	store   *pagestore.Store
	logger  *slog.Logger
	auditor *RobotsTxtAuditor
	now     func() time.Time
}

// NewCrawler creates a crawler writing pages into store.
func NewCrawler(cfg CrawlConfig, fetcher *Fetcher, store *pagestore.Store, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Engine == "" {
		cfg.Engine = serp.DefaultEngine
	}
	if cfg.Markup == nil {
		cfg.Markup = serp.NewGoogle(nil)
	}
	if cfg.RobotsAgent == "" {
		cfg.RobotsAgent = "*"
	}

	var auditor *RobotsTxtAuditor
	if cfg.RespectRobots {
		auditor = NewRobotsTxtAuditor(fetcher, logger)
	}

	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		auditor: auditor,
		now:     time.Now,
	}
}

// Run replaces the content of dir with up to MaxPages result pages of query.
// dir must lie below the store's base. Failed fetches, challenges and a
// missing next-page link end the crawl without an error. Errors are returned
// when dir cannot be prepared, a page cannot be stored, or ctx is done; the
// manifest then still reads in-progress.
func (c *Crawler) Run(ctx context.Context, query, dir string) (Outcome, error) {
	out := Outcome{Dir: dir}
	if c.cfg.MaxPages < 1 || c.cfg.MaxPages > pagestore.MaxPages {
		return out, fmt.Errorf("scraper: page limit %d out of range 1..%d", c.cfg.MaxPages, pagestore.MaxPages)
	}

	target, err := serp.SearchURL(c.cfg.Engine, query, c.cfg.Params)
	if err != nil {
		return out, fmt.Errorf("scraper: %w", err)
	}

	if err := c.store.Reset(dir); err != nil {
		return out, err
	}
	if err := c.store.Prepare(dir); err != nil {
		return out, err
	}

	out.Manifest = pagestore.Manifest{
		ID:             uuid.New().String(),
		Query:          query,
		Engine:         c.cfg.Engine,
		RequestedAt:    c.now().UTC(),
		RequestedPages: c.cfg.MaxPages,
		StopReason:     pagestore.StopInProgress,
	}
	// stays in place when the crawl is interrupted, so the partial pages
	// are never taken for a complete capture
	if err := c.store.WriteManifest(dir, out.Manifest); err != nil {
		return out, err
	}

	for page := 1; ; page++ {
		out.LastURL = target
		log := c.logger.With("query", query, "page", page, "url", target)

		if c.auditor != nil {
			allowed, err := c.auditor.IsAllowed(ctx, target, c.cfg.RobotsAgent)
			if err != nil {
				log.Warn("robots.txt check failed", "err", err)
			} else if !allowed {
				log.Info("stopping, disallowed by robots.txt")
				out.Stop = StopRobots
				break
			}
		}

		log.Debug("fetching")
		res, _ := c.fetcher.Fetch(ctx, target)
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if stop, ok := c.failed(log, res); ok {
			out.Stop = stop
			break
		}

		path, err := c.store.WritePage(dir, page, res.Body)
		if err != nil {
			return out, err
		}
		out.Pages = page
		log.Info("stored page", "file", path, "bytes", len(res.Body), "attempts", res.Attempts)

		if page == c.cfg.MaxPages {
			out.Stop = StopPageLimit
			break
		}

		next, ok := c.nextPage(res.Body)
		if !ok {
			log.Info("no next page link, stopping early")
			out.Stop = StopNoNextPage
			break
		}
		resolved, err := serp.Resolve(c.cfg.Engine, next)
		if err != nil {
			log.Warn("unusable next page link, stopping early", "href", next, "err", err)
			out.Stop = StopNoNextPage
			break
		}
		target = resolved
	}

	out.Manifest.FetchedPages = out.Pages
	out.Manifest.StopReason = string(out.Stop)
	if err := c.store.WriteManifest(dir, out.Manifest); err != nil {
		return out, err
	}
	metrics.RecordCrawlStop(string(out.Stop))

	c.logger.Info("crawl finished", "query", query, "pages", out.Pages,
		"requested", c.cfg.MaxPages, "stop", out.Stop)
	return out, nil
}

// failed classifies an unusable fetch. The crawl stops on any of them.
func (c *Crawler) failed(log *slog.Logger, res *storage.FetchResult) (StopReason, bool) {
	switch {
	case res.Error != "":
		log.Warn("fetch failed, stopping", "err", res.Error, "attempts", res.Attempts)
		return StopFetchFailed, true
	case res.DetectedBot:
		log.Warn("challenge page served, stopping", "source", res.DetectionSrc, "status", res.StatusCode)
		return StopChallenged, true
	case res.StatusCode < 200 || res.StatusCode > 299:
		log.Warn("unexpected status, stopping", "status", res.StatusCode, "attempts", res.Attempts)
		return StopFetchFailed, true
	}
	return "", false
}

func (c *Crawler) nextPage(body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	return c.cfg.Markup.NextPage(doc)
}
