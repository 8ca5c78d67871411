package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/pagestore"
	"github.com/FranksOps/rankwatch/internal/ranking"
)

// Collector extracts every stored page of a query directory and threads the
// ranks across pages in file-name order.
type Collector struct {
	store     *pagestore.Store
	extractor *Extractor
	workers   int
	logger    *slog.Logger
}

// NewCollector creates a Collector parsing up to workers pages at once.
func NewCollector(store *pagestore.Store, extractor *Extractor, workers int, logger *slog.Logger) *Collector {
	if extractor == nil {
		extractor = NewExtractor(nil)
	}
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		store:     store,
		extractor: extractor,
		workers:   workers,
		logger:    logger,
	}
}

// Collect returns the merged results of all pages in dir. A missing or
// unlistable directory yields an empty set. Pages are parsed concurrently,
// ranks are assigned afterwards: page i gets ordinal i and starts one past
// the last rank of page i-1.
func (c *Collector) Collect(ctx context.Context, dir string) ([]ranking.Result, error) {
	names, err := c.store.Pages(dir)
	if err != nil {
		c.logger.Warn("cannot list page directory, treating as empty", "dir", dir, "err", err)
		return []ranking.Result{}, nil
	}

	parsed := make([][]ranking.Listing, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			body, err := c.store.ReadPage(dir, name)
			if err != nil {
				return err
			}
			listings, err := c.extractor.Listings(bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("extract: %s: %w", name, err)
			}
			parsed[i] = listings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sets := make([][]ranking.Result, 0, len(names))
	start := 1
	for i, listings := range parsed {
		results := ranking.Assign(i+1, start, listings)
		start += len(results)
		sets = append(sets, results)

		ads := 0
		for _, l := range listings {
			if l.Advertisement {
				ads++
			}
		}
		metrics.RecordListings(len(listings)-ads, ads)
		c.logger.Debug("extracted page", "file", names[i], "page", i+1, "listings", len(listings), "advertisements", ads)
	}

	return ranking.Merge(sets...), nil
}
