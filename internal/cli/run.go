package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/FranksOps/rankwatch/internal/extract"
	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/pagestore"
	"github.com/FranksOps/rankwatch/internal/pipeline"
	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/scraper"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/internal/storage/csvbackend"
	"github.com/FranksOps/rankwatch/internal/storage/jsonbackend"
	"github.com/FranksOps/rankwatch/internal/storage/postgres"
	"github.com/FranksOps/rankwatch/internal/storage/sqlite"
	"github.com/FranksOps/rankwatch/pkg/proxy"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
)

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openWireLog returns a debug logger writing JSON lines to path.
func openWireLog(path string) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cli: open wire log: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), f, nil
}

// openHistory opens the configured ranking history. It returns nil for
// --history none.
func openHistory(ctx context.Context, opts Options) (storage.Backend, error) {
	switch opts.History {
	case historyNone:
		return nil, nil
	case historyPostgres:
		return postgres.New(ctx, opts.HistoryDSN)
	}

	if err := os.MkdirAll(filepath.Dir(opts.HistoryDSN), 0o755); err != nil {
		return nil, fmt.Errorf("cli: history directory: %w", err)
	}
	switch opts.History {
	case historySQLite:
		return sqlite.New(opts.HistoryDSN)
	case historyJSON:
		return jsonbackend.New(opts.HistoryDSN)
	case historyCSV:
		return csvbackend.New(opts.HistoryDSN)
	}
	return nil, fmt.Errorf("cli: unknown history backend %q", opts.History)
}

func newFetcher(opts Options, wire *slog.Logger) (*scraper.Fetcher, error) {
	pool := proxy.NewPool(proxy.Config{})
	if opts.ProxyFile != "" {
		if err := pool.LoadFile(opts.ProxyFile); err != nil {
			return nil, err
		}
	}

	return scraper.NewFetcher(scraper.FetchConfig{
		Timeout:        opts.Timeout,
		Retries:        opts.Retries,
		ProxyPool:      pool,
		UserAgent:      opts.UserAgent,
		AcceptLanguage: opts.AcceptLanguage,
		Fingerprint:    opts.Fingerprint,
		Pacer:          ratelimit.NewPacer(opts.Delay, opts.Jitter),
		WireLog:        wire,
	})
}

func runAnalysis(ctx context.Context, opts Options, stdout, stderr io.Writer) (err error) {
	logger := newLogger(stderr, opts.LogLevel)

	var wire *slog.Logger
	if opts.WireLog != "" {
		var closer io.Closer
		if wire, closer, err = openWireLog(opts.WireLog); err != nil {
			return err
		}
		defer closer.Close()
	}

	if opts.MetricsPort > 0 {
		srv := metrics.Start(opts.MetricsPort, logger)
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				logger.Warn("stopping metrics server", "err", err)
			}
		}()
	}

	history, err := openHistory(ctx, opts)
	if err != nil {
		return err
	}
	if history != nil {
		defer func() {
			if cerr := history.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("cli: close history: %w", cerr))
			}
		}()
	}

	fetcher, err := newFetcher(opts, wire)
	if err != nil {
		return err
	}
	logger.Debug("browser identity", "user_agent", fetcher.UserAgent(), "fingerprint", opts.Fingerprint)

	markup := serp.NewGoogle(opts.AdMarkers)
	store := pagestore.New(nil, opts.Base)
	crawler := scraper.NewCrawler(scraper.CrawlConfig{
		Engine:        opts.Engine,
		Params:        opts.Params,
		MaxPages:      opts.Pages,
		Markup:        markup,
		RespectRobots: opts.RespectRobots,
	}, fetcher, store, logger)
	collector := extract.NewCollector(store, extract.NewExtractor(markup), opts.Workers, logger)

	marked := ranking.NewHostSet(opts.Domains...)
	p := pipeline.New(pipeline.Config{
		Engine:         opts.Engine,
		RequestedPages: opts.Pages,
		Marked:         marked,
		MaxAge:         opts.MaxAge,
		Refresh:        opts.Refresh,
	}, store, crawler, collector, history, logger)

	res, err := p.Run(ctx, opts.Query)
	if err != nil {
		return err
	}

	path, err := p.WriteReport(res, opts.Format, opts.Output)
	if err != nil {
		return err
	}
	logger.Info("report written", "path", path, "format", opts.Format)

	printSummary(stdout, res, path)
	return nil
}

func showHistory(ctx context.Context, opts Options, stdout, stderr io.Writer) error {
	if opts.History == historyNone {
		return errors.New("cli: history needs a --history backend")
	}
	history, err := openHistory(ctx, opts)
	if err != nil {
		return err
	}
	defer history.Close()

	snapshots, err := history.Query(ctx, storage.Filter{Query: opts.Query, Limit: opts.Limit})
	if err != nil {
		return err
	}
	newLogger(stderr, opts.LogLevel).Debug("loaded history", "query", opts.Query, "runs", len(snapshots))

	return report.WriteHistory(stdout, opts.Query, snapshots, ranking.NewHostSet(opts.Domains...))
}
