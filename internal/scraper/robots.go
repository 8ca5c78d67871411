package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches and caches robots.txt per origin. Lookups fail
// open: an unreachable or broken robots.txt allows everything.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance sharing fetcher's browser session.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed determines if the given URL is allowed by the host's robots.txt for the provided agent.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, agent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("scraper: invalid url: %w", err)
	}

	origin := u.Scheme + "://" + u.Host
	data := r.lookup(ctx, origin)
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.FindGroup(agent).Test(path), nil
}

func (r *RobotsTxtAuditor) lookup(ctx context.Context, origin string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[origin]; ok {
		return data
	}

	data, err := r.fetch(ctx, origin)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, defaulting to allow", "origin", origin, "err", err)
	}
	r.cache[origin] = data
	return data
}

func (r *RobotsTxtAuditor) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.fetcher.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 4xx means no restrictions, 5xx means full disallow.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
