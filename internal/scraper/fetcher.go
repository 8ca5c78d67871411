package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/rankwatch/internal/bypass"
	"github.com/FranksOps/rankwatch/internal/fingerprint"
	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/pkg/httpclient"
	"github.com/FranksOps/rankwatch/pkg/proxy"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
	"github.com/FranksOps/rankwatch/pkg/useragent"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 2 * time.Second
	maxBodySize       = 16 << 20
)

var (
	errInvalidRequest = errors.New("invalid request")
	errBodyTooLarge   = errors.New("response body too large")
)

// FetchConfig configures how result pages are requested.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	// Retries is the number of extra attempts for 429, 502, 503, 504 and
	// network errors.
	Retries    int
	RetryDelay time.Duration
	// MaxBodySize caps a response body. Larger bodies fail the fetch
	// instead of being stored cut off. Defaults to 16 MiB.
	MaxBodySize int64
	ProxyPool   *proxy.Pool
	UAPool      *useragent.Pool
	// UserAgent pins the browser identity. Empty picks one from UAPool.
	UserAgent      string
	AcceptLanguage string
	Fingerprint    fingerprint.Profile
	Pacer          *ratelimit.Pacer
	Detectors      []bypass.Detector
	// WireLog receives every request and response at debug level.
	WireLog *slog.Logger
}

// Fetcher requests result pages as one consistent browser session: the same
// User-Agent, header set, TLS fingerprint and cookie jar for every page.
type Fetcher struct {
	config    FetchConfig
	client    *httpclient.Client
	userAgent string
	wire      *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = maxBodySize
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = cfg.UAPool.GetRandom()
	}
	profile := cfg.Fingerprint
	if profile == "" || profile == fingerprint.ProfileAuto {
		profile = fingerprint.ForUserAgent(ua)
	}

	transport, err := fingerprint.Transport(profile, fingerprint.Options{})
	if err != nil {
		return nil, fmt.Errorf("scraper: setup transport: %w", err)
	}
	var rt http.RoundTripper = transport
	if cfg.ProxyPool != nil && cfg.ProxyPool.Len() > 0 {
		rt = cfg.ProxyPool.Transport(transport)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: true,
		Headers:      useragent.Headers(ua, cfg.AcceptLanguage),
		Transport:    rt,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: create client: %w", err)
	}

	wire := cfg.WireLog
	if wire == nil {
		wire = slog.New(slog.DiscardHandler)
	}

	return &Fetcher{
		config:    cfg,
		client:    client,
		userAgent: ua,
		wire:      wire,
	}, nil
}

// UserAgent returns the browser identity used for every request.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Fetch performs one logical GET of targetURL. Transient failures are retried
// with exponential backoff. Failures are recorded in the result's Error field
// and the returned error is always nil.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*storage.FetchResult, error) {
	start := time.Now()
	result := &storage.FetchResult{
		ID:        uuid.New().String(),
		URL:       targetURL,
		Method:    http.MethodGet,
		CreatedAt: start.UTC(),
	}

	if f.config.Pacer != nil {
		if err := f.config.Pacer.Wait(ctx); err != nil {
			result.Error = fmt.Sprintf("pacer: %v", err)
			return result, nil
		}
	}

	attempts := f.config.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		err := f.fetchOnce(ctx, result)
		if !retryable(ctx, result.StatusCode, err) || attempt == attempts {
			break
		}

		delay := retryDelay(f.config.RetryDelay, attempt)
		f.wire.DebugContext(ctx, "retrying", "id", result.ID, "url", targetURL, "attempt", attempt, "status", result.StatusCode, "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			result.Error = fmt.Sprintf("request failed: %v", err)
			break
		}
	}
	result.Duration = time.Since(start)

	if result.Error == "" {
		bypass.Analyze(result, f.config.Detectors)
	}
	metrics.RecordFetch(hostOf(targetURL), result)

	return result, nil
}

// fetchOnce performs a single attempt and overwrites the response fields of
// result.
func (f *Fetcher) fetchOnce(ctx context.Context, result *storage.FetchResult) error {
	result.StatusCode = 0
	result.Headers = nil
	result.Body = nil
	result.Error = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}

	f.wire.DebugContext(ctx, "request", "id", result.ID, "method", req.Method, "url", result.URL, "attempt", result.Attempts)

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		f.wire.DebugContext(ctx, "response", "id", result.ID, "url", result.URL, "err", err)
		return err
	}
	defer resp.Body.Close()

	limit := f.config.MaxBodySize
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	if resp.Request != nil && resp.Request.URL != nil {
		// redirects, e.g. to a challenge page, change the effective URL
		result.URL = resp.Request.URL.String()
	}
	switch {
	case err != nil:
		result.Error = fmt.Sprintf("failed to read body: %v", err)
	case int64(len(body)) > limit:
		result.Body = nil
		result.Error = fmt.Sprintf("body exceeds %d bytes", limit)
		err = errBodyTooLarge
	}

	f.wire.DebugContext(ctx, "response", "id", result.ID, "url", result.URL,
		"status", resp.StatusCode, "bytes", len(body), "headers", resp.Header)
	return err
}

func retryable(ctx context.Context, status int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return !errors.Is(err, errInvalidRequest) && !errors.Is(err, errBodyTooLarge)
	}
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryDelay doubles base per attempt up to maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
