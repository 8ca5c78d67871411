// Package proxy rotates outgoing search requests over a list of forward
// proxies and benches the ones that keep failing.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrExhausted is returned by a pool Transport when every proxy is cooling down.
var ErrExhausted = errors.New("proxy: all proxies are cooling down")

type endpoint struct {
	url       *url.URL
	failures  int
	benchedTo time.Time
}

// Pool hands out proxies round robin. A proxy that fails MaxFailures times
// in a row is skipped until its cooldown has passed.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	cursor      int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures before disabling a proxy temporarily. Defaults to 3.
	MaxFailures int
	// Cooldown is how long a disabled proxy is skipped. Defaults to 5m.
	Cooldown time.Duration
}

func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown, now: time.Now}
}

// LoadFile adds the proxies listed in path, one per line. Blank lines and
// lines starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer f.Close()
	return p.load(f)
}

func (p *Pool) load(r io.Reader) error {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return p.Add(lines...)
}

// Add parses proxy URLs and appends them to the rotation. A missing scheme
// means http.
func (p *Pool) Add(raw ...string) error {
	parsed := make([]*endpoint, 0, len(raw))
	for _, s := range raw {
		if !strings.Contains(s, "://") {
			s = "http://" + s
		}
		u, err := url.Parse(s)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", s)
		}
		parsed = append(parsed, &endpoint{url: u})
	}

	p.mu.Lock()
	p.endpoints = append(p.endpoints, parsed...)
	p.mu.Unlock()
	return nil
}

// Len returns the number of proxies in the pool, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// next returns the next proxy that is not benched, or nil.
func (p *Pool) next() *endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range len(p.endpoints) {
		e := p.endpoints[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.endpoints)
		if !now.Before(e.benchedTo) {
			return e
		}
	}
	return nil
}

// record feeds the outcome of one request through e back into the pool.
func (p *Pool) record(e *endpoint, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok {
		e.failures = 0
		return
	}
	e.failures++
	if e.failures >= p.maxFailures {
		e.failures = 0
		e.benchedTo = p.now().Add(p.cooldown)
	}
}

type proxyKey struct{}

// Transport returns a RoundTripper that sends each request through the next
// healthy proxy and feeds the outcome back into the pool. Transport errors,
// 407, 429 and 5xx responses count as failures. base is cloned and its Proxy
// field replaced. An empty pool connects directly.
func (p *Pool) Transport(base *http.Transport) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	t := base.Clone()
	t.Proxy = func(req *http.Request) (*url.URL, error) {
		u, _ := req.Context().Value(proxyKey{}).(*url.URL)
		return u, nil
	}
	return &trackingTransport{pool: p, base: t}
}

type trackingTransport struct {
	pool *Pool
	base http.RoundTripper
}

func (t *trackingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.pool.Len() == 0 {
		return t.base.RoundTrip(req)
	}
	e := t.pool.next()
	if e == nil {
		return nil, ErrExhausted
	}

	resp, err := t.base.RoundTrip(req.WithContext(context.WithValue(req.Context(), proxyKey{}, e.url)))
	t.pool.record(e, err == nil && !failing(resp.StatusCode))
	return resp, err
}

func failing(status int) bool {
	return status == http.StatusProxyAuthRequired || status == http.StatusTooManyRequests || status >= 500
}
