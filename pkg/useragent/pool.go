package useragent

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
)

// DefaultAcceptLanguage matches a German desktop browser, the locale the
// default ad markers are written for.
const DefaultAcceptLanguage = "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7"

// DefaultPool provides a realistic set of modern User-Agents for desktop browsers.
var DefaultPool = []string{
	// Chrome Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36",
	// Chrome Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	// Firefox Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	// Firefox Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	// Safari Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
	// Edge Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// Family is the browser engine family a User-Agent string claims to be.
type Family string

const (
	Chrome  Family = "chrome"
	Firefox Family = "firefox"
	Safari  Family = "safari"
	Other   Family = "other"
)

// FamilyOf classifies ua. Edge and Opera count as Chrome.
func FamilyOf(ua string) Family {
	switch {
	case strings.Contains(ua, "Firefox/"):
		return Firefox
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "Chromium/"):
		return Chrome
	case strings.Contains(ua, "Safari/") && strings.Contains(ua, "Version/"):
		return Safari
	default:
		return Other
	}
}

// Headers returns the request headers a browser of ua's family sends on a
// top-level navigation. An empty acceptLanguage uses DefaultAcceptLanguage.
func Headers(ua, acceptLanguage string) http.Header {
	if acceptLanguage == "" {
		acceptLanguage = DefaultAcceptLanguage
	}
	h := http.Header{}
	h.Set("User-Agent", ua)
	h.Set("Accept-Language", acceptLanguage)

	switch FamilyOf(ua) {
	case Chrome:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
		h.Set("Upgrade-Insecure-Requests", "1")
	case Firefox:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Upgrade-Insecure-Requests", "1")
	case Safari:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	default:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	return h
}

// Pool represents a collection of User-Agents that can be retrieved sequentially or randomly.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a new User-Agent pool. If the provided slice is empty,
// it falls back to DefaultPool.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{
		uas: copied,
	}
}

// GetSequential returns the next User-Agent in the pool in a round-robin fashion.
// It is safe for concurrent use.
func (p *Pool) GetSequential() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// GetRandom returns a random User-Agent from the pool using crypto/rand.
// It is safe for concurrent use.
func (p *Pool) GetRandom() string {
	if len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.GetSequential()
	}
	return p.uas[n.Int64()]
}

// GetAll returns a copy of all User-Agents currently in the pool.
func (p *Pool) GetAll() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
