package serp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMarkupDrift reports that a result page no longer has the structure the
// extractor relies on. Callers must surface it instead of skipping listings.
var ErrMarkupDrift = errors.New("serp: markup drift")

// DefaultEngine is the search engine instance queried when none is configured.
const DefaultEngine = "https://www.google.com"

// Markup abstracts the undocumented structural markers of a search result page.
// A change in the engine's markup should only require a new Markup
// implementation, never a change to the crawl or extraction pipeline.
type Markup interface {
	// NextPage returns the raw href of the "next page" navigation link.
	NextPage(doc *goquery.Document) (string, bool)
	// Listings returns every listing candidate in document order.
	Listings(doc *goquery.Document) *goquery.Selection
	// IsAdvertisement classifies a single listing node.
	IsAdvertisement(listing *goquery.Selection) bool
	// Destination extracts the destination URI of a listing node.
	Destination(listing *goquery.Selection, advertisement bool) (string, error)
}

// SearchURL builds the initial request target for query against engine.
// Extra params are appended after q; url.Values encodes them in key order.
func SearchURL(engine, query string, params url.Values) (string, error) {
	base, err := parseEngine(engine)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	for k, vs := range params {
		if k == "q" {
			continue
		}
		values[k] = append([]string(nil), vs...)
	}
	values.Set("q", query)

	target := *base
	target.Path = "/search"
	target.RawQuery = values.Encode()
	target.Fragment = ""
	return target.String(), nil
}

// Resolve resolves a next-page href found in a result page against the
// engine origin.
func Resolve(engine, href string) (string, error) {
	base, err := parseEngine(engine)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("serp: invalid next-page href %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func parseEngine(engine string) (*url.URL, error) {
	if engine == "" {
		engine = DefaultEngine
	}
	u, err := url.Parse(engine)
	if err != nil {
		return nil, fmt.Errorf("serp: invalid engine url %q: %w", engine, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("serp: engine url %q must be absolute http(s)", engine)
	}
	return u, nil
}

// normalizeText collapses whitespace the way rendered text reads.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
