package extract

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/serp"
)

// Extractor turns one stored result page into ranked results. Every
// markup-specific decision is delegated to a serp.Markup.
type Extractor struct {
	markup serp.Markup
}

// NewExtractor creates an Extractor. A nil markup means Google.
func NewExtractor(markup serp.Markup) *Extractor {
	if markup == nil {
		markup = serp.NewGoogle(nil)
	}
	return &Extractor{markup: markup}
}

// Listings parses r and returns its listings in document order.
func (e *Extractor) Listings(r io.Reader) ([]ranking.Listing, error) {
	decoded, err := charset.NewReader(r, "text/html")
	if err != nil {
		return nil, fmt.Errorf("extract: decode: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, fmt.Errorf("extract: parse: %w", err)
	}

	var (
		listings []ranking.Listing
		drift    error
	)
	e.markup.Listings(doc).EachWithBreak(func(i int, s *goquery.Selection) bool {
		ad := e.markup.IsAdvertisement(s)
		uri, err := e.markup.Destination(s, ad)
		if err != nil {
			drift = fmt.Errorf("listing %d: %w", i+1, err)
			return false
		}
		listings = append(listings, ranking.Listing{URI: uri, Advertisement: ad})
		return true
	})
	if drift != nil {
		return nil, drift
	}
	return listings, nil
}

// Page extracts the results of the page-th page whose first listing gets
// startRank. k listings yield ranks startRank..startRank+k-1.
func (e *Extractor) Page(r io.Reader, page, startRank int) ([]ranking.Result, error) {
	listings, err := e.Listings(r)
	if err != nil {
		return nil, err
	}
	return ranking.Assign(page, startRank, listings), nil
}
