package serp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultAdMarkers are the sponsored-listing labels Google renders in English
// and German result pages.
var DefaultAdMarkers = []string{"Ad", "Anzeige"}

var _ Markup = (*Google)(nil)

// Google understands the result page markup served by google.com and its
// country instances.
//
// Every listing, organic or paid, carries a <cite> element. The listing's
// link sits two levels above the cite. Paid listings are labelled by a
// sibling of the cite whose text is a locale-specific marker and keep their
// real destination in the data-preconnect-urls attribute.
type Google struct {
	markers map[string]struct{}
}

// NewGoogle creates a Google markup with the given ad markers. An empty list
// falls back to DefaultAdMarkers.
func NewGoogle(adMarkers []string) *Google {
	if len(adMarkers) == 0 {
		adMarkers = DefaultAdMarkers
	}
	markers := make(map[string]struct{}, len(adMarkers))
	for _, m := range adMarkers {
		m = normalizeText(m)
		if m != "" {
			markers[m] = struct{}{}
		}
	}
	return &Google{markers: markers}
}

// NextPage prefers the dedicated #pnnext anchor and falls back to the first
// "pn" navigation link that is not the previous-page link.
func (g *Google) NextPage(doc *goquery.Document) (string, bool) {
	if href, ok := doc.Find("a#pnnext").Attr("href"); ok && strings.TrimSpace(href) != "" {
		return href, true
	}

	var next string
	doc.Find(`a.pn, [class="pn"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if id, _ := s.Attr("id"); id == "pnprev" {
			return true
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		next = href
		return false
	})
	return next, next != ""
}

func (g *Google) Listings(doc *goquery.Document) *goquery.Selection {
	return doc.Find("cite")
}

func (g *Google) IsAdvertisement(listing *goquery.Selection) bool {
	ad := false
	listing.Siblings().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if _, ok := g.markers[normalizeText(s.Text())]; ok {
			ad = true
			return false
		}
		return true
	})
	return ad
}

func (g *Google) Destination(listing *goquery.Selection, advertisement bool) (string, error) {
	anchor := listing.Parent().Parent()

	if !advertisement {
		href, _ := anchor.Attr("href")
		return strings.TrimSpace(href), nil
	}

	raw, ok := anchor.Attr("data-preconnect-urls")
	if !ok {
		return "", fmt.Errorf("%w: advertisement without data-preconnect-urls", ErrMarkupDrift)
	}
	for _, candidate := range strings.Split(raw, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		u, err := url.Parse(candidate)
		if err != nil {
			return "", fmt.Errorf("%w: advertisement destination %q: %v", ErrMarkupDrift, candidate, err)
		}
		if u.Host == "" {
			return "", fmt.Errorf("%w: advertisement destination %q is not absolute", ErrMarkupDrift, candidate)
		}
		return u.String(), nil
	}
	return "", fmt.Errorf("%w: empty data-preconnect-urls", ErrMarkupDrift)
}
