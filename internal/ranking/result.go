package ranking

import (
	"cmp"
	"net/url"
	"slices"
)

// Result is one ranked listing found on a search result page.
// Results are comparable: two Results are equal iff all four fields match.
type Result struct {
	Page          int    `json:"page"`
	Rank          int    `json:"rank"`
	URI           string `json:"uri"`
	Advertisement bool   `json:"advertisement"`
}

// Host returns the host name of the listing's URI without port.
// Empty and unparsable URIs have no host.
func (r Result) Host() string {
	if r.URI == "" {
		return ""
	}
	u, err := url.Parse(r.URI)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Compare orders results by rank. Page, URI and the ad flag only break ties
// so that sorting stays deterministic for malformed sets.
func Compare(a, b Result) int {
	if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Page, b.Page); c != 0 {
		return c
	}
	if c := cmp.Compare(a.URI, b.URI); c != 0 {
		return c
	}
	switch {
	case a.Advertisement == b.Advertisement:
		return 0
	case !a.Advertisement:
		return -1
	default:
		return 1
	}
}

// Listing is a raw, not yet ranked entry extracted from a page.
type Listing struct {
	URI           string
	Advertisement bool
}

// Assign ranks listings in document order: the i-th listing receives
// rank startRank+i.
func Assign(page, startRank int, listings []Listing) []Result {
	results := make([]Result, 0, len(listings))
	for i, l := range listings {
		results = append(results, Result{
			Page:          page,
			Rank:          startRank + i,
			URI:           l.URI,
			Advertisement: l.Advertisement,
		})
	}
	return results
}

// Merge unions the given result sets. Exact duplicates collapse to one entry
// and the returned slice is sorted by rank.
func Merge(sets ...[]Result) []Result {
	seen := make(map[Result]struct{})
	merged := []Result{}
	for _, set := range sets {
		for _, r := range set {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			merged = append(merged, r)
		}
	}
	slices.SortFunc(merged, Compare)
	return merged
}
