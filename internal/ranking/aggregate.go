package ranking

import (
	"cmp"
	"slices"
	"strings"
)

// HostSet holds the host names the operator wants highlighted.
type HostSet map[string]struct{}

// NewHostSet builds a HostSet, dropping blank entries.
func NewHostSet(hosts ...string) HostSet {
	s := make(HostSet, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		s[h] = struct{}{}
	}
	return s
}

// Contains reports whether host is marked. A nil set marks nothing.
func (s HostSet) Contains(host string) bool {
	_, ok := s[host]
	return ok
}

// Sorted returns the marked hosts in lexicographic order.
func (s HostSet) Sorted() []string {
	hosts := make([]string, 0, len(s))
	for h := range s {
		hosts = append(hosts, h)
	}
	slices.Sort(hosts)
	return hosts
}

// Cluster groups every result pointing at the same host.
type Cluster struct {
	Host           string   `json:"host"`
	Marked         bool     `json:"marked"`
	Count          int      `json:"count"`
	Advertisements int      `json:"advertisements"`
	BestRank       int      `json:"best_rank"`
	BestPage       int      `json:"best_page"`
	Results        []Result `json:"results"`
}

// Summary is the aggregated view over a full result set.
type Summary struct {
	Clusters       []Cluster `json:"clusters"`
	Total          int       `json:"total"`
	Advertisements int       `json:"advertisements"`
	PagesReached   int       `json:"pages_reached"`
	PagesRequested int       `json:"pages_requested"`
}

// Cluster returns the cluster for host, if present.
func (s Summary) Cluster(host string) (Cluster, bool) {
	for _, c := range s.Clusters {
		if c.Host == host {
			return c, true
		}
	}
	return Cluster{}, false
}

// Aggregate clusters results by host and computes per-host and global
// statistics. results may be unsorted and hold duplicates; they are merged
// first. Clusters are ordered by descending size, then host name. Marking
// only sets Cluster.Marked.
func Aggregate(results []Result, marked HostSet, pagesRequested int) Summary {
	return AggregateMerged(Merge(results), marked, pagesRequested)
}

// AggregateMerged is Aggregate for results that already came out of Merge.
func AggregateMerged(sorted []Result, marked HostSet, pagesRequested int) Summary {
	s := Summary{
		Clusters:       []Cluster{},
		Total:          len(sorted),
		PagesRequested: pagesRequested,
	}
	if len(sorted) == 0 {
		return s
	}
	s.PagesReached = sorted[len(sorted)-1].Page

	byHost := make(map[string]*Cluster)
	var order []string
	for _, r := range sorted {
		if r.Advertisement {
			s.Advertisements++
		}
		host := r.Host()
		c, ok := byHost[host]
		if !ok {
			// sorted is rank-ascending, so the first result seen is the best one
			c = &Cluster{
				Host:     host,
				Marked:   marked.Contains(host),
				BestRank: r.Rank,
				BestPage: r.Page,
			}
			byHost[host] = c
			order = append(order, host)
		}
		c.Results = append(c.Results, r)
		c.Count++
		if r.Advertisement {
			c.Advertisements++
		}
	}

	s.Clusters = make([]Cluster, 0, len(order))
	for _, host := range order {
		s.Clusters = append(s.Clusters, *byHost[host])
	}
	slices.SortFunc(s.Clusters, compareClusters)
	return s
}

func compareClusters(a, b Cluster) int {
	if c := cmp.Compare(b.Count, a.Count); c != 0 {
		return c
	}
	return cmp.Compare(a.Host, b.Host)
}
