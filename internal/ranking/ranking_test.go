package ranking

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign_ContiguousRanks(t *testing.T) {
	listings := []Listing{
		{URI: "https://a.example/"},
		{URI: "https://b.example/", Advertisement: true},
		{URI: "https://c.example/"},
	}

	got := Assign(2, 7, listings)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, 2, r.Page)
		assert.Equal(t, 7+i, r.Rank)
		assert.Equal(t, listings[i].URI, r.URI)
		assert.Equal(t, listings[i].Advertisement, r.Advertisement)
	}
}

func TestAssign_Empty(t *testing.T) {
	assert.Empty(t, Assign(1, 1, nil))
}

func TestMerge_SortsAndCollapsesDuplicates(t *testing.T) {
	page1 := []Result{
		{Page: 1, Rank: 2, URI: "https://b.example/"},
		{Page: 1, Rank: 1, URI: "https://a.example/"},
	}
	page2 := []Result{
		{Page: 2, Rank: 3, URI: "https://c.example/", Advertisement: true},
		{Page: 1, Rank: 2, URI: "https://b.example/"},
	}

	got := Merge(page1, page2)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Rank, got[i].Rank, "ranks must be strictly increasing")
	}
	assert.Equal(t, 1, got[0].Rank)
	assert.True(t, got[2].Advertisement)
}

func TestMerge_KeepsResultsDifferingInOneField(t *testing.T) {
	a := Result{Page: 1, Rank: 1, URI: "https://a.example/"}
	b := a
	b.Advertisement = true

	got := Merge([]Result{a}, []Result{b})
	assert.Len(t, got, 2)
}

func TestResult_Host(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://www.example.com/path?q=1", "www.example.com"},
		{"http://example.org:8080/", "example.org"},
		{"", ""},
		{"/relative/only", ""},
		{"://broken", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Result{URI: tt.uri}.Host(), tt.uri)
	}
}

func sampleResults() []Result {
	return []Result{
		{Page: 1, Rank: 1, URI: "https://shop.example/a", Advertisement: true},
		{Page: 1, Rank: 2, URI: "https://news.example/x"},
		{Page: 1, Rank: 3, URI: "https://shop.example/b"},
		{Page: 2, Rank: 4, URI: "https://blog.example/1"},
		{Page: 2, Rank: 5, URI: "https://news.example/y"},
		{Page: 2, Rank: 6, URI: "https://alpha.example/"},
		{Page: 3, Rank: 7, URI: "https://shop.example/c"},
	}
}

func TestAggregate_Statistics(t *testing.T) {
	s := Aggregate(sampleResults(), NewHostSet("news.example"), 10)

	assert.Equal(t, 7, s.Total)
	assert.Equal(t, 1, s.Advertisements)
	assert.Equal(t, 3, s.PagesReached)
	assert.Equal(t, 10, s.PagesRequested)

	shop, ok := s.Cluster("shop.example")
	require.True(t, ok)
	assert.Equal(t, 3, shop.Count)
	assert.Equal(t, 1, shop.Advertisements)
	assert.Equal(t, 1, shop.BestRank)
	assert.Equal(t, 1, shop.BestPage)
	assert.False(t, shop.Marked)

	news, ok := s.Cluster("news.example")
	require.True(t, ok)
	assert.Equal(t, 2, news.Count)
	assert.Equal(t, 2, news.BestRank)
	assert.True(t, news.Marked)
}

func TestAggregate_ClusterOrdering(t *testing.T) {
	s := Aggregate(sampleResults(), nil, 3)

	hosts := make([]string, 0, len(s.Clusters))
	for _, c := range s.Clusters {
		hosts = append(hosts, c.Host)
	}
	assert.Equal(t, []string{"shop.example", "news.example", "alpha.example", "blog.example"}, hosts)

	for i := 1; i < len(s.Clusters); i++ {
		a, b := s.Clusters[i-1], s.Clusters[i]
		if a.Count == b.Count {
			assert.Less(t, a.Host, b.Host)
		} else {
			assert.Greater(t, a.Count, b.Count)
		}
	}
}

func TestAggregate_MarkingIsCosmetic(t *testing.T) {
	marked := Aggregate(sampleResults(), NewHostSet("shop.example", "blog.example"), 5)
	plain := Aggregate(sampleResults(), NewHostSet(), 5)

	require.Len(t, marked.Clusters, len(plain.Clusters))
	for i := range plain.Clusters {
		m, p := marked.Clusters[i], plain.Clusters[i]
		assert.Equal(t, p.Host, m.Host)
		assert.Equal(t, p.Count, m.Count)
		assert.Equal(t, p.Advertisements, m.Advertisements)
		assert.Equal(t, p.BestRank, m.BestRank)
		assert.Equal(t, p.BestPage, m.BestPage)
	}
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, NewHostSet("example.com"), 10)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.PagesReached)
	assert.Equal(t, 10, s.PagesRequested)
	assert.Empty(t, s.Clusters)
}

func TestAggregate_UnsortedInputMatchesMerged(t *testing.T) {
	shuffled := sampleResults()
	slices.Reverse(shuffled)
	shuffled = append(shuffled, shuffled[0])

	got := Aggregate(shuffled, NewHostSet("news.example"), 10)
	want := AggregateMerged(sampleResults(), NewHostSet("news.example"), 10)
	assert.Equal(t, want, got)
	assert.Equal(t, 7, got.Total)
	assert.Equal(t, 3, got.PagesReached)
}

func TestHostSet(t *testing.T) {
	s := NewHostSet(" b.example ", "", "a.example")
	assert.True(t, s.Contains("b.example"))
	assert.False(t, s.Contains(""))
	assert.Equal(t, []string{"a.example", "b.example"}, s.Sorted())

	var nilSet HostSet
	assert.False(t, nilSet.Contains("a.example"))
}
