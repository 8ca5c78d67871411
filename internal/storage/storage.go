package storage

import (
	"context"
	"time"

	"github.com/FranksOps/rankwatch/internal/ranking"
)

// FetchResult represents the outcome of a single result page request.
type FetchResult struct {
	ID           string
	URL          string
	Method       string
	StatusCode   int
	Headers      map[string][]string
	Body         []byte
	Duration     time.Duration
	Attempts     int
	DetectedBot  bool
	DetectionSrc string // e.g. "Google", "Cloudflare", "Akamai"
	CreatedAt    time.Time
	Error        string // non-empty if the fetch failed before an HTTP response
}

// OK reports whether the fetch produced a usable 2xx, unchallenged page.
func (r *FetchResult) OK() bool {
	return r != nil && r.Error == "" && !r.DetectedBot &&
		r.StatusCode >= 200 && r.StatusCode < 300
}

// Snapshot is one collected ranking of a query, kept to compare positions over time.
type Snapshot struct {
	ID             string           `json:"id"`
	Query          string           `json:"query"`
	Engine         string           `json:"engine"`
	RequestedAt    time.Time        `json:"requested_at"`
	RequestedPages int              `json:"requested_pages"`
	Results        []ranking.Result `json:"results"`
}

// Filter allows querying for specific Snapshots.
type Filter struct {
	Query  string
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend defines the interface for storing and querying ranking snapshots.
// Saving a snapshot whose ID is already stored is a no-op.
// Query returns snapshots newest first.
type Backend interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Query(ctx context.Context, filter Filter) ([]*Snapshot, error)
	Close() error
}
