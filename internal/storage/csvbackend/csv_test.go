package csvbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/internal/ranking"
	"github.com/FranksOps/rankwatch/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "history.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	snap1 := &storage.Snapshot{
		ID:             "csv1",
		Query:          "running shoes",
		Engine:         "https://www.google.de",
		RequestedAt:    now.Add(-time.Hour),
		RequestedPages: 10,
		Results: []ranking.Result{
			{Page: 1, Rank: 1, URI: "https://shop.example/?a=1,2", Advertisement: true},
			{Page: 1, Rank: 2, URI: "https://blog.example/\"quoted\""},
		},
	}
	empty := &storage.Snapshot{
		ID:             "csv2",
		Query:          "running shoes",
		Engine:         "https://www.google.de",
		RequestedAt:    now,
		RequestedPages: 10,
	}

	for _, s := range []*storage.Snapshot{snap1, empty, snap1} {
		if err := b.Save(ctx, s); err != nil {
			t.Fatalf("Failed to save %s: %v", s.ID, err)
		}
	}

	got, err := b.Query(ctx, storage.Filter{Query: "running shoes"})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(got))
	}
	if got[0].ID != "csv2" {
		t.Errorf("Expected newest snapshot first, got %s", got[0].ID)
	}
	if len(got[0].Results) != 0 {
		t.Errorf("Expected no results for empty snapshot, got %d", len(got[0].Results))
	}
	if len(got[1].Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got[1].Results))
	}
	for i, r := range got[1].Results {
		if r != snap1.Results[i] {
			t.Errorf("Expected %v, got %v", snap1.Results[i], r)
		}
	}
	if !got[1].RequestedAt.Equal(snap1.RequestedAt) || got[1].RequestedPages != 10 {
		t.Errorf("Snapshot metadata mismatch: %+v", got[1])
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close backend: %v", err)
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read csv file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	// header + 2 result rows + 1 empty-snapshot row
	if len(lines) != 4 {
		t.Errorf("Expected 4 lines, got %d:\n%s", len(lines), raw)
	}
	if !strings.HasPrefix(lines[0], "snapshot_id,query") {
		t.Errorf("Expected header row, got %s", lines[0])
	}

	// Reopening must not write a second header
	b2, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer b2.Close()
	since := now.Add(-time.Minute)
	recent, err := b2.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Failed to query reopened backend: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "csv2" {
		t.Errorf("Expected only csv2 since %v", since)
	}
}
