package storage

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/internal/ranking"
)

func TestFetchResult_OK(t *testing.T) {
	tests := []struct {
		name string
		res  *FetchResult
		want bool
	}{
		{"nil", nil, false},
		{"200", &FetchResult{StatusCode: 200}, true},
		{"204", &FetchResult{StatusCode: 204}, true},
		{"302", &FetchResult{StatusCode: 302}, false},
		{"429", &FetchResult{StatusCode: 429}, false},
		{"error", &FetchResult{StatusCode: 200, Error: "read failed"}, false},
		{"challenged", &FetchResult{StatusCode: 200, DetectedBot: true}, false},
	}
	for _, tt := range tests {
		if got := tt.res.OK(); got != tt.want {
			t.Errorf("%s: OK() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// ensure Snapshot compiles and has the fields expected
func TestSnapshot_Types(t *testing.T) {
	now := time.Now()
	_ = Snapshot{
		ID:             "run-1",
		Query:          "golang",
		Engine:         "https://www.google.com",
		RequestedAt:    now,
		RequestedPages: 10,
		Results:        []ranking.Result{{Page: 1, Rank: 1, URI: "https://go.dev/"}},
	}
	_ = Filter{Query: "golang", Since: &now, Limit: 10}
}

type mockBackend struct{}

func (m *mockBackend) Save(ctx context.Context, snapshot *Snapshot) error { return nil }
func (m *mockBackend) Query(ctx context.Context, filter Filter) ([]*Snapshot, error) {
	return nil, nil
}
func (m *mockBackend) Close() error { return nil }

func TestBackendInterface(t *testing.T) {
	var b Backend = &mockBackend{}
	_ = b
}
