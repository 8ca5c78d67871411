package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/internal/storage"
)

func TestMetricsHandler(t *testing.T) {
	RecordFetch("www.google.com", &storage.FetchResult{
		StatusCode: 200,
		Body:       []byte("hello world"), // 11 bytes
		Duration:   time.Second,
		Attempts:   3,
	})
	RecordFetch("www.google.com", &storage.FetchResult{
		Error:    "dial tcp: connection refused",
		Attempts: 1,
	})
	RecordFetch("www.google.com", nil)
	RecordCrawlStop("no-next-page")
	RecordListings(9, 1)

	ts := httptest.NewServer(Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`rankwatch_fetch_requests_total{detected="false",detection_src="",engine="www.google.com",status="200"}`,
		`rankwatch_fetch_requests_total{detected="false",detection_src="",engine="www.google.com",status="error"}`,
		`rankwatch_fetch_duration_seconds_bucket`,
		`rankwatch_fetch_bytes_total{engine="www.google.com"} 11`,
		`rankwatch_fetch_retries_total{engine="www.google.com"} 2`,
		`rankwatch_crawl_stops_total{reason="no-next-page"}`,
		`rankwatch_listings_total{kind="advertisement"}`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	srv := Start(0, nil)
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error stopping server: %v", err)
	}

	var nilServer *Server
	if err := nilServer.Stop(context.Background()); err != nil {
		t.Fatalf("expected nil server stop to be a no-op, got %v", err)
	}
}
