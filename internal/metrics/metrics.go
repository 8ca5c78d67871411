package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FranksOps/rankwatch/internal/storage"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_fetch_requests_total",
			Help: "Total number of result page requests executed",
		},
		[]string{"engine", "status", "detected", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rankwatch_fetch_duration_seconds",
			Help:    "Duration of result page requests in seconds, retries included",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_fetch_bytes_total",
			Help: "Total bytes of result pages downloaded",
		},
		[]string{"engine"},
	)

	FetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_fetch_retries_total",
			Help: "Total number of retried result page requests",
		},
		[]string{"engine"},
	)

	CrawlStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_crawl_stops_total",
			Help: "Number of finished crawls by the reason pagination stopped",
		},
		[]string{"reason"},
	)

	ListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_listings_total",
			Help: "Total number of listings extracted from stored pages",
		},
		[]string{"kind"},
	)
)

// RecordFetch updates the fetch metrics for one logical page request.
func RecordFetch(engine string, res *storage.FetchResult) {
	if res == nil {
		return
	}

	statusStr := strconv.Itoa(res.StatusCode)
	if res.Error != "" {
		statusStr = "error"
	}

	FetchRequestsTotal.WithLabelValues(engine, statusStr, strconv.FormatBool(res.DetectedBot), res.DetectionSrc).Inc()
	FetchDuration.WithLabelValues(engine).Observe(res.Duration.Seconds())
	FetchBytesTotal.WithLabelValues(engine).Add(float64(len(res.Body)))
	if res.Attempts > 1 {
		FetchRetriesTotal.WithLabelValues(engine).Add(float64(res.Attempts - 1))
	}
}

// RecordCrawlStop counts a finished crawl by its stop reason.
func RecordCrawlStop(reason string) {
	CrawlStopsTotal.WithLabelValues(reason).Inc()
}

// RecordListings counts the organic and advertisement listings of one page.
func RecordListings(organic, ads int) {
	ListingsTotal.WithLabelValues("organic").Add(float64(organic))
	ListingsTotal.WithLabelValues("advertisement").Add(float64(ads))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
