// Package observability exposes crawl and query counters in Prometheus
// text exposition format.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operational metrics for crawling and searching.
type Metrics struct {
	// Crawl metrics
	CrawlsTotal     atomic.Int64
	CrawlsFailed    atomic.Int64
	PagesIndexed    atomic.Int64
	PagesSkipped    atomic.Int64
	FetchErrors     atomic.Int64
	ParseErrors     atomic.Int64
	BytesDownloaded atomic.Int64

	// Query metrics
	QueriesTotal   atomic.Int64
	QueriesInvalid atomic.Int64
	QueriesNoHits  atomic.Int64
	QueryNanos     atomic.Int64

	mu     sync.RWMutex
	gauges map[string]gauge

	logger *slog.Logger
}

type gauge struct {
	help string
	fn   func() int64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		gauges: make(map[string]gauge),
		logger: logger.With("component", "metrics"),
	}
}

// RegisterGauge exposes fn's current value under name on every scrape.
func (m *Metrics) RegisterGauge(name, help string, fn func() int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = gauge{help: help, fn: fn}
}

// CrawlReport is the per-run outcome fed into the crawl counters.
type CrawlReport struct {
	Indexed     int
	Skipped     int
	FetchErrors int
	ParseErrors int
	Bytes       int64
	Failed      bool
}

// RecordCrawl adds one finished crawl run.
func (m *Metrics) RecordCrawl(r CrawlReport) {
	m.CrawlsTotal.Add(1)
	if r.Failed {
		m.CrawlsFailed.Add(1)
	}
	m.PagesIndexed.Add(int64(r.Indexed))
	m.PagesSkipped.Add(int64(r.Skipped))
	m.FetchErrors.Add(int64(r.FetchErrors))
	m.ParseErrors.Add(int64(r.ParseErrors))
	m.BytesDownloaded.Add(r.Bytes)
}

// RecordQuery adds one answered query.
func (m *Metrics) RecordQuery(hits int, invalid bool, elapsed time.Duration) {
	m.QueriesTotal.Add(1)
	m.QueryNanos.Add(elapsed.Nanoseconds())
	switch {
	case invalid:
		m.QueriesInvalid.Add(1)
	case hits == 0:
		m.QueriesNoHits.Add(1)
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	counters := []struct {
		name  string
		help  string
		value int64
	}{
		{"sitesearch_crawls_total", "Total crawl runs", m.CrawlsTotal.Load()},
		{"sitesearch_crawls_failed_total", "Crawl runs rolled back", m.CrawlsFailed.Load()},
		{"sitesearch_pages_indexed_total", "Pages added to the index", m.PagesIndexed.Load()},
		{"sitesearch_pages_skipped_total", "Non-HTML responses skipped", m.PagesSkipped.Load()},
		{"sitesearch_fetch_errors_total", "Failed fetches", m.FetchErrors.Load()},
		{"sitesearch_parse_errors_total", "Pages that failed to parse", m.ParseErrors.Load()},
		{"sitesearch_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"sitesearch_queries_total", "Total queries answered", m.QueriesTotal.Load()},
		{"sitesearch_queries_invalid_total", "Queries rejected as malformed", m.QueriesInvalid.Load()},
		{"sitesearch_queries_no_hits_total", "Queries with no results", m.QueriesNoHits.Load()},
	}

	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value)
	}

	fmt.Fprintf(w, "# HELP sitesearch_query_duration_seconds_sum Total time spent answering queries\n")
	fmt.Fprintf(w, "# TYPE sitesearch_query_duration_seconds_sum counter\n")
	fmt.Fprintf(w, "sitesearch_query_duration_seconds_sum %g\n", time.Duration(m.QueryNanos.Load()).Seconds())

	m.mu.RLock()
	names := make([]string, 0, len(m.gauges))
	for name := range m.gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := m.gauges[name]
		fmt.Fprintf(w, "# HELP %s %s\n", name, g.help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %d\n", name, g.fn())
	}
	m.mu.RUnlock()
}

// Snapshot returns all counters as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	snap := map[string]int64{
		"crawls_total":     m.CrawlsTotal.Load(),
		"crawls_failed":    m.CrawlsFailed.Load(),
		"pages_indexed":    m.PagesIndexed.Load(),
		"pages_skipped":    m.PagesSkipped.Load(),
		"fetch_errors":     m.FetchErrors.Load(),
		"parse_errors":     m.ParseErrors.Load(),
		"bytes_downloaded": m.BytesDownloaded.Load(),
		"queries_total":    m.QueriesTotal.Load(),
		"queries_invalid":  m.QueriesInvalid.Load(),
		"queries_no_hits":  m.QueriesNoHits.Load(),
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, g := range m.gauges {
		snap[name] = g.fn()
	}
	return snap
}
