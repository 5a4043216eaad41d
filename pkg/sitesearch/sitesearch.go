// Package sitesearch provides a public SDK for embedding SiteSearch as a
// library: crawl one site into a persistent index and query it.
//
// Example usage:
//
//	cfg := config.DefaultConfig()
//	cfg.Crawl.SeedURL = "https://example.com/"
//
//	eng, err := sitesearch.Open(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	if _, err := eng.EnsureIndex(ctx); err != nil {
//	    return err
//	}
//	resp := eng.Lookup(ctx, "python web", eng.DefaultOptions())
package sitesearch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/engine"
	"github.com/IshaanNene/sitesearch/internal/fetcher"
	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/index/backend"
	"github.com/IshaanNene/sitesearch/internal/observability"
	"github.com/IshaanNene/sitesearch/internal/parser"
	"github.com/IshaanNene/sitesearch/internal/search"
	"github.com/IshaanNene/sitesearch/internal/storage"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// Engine owns one index location and the crawler and query engine bound
// to it. It is safe for concurrent use; at most one crawl runs at a time.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	idx      index.Index
	state    backend.State
	searcher *search.Engine

	crawlMu  sync.Mutex
	runMu    sync.RWMutex
	crawler  *engine.Crawler
	last     *engine.Summary
	progress func(engine.Progress)
}

// Open validates cfg and opens the configured index, creating, reusing or
// rebuilding it as the location requires.
func Open(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger.With("component", "sitesearch"),
		metrics: observability.NewMetrics(logger),
	}
	if err := e.open(); err != nil {
		return nil, err
	}

	e.metrics.RegisterGauge("sitesearch_index_documents", "Committed documents in the index", func() int64 {
		n, _ := e.DocumentCount()
		return int64(n)
	})
	e.metrics.RegisterGauge("sitesearch_crawl_active_workers", "Workers currently fetching", func() int64 {
		e.runMu.RLock()
		defer e.runMu.RUnlock()
		if e.crawler == nil {
			return 0
		}
		return int64(e.crawler.Stats().ActiveWorkers.Load())
	})
	return e, nil
}

// open must be called with mu held or before the Engine is shared.
func (e *Engine) open() error {
	opened, err := backend.Open(e.cfg.Index.Path, e.cfg.Index.Backend, e.logger)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	e.idx = opened.Index
	e.state = opened.State
	e.searcher = search.NewEngine(opened.Index, e.cfg.Search, e.logger)
	return nil
}

// IndexState reports what Open found at the index location.
func (e *Engine) IndexState() backend.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// DocumentCount returns the number of committed documents.
func (e *Engine) DocumentCount() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.Count()
}

// Metrics returns the engine's metrics registry.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config { return e.cfg }

// OnProgress registers a callback invoked after every indexed page of
// subsequent crawls.
func (e *Engine) OnProgress(fn func(engine.Progress)) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.progress = fn
}

// EnsureIndex crawls the configured seed only when the index holds no
// documents. It returns a nil summary when existing data is reused.
func (e *Engine) EnsureIndex(ctx context.Context) (*engine.Summary, error) {
	n, err := e.DocumentCount()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		e.logger.Info("reusing existing index", "documents", n, "path", e.cfg.Index.Path)
		return nil, nil
	}
	return e.Crawl(ctx, "")
}

// Crawl indexes the site rooted at seed, or the configured seed when seed
// is empty. The index must be empty; use Rebuild to replace existing data.
func (e *Engine) Crawl(ctx context.Context, seed string) (*engine.Summary, error) {
	if !e.crawlMu.TryLock() {
		return nil, types.ErrCrawlInProgress
	}
	defer e.crawlMu.Unlock()

	n, err := e.DocumentCount()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w (%d documents at %s)", types.ErrIndexNotEmpty, n, e.cfg.Index.Path)
	}
	return e.crawl(ctx, seed)
}

// Rebuild discards the index and crawls again from seed.
func (e *Engine) Rebuild(ctx context.Context, seed string) (*engine.Summary, error) {
	if !e.crawlMu.TryLock() {
		return nil, types.ErrCrawlInProgress
	}
	defer e.crawlMu.Unlock()

	e.mu.Lock()
	if err := e.idx.Close(); err != nil {
		e.logger.Warn("closing index before rebuild", "error", err)
	}
	err := backend.Reset(e.cfg.Index.Path, e.cfg.Index.Backend)
	if err == nil {
		err = e.open()
	}
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	e.logger.Info("index cleared for rebuild", "path", e.cfg.Index.Path)
	return e.crawl(ctx, seed)
}

// crawl must be called with crawlMu held.
func (e *Engine) crawl(ctx context.Context, seed string) (*engine.Summary, error) {
	if seed == "" {
		seed = e.cfg.Crawl.SeedURL
	}
	if seed == "" {
		return nil, fmt.Errorf("%w: no seed URL configured", types.ErrInvalidURL)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(e.cfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	defer httpFetcher.Close()

	p, err := parser.New(e.cfg.Parser.Type, e.logger)
	if err != nil {
		return nil, fmt.Errorf("create parser: %w", err)
	}

	sink, err := storage.New(e.cfg.Storage, e.logger)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}

	e.mu.RLock()
	idx := e.idx
	e.mu.RUnlock()

	crawler := engine.New(e.cfg, e.logger)
	crawler.SetFetcher(httpFetcher)
	crawler.SetParser(p)
	crawler.SetWriter(idx)
	if sink != nil {
		crawler.SetStorage(sink)
		defer func() {
			if err := sink.Close(); err != nil {
				e.logger.Error("closing storage", "backend", sink.Name(), "error", err)
			}
		}()
	}

	e.runMu.Lock()
	if e.progress != nil {
		crawler.OnProgress(e.progress)
	}
	e.crawler = crawler
	e.runMu.Unlock()

	summary, err := crawler.Crawl(ctx, seed)

	e.runMu.Lock()
	e.last = summary
	e.runMu.Unlock()

	if summary != nil {
		e.metrics.RecordCrawl(observability.CrawlReport{
			Indexed:     summary.Indexed,
			Skipped:     summary.Skipped,
			FetchErrors: summary.FetchErrors,
			ParseErrors: summary.ParseErrors,
			Bytes:       crawler.Stats().BytesDownloaded.Load(),
			Failed:      err != nil,
		})
	}
	return summary, err
}

// StopCrawl asks a running crawl to finish its in-flight pages and commit.
func (e *Engine) StopCrawl() {
	e.runMu.RLock()
	defer e.runMu.RUnlock()
	if e.crawler != nil {
		e.crawler.Stop()
	}
}

// DefaultOptions returns query options from the search configuration.
func (e *Engine) DefaultOptions() search.Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.searcher.DefaultOptions()
}

// Search returns the documents matching query.
func (e *Engine) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.searcher.Search(ctx, query, opts)
}

// Lookup answers query, reporting failures through the response message.
func (e *Engine) Lookup(ctx context.Context, query string, opts search.Options) search.Response {
	e.mu.RLock()
	resp := e.searcher.Lookup(ctx, query, opts)
	e.mu.RUnlock()

	e.metrics.RecordQuery(resp.Total, resp.Invalid, resp.Elapsed)
	return resp
}

// Stats returns index and crawl statistics.
func (e *Engine) Stats() map[string]any {
	stats := map[string]any{
		"index_backend": e.cfg.Index.Backend,
		"index_path":    e.cfg.Index.Path,
		"index_state":   string(e.IndexState()),
	}
	if n, err := e.DocumentCount(); err == nil {
		stats["index_documents"] = n
	}

	e.runMu.RLock()
	defer e.runMu.RUnlock()

	stats["crawl_state"] = engine.StateIdle.String()
	if e.crawler != nil {
		stats["crawl_state"] = e.crawler.GetState().String()
		stats["crawl"] = e.crawler.Stats().Snapshot()
	}
	if e.last != nil {
		stats["last_crawl"] = map[string]any{
			"run_id":       e.last.RunID,
			"seed":         e.last.Seed,
			"indexed":      e.last.Indexed,
			"visited":      len(e.last.Visited),
			"fetch_errors": e.last.FetchErrors,
			"skipped":      e.last.Skipped,
			"parse_errors": e.last.ParseErrors,
			"stop_reason":  e.last.StopReason,
			"duration":     e.last.Duration.String(),
		}
	}
	return stats
}

// Close stops any running crawl, waits for it and closes the index.
func (e *Engine) Close() error {
	e.StopCrawl()
	e.crawlMu.Lock()
	defer e.crawlMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.Close()
}
