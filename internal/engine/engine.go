package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/sitesearch/internal/analysis"
	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// State represents the crawler's lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
	StateStopped  State = 3
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stop reasons reported in Summary.
const (
	StopFrontierEmpty = "frontier_empty"
	StopMaxPages      = "max_pages"
	StopMaxDuration   = "max_duration"
	StopRequested     = "stop_requested"
	StopError         = "error"
)

// Stats tracks crawl statistics.
type Stats struct {
	PagesFetched    atomic.Int64
	PagesIndexed    atomic.Int64
	PagesSkipped    atomic.Int64
	FetchErrors     atomic.Int64
	ParseErrors     atomic.Int64
	URLsEnqueued    atomic.Int64
	URLsFiltered    atomic.Int64
	BytesDownloaded atomic.Int64
	ActiveWorkers   atomic.Int32

	mu        sync.RWMutex
	startTime time.Time
}

func (s *Stats) markStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = time.Now()
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	elapsed := time.Duration(0)
	if !s.startTime.IsZero() {
		elapsed = time.Since(s.startTime)
	}
	return map[string]any{
		"pages_fetched":    s.PagesFetched.Load(),
		"pages_indexed":    s.PagesIndexed.Load(),
		"pages_skipped":    s.PagesSkipped.Load(),
		"fetch_errors":     s.FetchErrors.Load(),
		"parse_errors":     s.ParseErrors.Load(),
		"urls_enqueued":    s.URLsEnqueued.Load(),
		"urls_filtered":    s.URLsFiltered.Load(),
		"bytes_downloaded": s.BytesDownloaded.Load(),
		"active_workers":   s.ActiveWorkers.Load(),
		"elapsed":          elapsed.String(),
	}
}

// Fetcher retrieves one URL. The crawler re-checks the content type and
// the final URL itself, so fetchers need not filter either.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)
}

// ScopedFetcher is implemented by fetchers that can refuse redirects
// leaving the crawl scope before requesting the target.
type ScopedFetcher interface {
	SetScope(inScope func(rawURL string) bool)
}

// Parser extracts title, text and links from a response.
type Parser interface {
	Parse(resp *types.Response) (*types.Page, error)
}

// Writer is the index writer the crawler fills and finally commits.
type Writer interface {
	AddDocument(doc *types.Document) error
	Commit() error
	Rollback() error
}

// Storage receives batches of crawled pages for export.
type Storage interface {
	Store(pages []*types.Page) error
}

// Progress is reported after every indexed page.
type Progress struct {
	URL     string
	Indexed int
	Queued  int
}

// Summary describes a finished crawl run.
type Summary struct {
	RunID       string        `json:"run_id"`
	Seed        string        `json:"seed"`
	Visited     []string      `json:"visited"`
	Indexed     int           `json:"indexed"`
	FetchErrors int           `json:"fetch_errors"`
	Skipped     int           `json:"skipped"`
	ParseErrors int           `json:"parse_errors"`
	StopReason  string        `json:"stop_reason"`
	Duration    time.Duration `json:"duration_ns"`
}

// Crawler walks a single host breadth-first, feeding every HTML page into
// the index writer. Fetching and parsing run on a worker pool; frontier,
// visited set and writer are only touched by the coordinating goroutine.
type Crawler struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher Fetcher
	parser  Parser
	writer  Writer
	storage Storage

	state    atomic.Int32
	stats    *Stats
	progress func(Progress)

	stopOnce sync.Once
	stopCh   chan struct{}
	mu       sync.RWMutex
}

// New creates a Crawler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Crawler {
	return &Crawler{
		cfg:    cfg,
		logger: logger.With("component", "crawler"),
		stats:  &Stats{},
		stopCh: make(chan struct{}),
	}
}

// SetFetcher sets the fetcher implementation.
func (c *Crawler) SetFetcher(f Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetcher = f
}

// SetParser sets the parser implementation.
func (c *Crawler) SetParser(p Parser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parser = p
}

// SetWriter sets the index writer.
func (c *Crawler) SetWriter(w Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer = w
}

// SetStorage sets an optional page export sink.
func (c *Crawler) SetStorage(s Storage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage = s
}

// OnProgress registers a callback invoked after every indexed page.
func (c *Crawler) OnProgress(fn func(Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = fn
}

// Stats returns the current crawl statistics.
func (c *Crawler) Stats() *Stats {
	return c.stats
}

// GetState returns the current crawler state.
func (c *Crawler) GetState() State {
	return State(c.state.Load())
}

// Stop ends a running crawl gracefully: nothing new is dispatched,
// in-flight pages are finished and the index is committed.
func (c *Crawler) Stop() {
	if c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		c.logger.Info("crawler stopping...")
	}
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Crawl runs one crawl from seed to completion.
//
// The index writer is committed when the frontier drains, a configured
// cap is reached or Stop is called. It is rolled back when ctx is
// cancelled or an unrecoverable error occurs.
func (c *Crawler) Crawl(ctx context.Context, seed string) (*Summary, error) {
	if c.fetcher == nil || c.parser == nil || c.writer == nil {
		return nil, errors.New("crawler requires a fetcher, a parser and an index writer")
	}
	if err := config.ValidateURL(seed); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("crawler is in state %s, cannot start", c.GetState())
	}
	defer c.state.Store(int32(StateStopped))

	seed = CanonicalizeURL(seed)
	frontier, err := NewFrontier(seed, c.cfg.Crawl.ExcludePaths)
	if err != nil {
		return nil, err
	}

	if sf, ok := c.fetcher.(ScopedFetcher); ok {
		sf.SetScope(frontier.InScope)
	}

	summary := &Summary{RunID: uuid.NewString(), Seed: seed}
	logger := c.logger.With("run_id", summary.RunID)
	start := time.Now()
	c.stats.markStart()

	logger.Info("crawl starting",
		"seed", seed,
		"host", frontier.Host(),
		"concurrency", c.cfg.Crawl.Concurrency,
		"max_pages", c.cfg.Crawl.MaxPages,
		"max_duration", c.cfg.Crawl.MaxDuration,
	)

	frontier.Push(seed)
	c.stats.URLsEnqueued.Add(1)

	fatal := c.run(ctx, logger, frontier, summary)

	summary.Visited = frontier.VisitedSet().URLs()
	summary.Duration = time.Since(start)

	if fatal != nil {
		summary.StopReason = StopError
		if rbErr := c.writer.Rollback(); rbErr != nil {
			logger.Error("index rollback failed", "error", rbErr)
		}
		logger.Error("crawl aborted, index rolled back", "error", fatal, "stats", c.stats.Snapshot())
		return summary, fatal
	}

	if err := c.writer.Commit(); err != nil {
		summary.StopReason = StopError
		if rbErr := c.writer.Rollback(); rbErr != nil {
			logger.Error("index rollback failed", "error", rbErr)
		}
		return summary, fmt.Errorf("commit index: %w", err)
	}

	logger.Info("crawl complete",
		"indexed", summary.Indexed,
		"visited", frontier.VisitedCount(),
		"discovered", frontier.Discovered(),
		"stop_reason", summary.StopReason,
		"duration", summary.Duration,
		"stats", c.stats.Snapshot(),
	)
	return summary, nil
}

// run is the coordinator loop. It is the only goroutine that mutates the
// frontier, the visited set and the index writer.
func (c *Crawler) run(ctx context.Context, logger *slog.Logger, frontier *Frontier, summary *Summary) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var deadline <-chan time.Time
	if c.cfg.Crawl.MaxDuration > 0 {
		timer := time.NewTimer(c.cfg.Crawl.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	workers := c.cfg.Crawl.Concurrency
	if workers < 1 {
		workers = 1
	}
	sched := newScheduler(c, workers, frontier.InScope, logger)
	sched.start(runCtx)

	batcher := newPageBatcher(c.storage, c.cfg.Storage.BatchSize, logger)
	maxPages := c.cfg.Crawl.MaxPages

	inflight := 0
	stopCh := c.stopCh
	var fatal error

	for {
		select {
		case <-stopCh:
			stopCh = nil
			if summary.StopReason == "" {
				summary.StopReason = StopRequested
			}
		default:
		}

		for summary.StopReason == "" && inflight < workers {
			if maxPages > 0 && summary.Indexed+inflight >= maxPages {
				break
			}
			u, ok := frontier.Pop()
			if !ok {
				break
			}
			if frontier.Visited(u) {
				continue
			}
			sched.dispatch(u)
			inflight++
		}

		if inflight == 0 {
			if summary.StopReason == "" {
				summary.StopReason = StopFrontierEmpty
				if maxPages > 0 && summary.Indexed >= maxPages {
					summary.StopReason = StopMaxPages
				}
			}
			break
		}

		select {
		case res := <-sched.results:
			inflight--
			if err := c.handle(logger, res, frontier, summary, batcher); err != nil {
				fatal = err
			}
		case <-deadline:
			deadline = nil
			if summary.StopReason == "" {
				summary.StopReason = StopMaxDuration
				logger.Info("crawl duration cap reached, draining in-flight pages", "in_flight", inflight)
			}
		case <-stopCh:
			stopCh = nil
			if summary.StopReason == "" {
				summary.StopReason = StopRequested
			}
		case <-ctx.Done():
			fatal = fmt.Errorf("%w: %w", types.ErrCrawlStopped, ctx.Err())
		}

		if fatal != nil {
			break
		}
	}

	cancel()
	if err := sched.stop(); err != nil && fatal == nil && !errors.Is(err, context.Canceled) {
		fatal = err
	}
	batcher.flush()
	frontier.Close()
	return fatal
}

// handle applies one worker result. Per-page failures are logged and
// counted; only index faults are returned.
func (c *Crawler) handle(logger *slog.Logger, res fetchResult, frontier *Frontier, summary *Summary, batcher *pageBatcher) error {
	logger = logger.With("url", res.url)

	if res.resp != nil {
		frontier.MarkVisited(res.url)
	}

	if res.err != nil {
		var ctErr *types.UnsupportedContentTypeError
		var parseErr *types.ParseError
		switch {
		case errors.As(res.err, &ctErr):
			c.stats.PagesSkipped.Add(1)
			summary.Skipped++
			logger.Info("skipping non-HTML page", "content_type", ctErr.ContentType)
		case errors.As(res.err, &parseErr):
			c.stats.ParseErrors.Add(1)
			summary.ParseErrors++
			logger.Warn("parse failed", "error", res.err)
		default:
			c.stats.FetchErrors.Add(1)
			summary.FetchErrors++
			logger.Warn("fetch failed", "error", res.err)
		}
		return nil
	}

	page := res.page
	page.URL = res.url
	if err := c.writer.AddDocument(analysis.NewDocument(page)); err != nil {
		if errors.Is(err, types.ErrDuplicateDocument) {
			return fmt.Errorf("internal consistency fault: %w", err)
		}
		return fmt.Errorf("index %s: %w", res.url, err)
	}
	summary.Indexed++
	c.stats.PagesIndexed.Add(1)
	batcher.add(page)

	for _, link := range page.Links {
		if frontier.Push(link) {
			c.stats.URLsEnqueued.Add(1)
		} else {
			c.stats.URLsFiltered.Add(1)
		}
	}

	logger.Debug("indexed page", "title", page.Title, "links", len(page.Links), "queued", frontier.Len())

	c.mu.RLock()
	progress := c.progress
	c.mu.RUnlock()
	if progress != nil {
		progress(Progress{URL: res.url, Indexed: summary.Indexed, Queued: frontier.Len()})
	}
	return nil
}

// pageBatcher forwards indexed pages to the export sink in batches.
// Sink failures are logged and never stop the crawl.
type pageBatcher struct {
	storage Storage
	size    int
	logger  *slog.Logger
	batch   []*types.Page
}

func newPageBatcher(s Storage, size int, logger *slog.Logger) *pageBatcher {
	if size < 1 {
		size = 100
	}
	return &pageBatcher{storage: s, size: size, logger: logger}
}

func (b *pageBatcher) add(p *types.Page) {
	if b.storage == nil {
		return
	}
	b.batch = append(b.batch, p)
	if len(b.batch) >= b.size {
		b.flush()
	}
}

func (b *pageBatcher) flush() {
	if b.storage == nil || len(b.batch) == 0 {
		return
	}
	if err := b.storage.Store(b.batch); err != nil {
		b.logger.Error("storage error", "error", err, "batch_size", len(b.batch))
	}
	b.batch = nil
}
