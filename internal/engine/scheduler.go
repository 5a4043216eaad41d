package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// fetchResult is what a worker hands back to the coordinator.
// resp is set whenever the fetch itself succeeded.
type fetchResult struct {
	url  string
	resp *types.Response
	page *types.Page
	err  error
}

// scheduler runs the fetch+parse worker pool. Workers never touch shared
// crawl state; they only read from jobs and write to results.
type scheduler struct {
	crawler *Crawler
	inScope func(rawURL string) bool
	logger  *slog.Logger
	workers int
	jobs    chan string
	results chan fetchResult
	group   *errgroup.Group
}

// newScheduler sizes both channels to the worker count. The coordinator
// never has more than workers URLs in flight, so neither side blocks.
func newScheduler(c *Crawler, workers int, inScope func(string) bool, logger *slog.Logger) *scheduler {
	return &scheduler{
		crawler: c,
		inScope: inScope,
		logger:  logger.With("component", "scheduler"),
		workers: workers,
		jobs:    make(chan string, workers),
		results: make(chan fetchResult, workers),
	}
}

// start launches the worker pool.
func (s *scheduler) start(ctx context.Context) {
	s.logger.Debug("starting worker pool", "workers", s.workers)

	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	for i := 0; i < s.workers; i++ {
		id := i
		g.Go(func() error {
			return s.worker(gctx, id)
		})
	}
}

func (s *scheduler) dispatch(u string) {
	s.jobs <- u
}

// stop closes the job queue and waits for every worker to exit.
func (s *scheduler) stop() error {
	close(s.jobs)
	return s.group.Wait()
}

// worker is a single crawl worker goroutine.
func (s *scheduler) worker(ctx context.Context, id int) error {
	logger := s.logger.With("worker_id", id)

	for u := range s.jobs {
		s.crawler.stats.ActiveWorkers.Add(1)
		res := s.process(ctx, logger, u)
		s.crawler.stats.ActiveWorkers.Add(-1)

		select {
		case s.results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// process fetches and parses one URL.
func (s *scheduler) process(ctx context.Context, logger *slog.Logger, u string) fetchResult {
	res := fetchResult{url: u}

	timeout := s.crawler.cfg.Crawl.RequestTimeout
	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := s.crawler.fetcher.Fetch(fetchCtx, u)
	if err != nil {
		res.err = err
		return res
	}
	// Redirects may end off-site when the fetcher cannot refuse them.
	if resp.FinalURL != "" && !s.inScope(resp.FinalURL) {
		res.err = &types.FetchError{
			URL: u,
			Err: fmt.Errorf("%w: redirected to %s", types.ErrOutOfScope, resp.FinalURL),
		}
		return res
	}
	if !resp.IsHTML() {
		res.err = &types.UnsupportedContentTypeError{URL: u, ContentType: resp.ContentType}
		return res
	}

	s.crawler.stats.PagesFetched.Add(1)
	s.crawler.stats.BytesDownloaded.Add(int64(len(resp.Body)))
	logger.Debug("fetched", "url", u, "status", resp.StatusCode, "size", len(resp.Body), "duration", resp.FetchDuration)

	res.resp = resp
	res.page, res.err = s.crawler.parser.Parse(resp)
	return res
}
