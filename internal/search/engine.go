// Package search evaluates queries against an index and renders results
// with highlighted snippets.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// Options tunes a single query.
type Options struct {
	Mode Mode
	// Fields restricts unqualified terms. Empty means every field.
	Fields []string
	// Limit caps the number of results. Zero uses the engine default,
	// negative means unlimited.
	Limit int
}

// Result is one matching document.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Response is the outcome of Lookup. Errors never escape Lookup; they are
// reported through Message instead.
type Response struct {
	Query   string        `json:"query"`
	Mode    Mode          `json:"mode"`
	Results []Result      `json:"results"`
	Total   int           `json:"total"`
	Message string        `json:"message,omitempty"`
	Invalid bool          `json:"invalid,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// MessageNoResults is the Lookup message for a query with no hits.
const MessageNoResults = "No results found"

// Engine answers queries against a single index.
type Engine struct {
	idx         index.Index
	cfg         config.SearchConfig
	weights     index.Weights
	highlighter *Highlighter
	logger      *slog.Logger
}

// NewEngine creates a query engine over idx.
func NewEngine(idx index.Index, cfg config.SearchConfig, logger *slog.Logger) *Engine {
	return &Engine{
		idx:         idx,
		cfg:         cfg,
		weights:     index.Weights{Title: cfg.TitleBoost, Content: cfg.ContentBoost},
		highlighter: NewHighlighter(cfg),
		logger:      logger.With("component", "search"),
	}
}

// DefaultOptions returns options derived from the engine configuration.
func (e *Engine) DefaultOptions() Options {
	mode, err := ParseMode(e.cfg.Mode)
	if err != nil {
		mode = ModeRanked
	}
	return Options{Mode: mode, Limit: e.cfg.Limit}
}

// Search parses raw and returns the matching documents. An empty query
// returns no results and no error. Malformed queries yield *QueryError.
func (e *Engine) Search(ctx context.Context, raw string, opts Options) ([]Result, error) {
	q, err := ParseQuery(raw, opts.Fields)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return []Result{}, nil
	}

	var hits []index.Hit
	switch opts.Mode {
	case ModeBoolean:
		hits, err = e.matchAll(q)
	case ModeRanked, "":
		hits, err = e.rank(ctx, q)
	default:
		return nil, fmt.Errorf("unknown search mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit == 0 {
		limit = e.cfg.Limit
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	return e.render(ctx, q, hits)
}

// Lookup runs Search and folds any failure into the response message.
func (e *Engine) Lookup(ctx context.Context, raw string, opts Options) Response {
	start := time.Now()
	resp := Response{Query: raw, Mode: opts.Mode, Results: []Result{}}
	if resp.Mode == "" {
		resp.Mode = ModeRanked
	}

	results, err := e.Search(ctx, raw, opts)
	resp.Elapsed = time.Since(start)

	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			resp.Message = "Invalid query: " + qe.Reason
			resp.Invalid = true
		} else {
			e.logger.Error("search failed", "query", raw, "error", err)
			resp.Message = "Search failed: " + err.Error()
		}
		return resp
	}

	resp.Results = results
	resp.Total = len(results)
	if resp.Total == 0 && strings.TrimSpace(raw) != "" {
		resp.Message = MessageNoResults
	}
	e.logger.Debug("query answered", "query", raw, "mode", resp.Mode, "results", resp.Total, "elapsed", resp.Elapsed)
	return resp
}

// matches returns the documents where ft occurs in one of its fields,
// with the raw per-field frequencies.
func (e *Engine) matches(ft index.FieldTerm) (map[string]types.TermFreq, error) {
	postings, err := e.idx.FieldPostings(ft.Term)
	if err != nil {
		return nil, fmt.Errorf("postings for %q: %w", ft.Term, err)
	}
	out := make(map[string]types.TermFreq, len(postings))
	for url, tf := range postings {
		for _, f := range ft.Fields {
			if tf.Field(f) > 0 {
				out[url] = tf
				break
			}
		}
	}
	return out, nil
}

// matchAll intersects the posting sets of every term. Hits are ordered by
// URL; the score is the summed in-field frequency.
func (e *Engine) matchAll(q *Query) ([]index.Hit, error) {
	var scores map[string]float64

	for _, ft := range q.Terms {
		docs, err := e.matches(ft)
		if err != nil {
			return nil, err
		}

		next := make(map[string]float64)
		for url, tf := range docs {
			if scores != nil {
				if _, ok := scores[url]; !ok {
					continue
				}
			}
			var n int
			for _, f := range ft.Fields {
				n += tf.Field(f)
			}
			next[url] = scores[url] + float64(n)
		}
		scores = next
		if len(scores) == 0 {
			return nil, nil
		}
	}

	hits := make([]index.Hit, 0, len(scores))
	for url, s := range scores {
		hits = append(hits, index.Hit{URL: url, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].URL < hits[j].URL })
	return hits, nil
}

// rank scores documents matching any term. Backends with a native ranker
// are delegated to; otherwise each term contributes
// idf * sum(weight(field) * tf(field)).
func (e *Engine) rank(ctx context.Context, q *Query) ([]index.Hit, error) {
	if r, ok := e.idx.(index.Ranker); ok {
		return r.Rank(ctx, q.Terms, e.weights)
	}

	n, err := e.idx.Count()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	scores := make(map[string]float64)
	for _, ft := range q.Terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := e.matches(ft)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			continue
		}

		idf := IDF(n, len(docs))
		for url, tf := range docs {
			var w float64
			for _, f := range ft.Fields {
				w += e.weights.Field(f) * float64(tf.Field(f))
			}
			scores[url] += idf * w
		}
	}

	hits := make([]index.Hit, 0, len(scores))
	for url, s := range scores {
		hits = append(hits, index.Hit{URL: url, Score: s})
	}
	SortHits(hits)
	return hits, nil
}

// IDF is the BM25-style inverse document frequency for a term present in
// df of n documents. It is always positive.
func IDF(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// SortHits orders hits by descending score, ties by ascending URL.
func SortHits(hits []index.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].URL < hits[j].URL
	})
}

func (e *Engine) render(ctx context.Context, q *Query, hits []index.Hit) ([]Result, error) {
	terms := q.HighlightTerms()
	results := make([]Result, 0, len(hits))

	for _, h := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := e.idx.Document(h.URL)
		if errors.Is(err, types.ErrNotFound) {
			e.logger.Warn("posting without stored document", "url", h.URL)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", h.URL, err)
		}

		results = append(results, Result{
			URL:     h.URL,
			Title:   doc.Title,
			Snippet: e.highlighter.Snippet(doc.Text, terms),
			Score:   h.Score,
		})
	}
	return results, nil
}
