// Package bleveindex is the index backend delegated to the bleve full-text
// library. Its analyzer splits on the same word-character runs as the
// analysis package and lower-cases, so both backends agree on terms.
package bleveindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// DirName is the bleve index directory inside the index location.
const DirName = "bleve"

const (
	analyzerName  = "sitesearch"
	tokenizerName = "word_runs"
	wordPattern   = `[\p{L}\p{M}\p{N}_]+`
)

type bleveDoc struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Index implements index.Index and index.Ranker on bleve.
type Index struct {
	idx    bleve.Index
	dir    string
	lock   *index.WriteLock
	logger *slog.Logger

	mu      sync.Mutex
	batch   *bleve.Batch
	pending map[string]bool
	closed  bool
}

var (
	_ index.Index  = (*Index)(nil)
	_ index.Ranker = (*Index)(nil)
)

// Open opens the bleve index in dir, creating it when absent.
func Open(dir string, logger *slog.Logger) (*Index, error) {
	path := filepath.Join(dir, DirName)

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		var m *mapping.IndexMappingImpl
		m, err = newMapping()
		if err != nil {
			return nil, fmt.Errorf("build index mapping: %w", err)
		}
		idx, err = bleve.New(path, m)
		if err != nil {
			return nil, fmt.Errorf("create bleve index: %w", err)
		}
	} else {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, &types.IndexCorruptionError{Path: dir, Err: err}
		}
	}

	return &Index{
		idx:     idx,
		dir:     dir,
		lock:    index.NewWriteLock(dir),
		logger:  logger.With("component", "bleve_index"),
		batch:   idx.NewBatch(),
		pending: make(map[string]bool),
	}, nil
}

func newMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomTokenizer(tokenizerName, map[string]interface{}{
		"type":   regexp.Name,
		"regexp": wordPattern,
	})
	if err != nil {
		return nil, err
	}
	err = im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     tokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = analyzerName

	urlField := bleve.NewKeywordFieldMapping()
	urlField.IncludeInAll = false

	textField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = analyzerName
		fm.Store = true
		fm.IncludeTermVectors = true
		fm.IncludeInAll = false
		return fm
	}

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("url", urlField)
	doc.AddFieldMappingsAt(types.FieldTitle, textField())
	doc.AddFieldMappingsAt(types.FieldContent, textField())

	im.DefaultMapping = doc
	return im, nil
}

// AddDocument implements index.Index.
func (x *Index) AddDocument(doc *types.Document) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return types.ErrIndexClosed
	}
	if x.pending[doc.URL] {
		return fmt.Errorf("%w: %s", types.ErrDuplicateDocument, doc.URL)
	}
	existing, err := x.idx.Document(doc.URL)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", doc.URL, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", types.ErrDuplicateDocument, doc.URL)
	}

	if err := x.lock.Acquire(); err != nil {
		return err
	}
	if err := x.batch.Index(doc.URL, bleveDoc{URL: doc.URL, Title: doc.Title, Content: doc.Text}); err != nil {
		return fmt.Errorf("stage %s: %w", doc.URL, err)
	}
	x.pending[doc.URL] = true
	return nil
}

// Commit applies the staged batch.
func (x *Index) Commit() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return types.ErrIndexClosed
	}
	n := len(x.pending)
	if n == 0 {
		return x.lock.Release()
	}

	start := time.Now()
	if err := x.idx.Batch(x.batch); err != nil {
		return &types.StorageError{Backend: "bleve", Err: err}
	}

	x.logger.Info("index committed",
		"documents", n,
		"duration", time.Since(start),
	)
	x.reset()
	return x.lock.Release()
}

// Rollback implements index.Index.
func (x *Index) Rollback() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if n := len(x.pending); n > 0 {
		x.logger.Warn("discarding staged documents", "documents", n)
	}
	x.reset()
	return x.lock.Release()
}

func (x *Index) reset() {
	x.batch.Reset()
	x.pending = make(map[string]bool)
}

// Postings implements index.Index.
func (x *Index) Postings(term string) (map[string]int, error) {
	fields, err := x.FieldPostings(term)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(fields))
	for url, tf := range fields {
		out[url] = tf.Total()
	}
	return out, nil
}

// FieldPostings counts term locations per field for every matching document.
func (x *Index) FieldPostings(term string) (map[string]types.TermFreq, error) {
	out := make(map[string]types.TermFreq)
	if term == "" {
		return out, nil
	}
	size, err := x.size()
	if err != nil || size == 0 {
		return out, err
	}

	q := bleve.NewDisjunctionQuery(
		termQuery(types.FieldTitle, term, 1),
		termQuery(types.FieldContent, term, 1),
	)
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.IncludeLocations = true

	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("postings %q: %w", term, err)
	}
	for _, hit := range res.Hits {
		out[hit.ID] = types.TermFreq{
			Title:   len(hit.Locations[types.FieldTitle][term]),
			Content: len(hit.Locations[types.FieldContent][term]),
		}
	}
	return out, nil
}

// Document implements index.Index.
func (x *Index) Document(url string) (*types.Document, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{url}), 1, 0, false)
	req.Fields = []string{types.FieldTitle, types.FieldContent}

	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", url, err)
	}
	if len(res.Hits) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, url)
	}
	hit := res.Hits[0]
	title, _ := hit.Fields[types.FieldTitle].(string)
	text, _ := hit.Fields[types.FieldContent].(string)
	return &types.Document{URL: url, Title: title, Text: text}, nil
}

// Count implements index.Index.
func (x *Index) Count() (int, error) {
	n, err := x.idx.DocCount()
	return int(n), err
}

// Rank scores documents with bleve's own tf-idf, boosting each field by
// its weight. Ties fall back to ascending document ID, which is the URL.
func (x *Index) Rank(ctx context.Context, terms []index.FieldTerm, weights index.Weights) ([]index.Hit, error) {
	var clauses []query.Query
	for _, ft := range terms {
		for _, field := range ft.Fields {
			clauses = append(clauses, termQuery(field, ft.Term, weights.Field(field)))
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	size, err := x.size()
	if err != nil || size == 0 {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(clauses...), size, 0, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	hits := make([]index.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, index.Hit{URL: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close implements index.Index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	if x.lock.Held() {
		x.logger.Warn("closing with uncommitted documents, discarding them", "pending", len(x.pending))
	}
	x.reset()
	lockErr := x.lock.Release()
	if err := x.idx.Close(); err != nil {
		return err
	}
	return lockErr
}

func (x *Index) size() (int, error) {
	n, err := x.idx.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func termQuery(field, term string, boost float64) *query.TermQuery {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	q.SetBoost(boost)
	return q
}
