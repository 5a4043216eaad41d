package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// pageRecord is the exported shape of a page.
type pageRecord struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Links     []string  `json:"links,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

func newPageRecord(p *types.Page) pageRecord {
	return pageRecord{URL: p.URL, Title: p.Title, Text: p.Text, Links: p.Links, FetchedAt: p.FetchedAt}
}

// JSONLStorage writes pages as newline-delimited JSON (one object per line).
type JSONLStorage struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage (streaming writes).
// An existing file is truncated.
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("create output dir: %w", err)}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("create output file: %w", err)}
	}

	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(pages []*types.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range pages {
		if err := s.enc.Encode(newPageRecord(p)); err != nil {
			return &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("encode JSONL: %w", err)}
		}
		s.count++
	}
	return nil
}

// Count returns the number of pages written so far.
func (s *JSONLStorage) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("JSONL written", "path", s.path, "pages", s.count)
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
