// Package storage exports crawled pages to secondary sinks. The search
// index is the primary store; these sinks only mirror what was crawled.
package storage

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// Storage is the interface for all page export backends.
type Storage interface {
	// Store persists a batch of pages.
	Store(pages []*types.Page) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New creates the sink selected by cfg.Type. The "none" type returns a
// nil Storage and no error.
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "jsonl":
		return NewJSONLStorage(cfg.OutputPath, logger)
	case "sqlite":
		return NewSQLiteStorage(cfg.OutputPath, logger)
	case "mongodb":
		return NewMongoStorage(cfg.URI, cfg.Database, cfg.Collection, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
