package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/IshaanNene/sitesearch/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT UNIQUE,
	title TEXT,
	content TEXT,
	crawled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS links (
	from_url TEXT,
	to_url TEXT,
	UNIQUE(from_url, to_url)
);
`

// SQLiteStorage mirrors pages and their out-links into a SQLite file.
type SQLiteStorage struct {
	path   string
	db     *sql.DB
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewSQLiteStorage opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStorage(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("create output dir: %w", err)}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("open: %w", err)}
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("create schema: %w", err)}
	}

	return &SQLiteStorage{
		path:   path,
		db:     db,
		logger: logger.With("component", "sqlite_storage"),
	}, nil
}

func (s *SQLiteStorage) Name() string { return "sqlite" }

// Store inserts the batch in one transaction. Pages already present are
// left untouched.
func (s *SQLiteStorage) Store(pages []*types.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return &types.StorageError{Backend: "sqlite", Err: err}
	}
	defer tx.Rollback()

	pageStmt, err := tx.Prepare("INSERT OR IGNORE INTO pages (url, title, content, crawled_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return &types.StorageError{Backend: "sqlite", Err: err}
	}
	defer pageStmt.Close()

	linkStmt, err := tx.Prepare("INSERT OR IGNORE INTO links (from_url, to_url) VALUES (?, ?)")
	if err != nil {
		return &types.StorageError{Backend: "sqlite", Err: err}
	}
	defer linkStmt.Close()

	for _, p := range pages {
		if _, err := pageStmt.Exec(p.URL, p.Title, p.Text, p.FetchedAt); err != nil {
			return &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("insert page %s: %w", p.URL, err)}
		}
		for _, link := range p.Links {
			if _, err := linkStmt.Exec(p.URL, link); err != nil {
				return &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("insert link: %w", err)}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.StorageError{Backend: "sqlite", Err: err}
	}
	s.count += len(pages)
	return nil
}

func (s *SQLiteStorage) Close() error {
	s.logger.Info("sqlite storage closing", "path", s.path, "pages", s.count)
	return s.db.Close()
}
