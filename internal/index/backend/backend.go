// Package backend opens the configured index implementation at a
// filesystem location, creating, reusing or rebuilding it as needed.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/index/bleveindex"
	"github.com/IshaanNene/sitesearch/internal/index/boltindex"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// Backend names accepted by Open.
const (
	Inverted = "inverted"
	Bleve    = "bleve"
)

// State describes what Open found at the location.
type State string

const (
	StateCreated State = "created"
	StateReused  State = "reused"
	StateRebuilt State = "rebuilt"
)

// Opened is the result of Open.
type Opened struct {
	Index index.Index
	State State
}

// artifacts lists the entries each backend owns inside an index directory.
var artifacts = map[string]string{
	Inverted: boltindex.FileName,
	Bleve:    bleveindex.DirName,
}

// Open prepares dir for kind and returns the opened index.
//
// A directory without entries gets a fresh index. A stale write lock is
// removed with a warning. Existing data of kind is reused; if it cannot be
// read it is logged as corruption and only kind's own files are recreated.
// A directory holding anything else, including the other backend's index,
// is never touched and yields ErrLocationInUse.
func Open(dir, kind string, logger *slog.Logger) (*Opened, error) {
	logger = logger.With("component", "index", "backend", kind, "path", dir)

	own, ok := artifacts[kind]
	if !ok {
		return nil, fmt.Errorf("unknown index backend %q", kind)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	found, pid, err := index.ClearStaleLock(dir)
	if err != nil {
		return nil, err
	}
	if found {
		logger.Warn("removed stale write lock; uncommitted documents from the previous writer are lost", "pid", pid)
	}

	state := StateReused
	if !exists(filepath.Join(dir, own)) {
		if err := checkUnclaimed(dir, kind); err != nil {
			return nil, err
		}
		state = StateCreated
	}

	idx, err := openKind(dir, kind, logger)
	var corrupt *types.IndexCorruptionError
	if errors.As(err, &corrupt) {
		logger.Warn("index is unreadable, rebuilding from scratch", "error", err)
		if err := Reset(dir, kind); err != nil {
			return nil, err
		}
		state = StateRebuilt
		idx, err = openKind(dir, kind, logger)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("index opened", "state", state)
	return &Opened{Index: idx, State: state}, nil
}

func openKind(dir, kind string, logger *slog.Logger) (index.Index, error) {
	if kind == Bleve {
		return bleveindex.Open(dir, logger)
	}
	return boltindex.Open(dir, logger)
}

// checkUnclaimed fails unless dir holds nothing but a write lock.
func checkUnclaimed(dir, kind string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read index directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == index.LockFile {
			continue
		}
		for other, artifact := range artifacts {
			if other != kind && name == artifact {
				return fmt.Errorf("%w: %s holds a %s index, not %s", types.ErrLocationInUse, dir, other, kind)
			}
		}
		return fmt.Errorf("%w: %s contains %q and no %s index", types.ErrLocationInUse, dir, name, kind)
	}
	return nil
}

// Reset removes kind's index files and write lock from dir. Other entries
// in dir are left alone.
func Reset(dir, kind string) error {
	own, ok := artifacts[kind]
	if !ok {
		return fmt.Errorf("unknown index backend %q", kind)
	}
	for _, name := range []string{own, index.LockFile} {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("clear index %s: %w", name, err)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
