package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LockFile marks an index directory with an open writer. A lock left
// behind by a process that exited mid-crawl is stale and gets cleared on
// the next open.
const LockFile = "WRITELOCK"

// WriteLock is the on-disk marker for a pending writer.
type WriteLock struct {
	path string
	held bool
}

// NewWriteLock returns the lock for the index directory dir.
func NewWriteLock(dir string) *WriteLock {
	return &WriteLock{path: filepath.Join(dir, LockFile)}
}

// Acquire creates the lock file if this writer does not hold it yet.
func (l *WriteLock) Acquire() error {
	if l.held {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("index is locked by another writer (%s)", l.path)
		}
		return fmt.Errorf("create write lock: %w", err)
	}
	fmt.Fprintf(f, "pid=%d\nacquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	l.held = true
	return f.Close()
}

// Release removes the lock file if this writer holds it.
func (l *WriteLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove write lock: %w", err)
	}
	return nil
}

// Held reports whether this writer currently holds the lock.
func (l *WriteLock) Held() bool { return l.held }

// ClearStaleLock removes a leftover lock file in dir. It reports whether
// one was found, along with the pid recorded in it when available.
func ClearStaleLock(dir string) (bool, int, error) {
	path := filepath.Join(dir, LockFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read write lock: %w", err)
	}
	pid := 0
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ = strconv.Atoi(v)
		}
	}
	if err := os.Remove(path); err != nil {
		return true, pid, fmt.Errorf("remove stale write lock: %w", err)
	}
	return true, pid, nil
}
