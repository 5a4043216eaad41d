// Package boltindex is the inverted index backend persisted in a bbolt file.
//
// Layout: the "docs" bucket maps url -> stored document, the "terms" bucket
// holds one nested bucket per term mapping url -> per-field frequency, and
// "meta" carries the format marker and the committed document count.
package boltindex

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// FileName is the bbolt file inside the index directory.
const FileName = "index.db"

const formatVersion = "sitesearch-inverted-v1"

var (
	bucketDocs  = []byte("docs")
	bucketTerms = []byte("terms")
	bucketMeta  = []byte("meta")
	keyFormat   = []byte("format")
	keyCount    = []byte("doc_count")
)

type storedDoc struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Index implements index.Index on bbolt.
type Index struct {
	db     *bbolt.DB
	dir    string
	lock   *index.WriteLock
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*types.Document
	order   []string
	closed  bool
}

var _ index.Index = (*Index)(nil)

// Open opens or creates the index in dir. A file that bbolt cannot read,
// or one written in a different format, yields *types.IndexCorruptionError.
func Open(dir string, logger *slog.Logger) (*Index, error) {
	path := filepath.Join(dir, FileName)
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("index %s is in use by another process: %w", path, err)
		}
		return nil, &types.IndexCorruptionError{Path: dir, Err: err}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocs, bucketTerms, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		format := meta.Get(keyFormat)
		if format == nil {
			return meta.Put(keyFormat, []byte(formatVersion))
		}
		if string(format) != formatVersion {
			return fmt.Errorf("unexpected index format %q", format)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &types.IndexCorruptionError{Path: dir, Err: err}
	}

	return &Index{
		db:      db,
		dir:     dir,
		lock:    index.NewWriteLock(dir),
		logger:  logger.With("component", "bolt_index"),
		pending: make(map[string]*types.Document),
	}, nil
}

// AddDocument implements index.Index.
func (x *Index) AddDocument(doc *types.Document) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return types.ErrIndexClosed
	}
	if _, ok := x.pending[doc.URL]; ok {
		return fmt.Errorf("%w: %s", types.ErrDuplicateDocument, doc.URL)
	}

	var committed bool
	err := x.db.View(func(tx *bbolt.Tx) error {
		committed = tx.Bucket(bucketDocs).Get([]byte(doc.URL)) != nil
		return nil
	})
	if err != nil {
		return err
	}
	if committed {
		return fmt.Errorf("%w: %s", types.ErrDuplicateDocument, doc.URL)
	}

	if err := x.lock.Acquire(); err != nil {
		return err
	}
	x.pending[doc.URL] = doc
	x.order = append(x.order, doc.URL)
	return nil
}

// Commit writes every staged document in a single bbolt transaction.
func (x *Index) Commit() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return types.ErrIndexClosed
	}
	if len(x.order) == 0 {
		return x.lock.Release()
	}

	start := time.Now()
	err := x.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocs)
		terms := tx.Bucket(bucketTerms)
		meta := tx.Bucket(bucketMeta)

		for _, url := range x.order {
			doc := x.pending[url]
			key := []byte(url)
			if docs.Get(key) != nil {
				return fmt.Errorf("%w: %s", types.ErrDuplicateDocument, url)
			}
			data, err := json.Marshal(storedDoc{Title: doc.Title, Text: doc.Text})
			if err != nil {
				return err
			}
			if err := docs.Put(key, data); err != nil {
				return err
			}
			for term, tf := range doc.Terms {
				if tf.Total() == 0 {
					continue
				}
				tb, err := terms.CreateBucketIfNotExists([]byte(term))
				if err != nil {
					return fmt.Errorf("term bucket %q: %w", term, err)
				}
				enc, err := json.Marshal(tf)
				if err != nil {
					return err
				}
				if err := tb.Put(key, enc); err != nil {
					return err
				}
			}
		}

		count := decodeCount(meta.Get(keyCount)) + uint64(len(x.order))
		return meta.Put(keyCount, encodeCount(count))
	})
	if err != nil {
		return &types.StorageError{Backend: "bbolt", Err: err}
	}

	x.logger.Info("index committed",
		"documents", len(x.order),
		"duration", time.Since(start),
	)
	x.reset()
	return x.lock.Release()
}

// Rollback implements index.Index.
func (x *Index) Rollback() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if n := len(x.order); n > 0 {
		x.logger.Warn("discarding staged documents", "documents", n)
	}
	x.reset()
	return x.lock.Release()
}

func (x *Index) reset() {
	x.pending = make(map[string]*types.Document)
	x.order = nil
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

// FieldPostings implements index.Index.
func (x *Index) FieldPostings(term string) (map[string]types.TermFreq, error) {
	out := make(map[string]types.TermFreq)
	if term == "" {
		return out, nil
	}
	err := x.db.View(func(tx *bbolt.Tx) error {
		tb := tx.Bucket(bucketTerms).Bucket([]byte(term))
		if tb == nil {
			return nil
		}
		return tb.ForEach(func(k, v []byte) error {
			var tf types.TermFreq
			if err := json.Unmarshal(v, &tf); err != nil {
				return fmt.Errorf("decode posting %q/%s: %w", term, k, err)
			}
			out[string(k)] = tf
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Document implements index.Index.
func (x *Index) Document(url string) (*types.Document, error) {
	var doc *types.Document
	err := x.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(url))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrNotFound, url)
		}
		var sd storedDoc
		if err := json.Unmarshal(data, &sd); err != nil {
			return err
		}
		doc = &types.Document{URL: url, Title: sd.Title, Text: sd.Text}
		return nil
	})
	return doc, err
}

// Count implements index.Index.
func (x *Index) Count() (int, error) {
	var n uint64
	err := x.db.View(func(tx *bbolt.Tx) error {
		n = decodeCount(tx.Bucket(bucketMeta).Get(keyCount))
		return nil
	})
	return int(n), err
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
	if err := x.db.Close(); err != nil {
		return err
	}
	return lockErr
}

func encodeCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeCount(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
