// Package index defines the storage contract shared by the index backends.
//
// Writes are buffered by an implicit writer: AddDocument stages a document,
// Commit makes every staged document visible atomically and Rollback
// discards them. Readers only ever observe committed data.
package index

import (
	"context"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// Index is a persistent term -> postings map with per-document metadata.
type Index interface {
	// AddDocument stages doc for the next Commit. It returns
	// types.ErrDuplicateDocument if the URL is already committed or staged,
	// leaving the index unchanged.
	AddDocument(doc *types.Document) error

	// Commit atomically publishes every staged document.
	Commit() error

	// Rollback discards every staged document.
	Rollback() error

	// Postings returns url -> frequency for term across all fields.
	// An unknown term yields an empty map.
	Postings(term string) (map[string]int, error)

	// FieldPostings returns url -> per-field frequency for term.
	FieldPostings(term string) (map[string]types.TermFreq, error)

	// Document returns the stored document for url or types.ErrNotFound.
	Document(url string) (*types.Document, error)

	// Count returns the number of committed documents.
	Count() (int, error)

	// Close releases the index. Staged documents are discarded.
	Close() error
}

// FieldTerm is one query term restricted to a set of fields.
type FieldTerm struct {
	Term   string
	Fields []string
}

// Weights scales each field's contribution to a ranked score.
type Weights struct {
	Title   float64
	Content float64
}

// Field returns the weight for a named field.
func (w Weights) Field(name string) float64 {
	switch name {
	case types.FieldTitle:
		return w.Title
	case types.FieldContent:
		return w.Content
	}
	return 0
}

// Hit is a scored document reference.
type Hit struct {
	URL   string
	Score float64
}

// Ranker is implemented by backends that score ranked queries natively.
// Hits are ordered by descending score, ties broken by ascending URL.
type Ranker interface {
	Rank(ctx context.Context, terms []FieldTerm, weights Weights) ([]Hit, error)
}
