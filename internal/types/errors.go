package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout           = errors.New("request timed out")
	ErrMaxRetries        = errors.New("max retries exceeded")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrCrawlStopped      = errors.New("crawl has been stopped")
	ErrDuplicateDocument = errors.New("document already indexed")
	ErrNotFound          = errors.New("document not found")
	ErrIndexClosed       = errors.New("index is closed")
	ErrIndexNotEmpty     = errors.New("index already holds documents")
	ErrCrawlInProgress   = errors.New("a crawl is already running")
	ErrOutOfScope        = errors.New("URL is outside the crawl scope")
	ErrLocationInUse     = errors.New("index location holds unrelated data")
)

// FetchError wraps errors that occur during fetching: network failures,
// timeouts and non-2xx responses.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// UnsupportedContentTypeError is returned for responses that are not HTML.
type UnsupportedContentTypeError struct {
	URL         string
	ContentType string
}

func (e *UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type %q for %s", e.ContentType, e.URL)
}

// ParseError wraps errors that occur when no text can be recovered from a page.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IndexCorruptionError is returned when an index location holds data that
// cannot be opened.
type IndexCorruptionError struct {
	Path string
	Err  error
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("index at %s is unreadable: %v", e.Path, e.Err)
}

func (e *IndexCorruptionError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
