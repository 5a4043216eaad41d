package fetcher

import (
	"context"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// Fetcher retrieves a single URL.
//
// Implementations return *types.FetchError for network failures and non-2xx
// statuses, and *types.UnsupportedContentTypeError for non-HTML bodies.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error
}
