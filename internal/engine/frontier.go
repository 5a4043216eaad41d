package engine

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// Frontier is a thread-safe FIFO of URLs waiting to be fetched, scoped to
// the seed's host. A URL is accepted at most once per run.
type Frontier struct {
	mu      sync.Mutex
	queue   []string
	head    int
	closed  bool
	host    string
	exclude []string
	seen    *Deduplicator
	visited *VisitedSet
}

// NewFrontier creates a frontier scoped to the host of seed. Paths
// matching any exclude glob are never enqueued.
func NewFrontier(seed string, exclude []string) (*Frontier, error) {
	u, err := url.Parse(CanonicalizeURL(seed))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidURL, seed)
	}
	return &Frontier{
		queue:   make([]string, 0, 1024),
		host:    u.Host,
		exclude: exclude,
		seen:    NewDeduplicator(1024),
		visited: NewVisitedSet(),
	}, nil
}

// Host returns the scope host, including any non-default port.
func (f *Frontier) Host() string { return f.host }

// InScope reports whether rawURL is an http(s) URL on the scope host and
// not excluded by path.
func (f *Frontier) InScope(rawURL string) bool {
	u, err := url.Parse(CanonicalizeURL(rawURL))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host != f.host {
		return false
	}
	for _, pattern := range f.exclude {
		if ok, _ := doublestar.Match(pattern, u.Path); ok {
			return false
		}
	}
	return true
}

// Push canonicalizes rawURL and appends it if it is in scope and has not
// been enqueued or visited before. It reports whether the URL was added.
func (f *Frontier) Push(rawURL string) bool {
	if !f.InScope(rawURL) {
		return false
	}
	canonical := CanonicalizeURL(rawURL)
	if f.visited.Contains(canonical) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if !f.seen.MarkSeen(canonical) {
		return false
	}
	f.queue = append(f.queue, canonical)
	return true
}

// Pop removes and returns the oldest URL. It reports false when empty.
func (f *Frontier) Pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.head >= len(f.queue) {
		return "", false
	}
	u := f.queue[f.head]
	f.queue[f.head] = ""
	f.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if f.head > 1024 && f.head*2 > len(f.queue) {
		f.queue = append(f.queue[:0], f.queue[f.head:]...)
		f.head = 0
	}
	return u, true
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) - f.head
}

// Close stops the frontier from accepting new URLs.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// MarkVisited records a successful fetch.
func (f *Frontier) MarkVisited(rawURL string) {
	f.visited.Add(CanonicalizeURL(rawURL))
}

// Visited reports whether rawURL has been fetched successfully.
func (f *Frontier) Visited(rawURL string) bool {
	return f.visited.Contains(CanonicalizeURL(rawURL))
}

// VisitedCount returns the number of URLs fetched successfully.
func (f *Frontier) VisitedCount() int { return f.visited.Len() }

// Discovered returns the number of distinct URLs ever accepted.
func (f *Frontier) Discovered() int { return f.seen.Count() }

// VisitedSet returns the run's visited set.
func (f *Frontier) VisitedSet() *VisitedSet { return f.visited }

// VisitedSet holds URLs fetched successfully in one run. It only grows.
type VisitedSet struct {
	mu    sync.RWMutex
	urls  map[string]struct{}
	order []string
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// Add inserts u. Repeated adds are no-ops.
func (v *VisitedSet) Add(u string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.urls[u]; ok {
		return
	}
	v.urls[u] = struct{}{}
	v.order = append(v.order, u)
}

// Contains reports whether u was added.
func (v *VisitedSet) Contains(u string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.urls[u]
	return ok
}

// Len returns the number of visited URLs.
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.urls)
}

// URLs returns visited URLs in visit order.
func (v *VisitedSet) URLs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}
