package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/fetcher"
	"github.com/IshaanNene/sitesearch/internal/parser"
	"github.com/IshaanNene/sitesearch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// --- Frontier Tests ---

func TestFrontierFIFO(t *testing.T) {
	f, err := NewFrontier("http://example.com/", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/a", "/b", "/c"} {
		if !f.Push("http://example.com" + p) {
			t.Fatalf("Push(%s) rejected", p)
		}
	}
	if f.Len() != 3 {
		t.Fatalf("Len = %d, want 3", f.Len())
	}
	for _, want := range []string{"/a", "/b", "/c"} {
		got, ok := f.Pop()
		if !ok || got != "http://example.com"+want {
			t.Errorf("Pop = %q, %v; want %s", got, ok, want)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Error("Pop on empty frontier should report false")
	}
}

func TestFrontierScope(t *testing.T) {
	f, err := NewFrontier("http://Example.com:80/index.html", []string{"/private/**"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		url  string
		want bool
	}{
		{"http://example.com/page", true},
		{"https://example.com/secure", true},
		{"http://EXAMPLE.com/upper", true},
		{"http://example.com:8080/other-port", false},
		{"http://sub.example.com/page", false},
		{"http://other.org/page", false},
		{"ftp://example.com/file", false},
		{"mailto:someone@example.com", false},
		{"http://example.com/private/a/b", false},
		{"not a url at all", false},
	}
	for _, tt := range tests {
		if got := f.InScope(tt.url); got != tt.want {
			t.Errorf("InScope(%q) = %v, want %v", tt.url, got, tt.want)
		}
		if got := f.Push(tt.url); got != tt.want {
			t.Errorf("Push(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestFrontierDedup(t *testing.T) {
	f, _ := NewFrontier("http://example.com/", nil)

	if !f.Push("http://example.com/a?y=2&x=1") {
		t.Fatal("first push rejected")
	}
	if f.Push("http://example.com/a?x=1&y=2#frag") {
		t.Error("equivalent URL should be rejected while queued")
	}

	u, _ := f.Pop()
	f.MarkVisited(u)
	if f.Push(u) {
		t.Error("visited URL should be rejected")
	}

	// A URL that was popped but never marked visited (a failed fetch) is
	// still not re-enqueued in the same run.
	f.Push("http://example.com/failed")
	f.Pop()
	if f.Push("http://example.com/failed") {
		t.Error("previously enqueued URL should be rejected")
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d, want 0", f.Len())
	}
	if f.VisitedCount() != 1 || f.Discovered() != 2 {
		t.Errorf("visited=%d discovered=%d, want 1 and 2", f.VisitedCount(), f.Discovered())
	}
}

func TestFrontierClose(t *testing.T) {
	f, _ := NewFrontier("http://example.com/", nil)
	f.Close()
	if f.Push("http://example.com/late") {
		t.Error("closed frontier should reject pushes")
	}
}

func TestFrontierManyItems(t *testing.T) {
	f, _ := NewFrontier("http://example.com/", nil)
	for i := 0; i < 5000; i++ {
		f.Push(fmt.Sprintf("http://example.com/p/%d", i))
	}
	for i := 0; i < 5000; i++ {
		got, ok := f.Pop()
		if !ok || got != fmt.Sprintf("http://example.com/p/%d", i) {
			t.Fatalf("pop %d = %q", i, got)
		}
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d", f.Len())
	}
}

// --- Dedup Tests ---

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://Example.COM/path", "https://example.com/path"},
		{"https://example.com/path#section", "https://example.com/path"},
		{"https://example.com:443/path", "https://example.com/path"},
		{"http://example.com:80/path", "http://example.com/path"},
		{"http://example.com:8080/path", "http://example.com:8080/path"},
		{"https://example.com?b=2&a=1", "https://example.com/?a=1&b=2"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/docs/", "https://example.com/docs/"},
	}

	for _, tt := range tests {
		got := CanonicalizeURL(tt.input)
		if got != tt.expected {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(100)

	if !d.MarkSeen("https://example.com/page") {
		t.Error("first MarkSeen should report new")
	}
	if d.MarkSeen("https://example.com/page#frag") {
		t.Error("canonical equivalent should be a duplicate")
	}
	if d.MarkSeen("https://EXAMPLE.com/page") {
		t.Error("second MarkSeen should report duplicate")
	}
	if d.Count() != 1 {
		t.Errorf("Count = %d, want 1", d.Count())
	}
}

// --- Crawler Tests ---

type memWriter struct {
	mu         sync.Mutex
	pending    map[string]*types.Document
	committed  map[string]*types.Document
	commits    int
	rollbacks  int
	failCommit bool
}

func newMemWriter() *memWriter {
	return &memWriter{
		pending:   make(map[string]*types.Document),
		committed: make(map[string]*types.Document),
	}
}

func (w *memWriter) AddDocument(doc *types.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[doc.URL]; ok {
		return types.ErrDuplicateDocument
	}
	if _, ok := w.committed[doc.URL]; ok {
		return types.ErrDuplicateDocument
	}
	w.pending[doc.URL] = doc
	return nil
}

func (w *memWriter) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failCommit {
		return errors.New("disk full")
	}
	for k, v := range w.pending {
		w.committed[k] = v
	}
	w.pending = make(map[string]*types.Document)
	w.commits++
	return nil
}

func (w *memWriter) Rollback() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = make(map[string]*types.Document)
	w.rollbacks++
	return nil
}

func (w *memWriter) urls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for u := range w.committed {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

type recordingFetcher struct {
	inner Fetcher
	mu    sync.Mutex
	calls map[string]int
}

func (r *recordingFetcher) Fetch(ctx context.Context, u string) (*types.Response, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[u]++
	r.mu.Unlock()
	return r.inner.Fetch(ctx, u)
}

func (r *recordingFetcher) SetScope(inScope func(string) bool) {
	if sf, ok := r.inner.(ScopedFetcher); ok {
		sf.SetScope(inScope)
	}
}

// unscopedFetcher hides SetScope so redirects are followed anywhere.
type unscopedFetcher struct{ inner Fetcher }

func (u unscopedFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	return u.inner.Fetch(ctx, rawURL)
}

type memStorage struct {
	mu    sync.Mutex
	pages []*types.Page
}

func (m *memStorage) Store(pages []*types.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, pages...)
	return nil
}

func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, body)
		}
	}
	var srv *httptest.Server
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Home</title></head><body>
			<p>Welcome to the test page about python programming.</p>
			<a href="page1.html">Link to Page 1</a>
			<a href="/page2.html#top">Link to Page 2</a>
			<a href="%s/index.html">Self absolute</a>
			<a href="http://outside.invalid/elsewhere">External</a>
			<a href="/missing.html">Broken</a>
			<a href="/report.pdf">Report</a>
			<a href="/empty.html">Empty</a>
		</body></html>`, srv.URL)
	})
	mux.HandleFunc("/page1.html", html(`<html><head><title>Page 1</title></head><body>
		<p>python and web development</p><a href="index.html">Home</a><a href="page2.html">Two</a></body></html>`))
	mux.HandleFunc("/page2.html", html(`<html><head><title>Page 2</title></head><body>
		<p>web programming only</p><a href="page1.html">One</a></body></html>`))
	mux.HandleFunc("/report.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/empty.html", html(""))
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCrawler(t *testing.T, mutate func(*config.Config)) (*Crawler, *memWriter, *recordingFetcher) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Crawl.RequestTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	hf, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hf.Close() })

	rf := &recordingFetcher{inner: hf}
	w := newMemWriter()
	c := New(cfg, testLogger)
	c.SetFetcher(rf)
	c.SetParser(parser.NewHTMLParser(testLogger))
	c.SetWriter(w)
	return c, w, rf
}

func TestCrawlSite(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			srv := siteServer(t)
			c, w, rf := newTestCrawler(t, func(cfg *config.Config) { cfg.Crawl.Concurrency = workers })
			store := &memStorage{}
			c.SetStorage(store)

			var progress []Progress
			c.OnProgress(func(p Progress) { progress = append(progress, p) })

			summary, err := c.Crawl(context.Background(), srv.URL+"/index.html")
			if err != nil {
				t.Fatalf("Crawl: %v", err)
			}

			want := []string{srv.URL + "/index.html", srv.URL + "/page1.html", srv.URL + "/page2.html"}
			if got := w.urls(); strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("indexed = %v, want %v", got, want)
			}
			if summary.Indexed != 3 || len(summary.Visited) != 4 {
				// empty.html is visited (fetched) but fails to parse.
				t.Errorf("indexed=%d visited=%v", summary.Indexed, summary.Visited)
			}
			if summary.FetchErrors != 1 || summary.Skipped != 1 || summary.ParseErrors != 1 {
				t.Errorf("summary = %+v", summary)
			}
			if summary.StopReason != StopFrontierEmpty {
				t.Errorf("stop reason = %q", summary.StopReason)
			}
			if w.commits != 1 || w.rollbacks != 0 {
				t.Errorf("commits=%d rollbacks=%d", w.commits, w.rollbacks)
			}
			if len(store.pages) != 3 {
				t.Errorf("storage got %d pages, want 3", len(store.pages))
			}
			if len(progress) != 3 || progress[2].Indexed != 3 {
				t.Errorf("progress = %+v", progress)
			}

			for u, n := range rf.calls {
				if n != 1 {
					t.Errorf("%s fetched %d times, want at most once", u, n)
				}
				if !strings.HasPrefix(u, srv.URL+"/") {
					t.Errorf("out-of-scope URL fetched: %s", u)
				}
			}

			doc := w.committed[srv.URL+"/index.html"]
			if doc.Title != "Home" || doc.Terms["welcome"].Content != 1 {
				t.Errorf("seed document = %+v", doc)
			}
			if st := c.GetState(); st != StateStopped {
				t.Errorf("state = %s", st)
			}
		})
	}
}

func TestCrawlRedirectOffSite(t *testing.T) {
	for _, scoped := range []bool{true, false} {
		t.Run(fmt.Sprintf("scoped=%v", scoped), func(t *testing.T) {
			var outsideHits sync.Map
			outside := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				outsideHits.Store(r.URL.Path, true)
				w.Header().Set("Content-Type", "text/html")
				io.WriteString(w, `<html><head><title>Outside</title></head><body>offsite secret</body></html>`)
			}))
			defer outside.Close()

			site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/":
					w.Header().Set("Content-Type", "text/html")
					io.WriteString(w, `<html><body><p>home</p><a href="/away">away</a></body></html>`)
				case "/away":
					http.Redirect(w, r, outside.URL+"/", http.StatusFound)
				default:
					http.NotFound(w, r)
				}
			}))
			defer site.Close()

			c, w, rf := newTestCrawler(t, nil)
			if !scoped {
				c.SetFetcher(unscopedFetcher{inner: rf})
			}
			summary, err := c.Crawl(context.Background(), site.URL+"/")
			if err != nil {
				t.Fatalf("Crawl: %v", err)
			}

			if got := w.urls(); len(got) != 1 || got[0] != site.URL+"/" {
				t.Errorf("indexed = %v, want only the seed", got)
			}
			for _, doc := range w.committed {
				if strings.Contains(doc.Text, "offsite") {
					t.Errorf("off-site content indexed under %s", doc.URL)
				}
			}
			if summary.FetchErrors != 1 || len(summary.Visited) != 1 {
				t.Errorf("summary = %+v, want /away as the only fetch error", summary)
			}
			_, hit := outsideHits.Load("/")
			if scoped && hit {
				t.Error("off-site redirect target was requested")
			}
		})
	}
}

func TestCrawlMaxPages(t *testing.T) {
	srv := siteServer(t)
	c, w, _ := newTestCrawler(t, func(cfg *config.Config) { cfg.Crawl.MaxPages = 2 })

	summary, err := c.Crawl(context.Background(), srv.URL+"/index.html")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(w.urls()) != 2 {
		t.Errorf("indexed %v, want 2 pages", w.urls())
	}
	if summary.StopReason != StopMaxPages {
		t.Errorf("stop reason = %q, want %q", summary.StopReason, StopMaxPages)
	}
}

func TestCrawlCancelledRollsBack(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-block
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<p>hello</p><a href="/slow">slow</a>`)
	}))
	defer srv.Close()
	defer close(block)

	c, w, _ := newTestCrawler(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.OnProgress(func(p Progress) { cancel() })

	_, err := c.Crawl(ctx, srv.URL+"/")
	if !errors.Is(err, types.ErrCrawlStopped) {
		t.Fatalf("err = %v, want ErrCrawlStopped", err)
	}
	if w.rollbacks != 1 || w.commits != 0 {
		t.Errorf("commits=%d rollbacks=%d, want rollback only", w.commits, w.rollbacks)
	}
	if len(w.urls()) != 0 {
		t.Errorf("nothing should be committed, got %v", w.urls())
	}
}

func TestCrawlDuplicateIsFatal(t *testing.T) {
	srv := siteServer(t)
	c, w, _ := newTestCrawler(t, nil)
	w.committed[srv.URL+"/page1.html"] = &types.Document{}

	_, err := c.Crawl(context.Background(), srv.URL+"/index.html")
	if !errors.Is(err, types.ErrDuplicateDocument) {
		t.Fatalf("err = %v, want ErrDuplicateDocument", err)
	}
	if w.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", w.rollbacks)
	}
}

func TestCrawlCommitFailure(t *testing.T) {
	srv := siteServer(t)
	c, w, _ := newTestCrawler(t, nil)
	w.failCommit = true

	if _, err := c.Crawl(context.Background(), srv.URL+"/index.html"); err == nil {
		t.Fatal("expected commit error")
	}
	if w.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", w.rollbacks)
	}
}

func TestCrawlStopCommits(t *testing.T) {
	srv := siteServer(t)
	c, w, _ := newTestCrawler(t, nil)
	c.OnProgress(func(p Progress) { c.Stop() })

	summary, err := c.Crawl(context.Background(), srv.URL+"/index.html")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if summary.StopReason != StopRequested {
		t.Errorf("stop reason = %q", summary.StopReason)
	}
	if len(w.urls()) != 1 || w.commits != 1 {
		t.Errorf("indexed=%v commits=%d, want the seed committed", w.urls(), w.commits)
	}
}

func TestCrawlRejectsBadSeed(t *testing.T) {
	c, _, _ := newTestCrawler(t, nil)
	if _, err := c.Crawl(context.Background(), "ftp://example.com"); !errors.Is(err, types.ErrInvalidURL) {
		t.Errorf("err = %v, want ErrInvalidURL", err)
	}
}

func TestCrawlSingleUse(t *testing.T) {
	srv := siteServer(t)
	c, _, _ := newTestCrawler(t, nil)
	if _, err := c.Crawl(context.Background(), srv.URL+"/index.html"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Crawl(context.Background(), srv.URL+"/index.html"); err == nil {
		t.Error("second Crawl on the same crawler should fail")
	}
}

func TestStatsSnapshot(t *testing.T) {
	s := &Stats{}
	s.PagesIndexed.Add(3)
	s.FetchErrors.Add(1)
	snap := s.Snapshot()
	if snap["pages_indexed"] != int64(3) || snap["fetch_errors"] != int64(1) {
		t.Errorf("snapshot = %v", snap)
	}
}
