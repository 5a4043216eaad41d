package search

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/IshaanNene/sitesearch/internal/analysis"
	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/index/backend"
	"github.com/IshaanNene/sitesearch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var kinds = []string{backend.Inverted, backend.Bleve}

type fixturePage struct {
	url, title, text string
}

var fixture = []fixturePage{
	{"http://site.test/", "Home", "Welcome to the test site. We write about Python and the web."},
	{"http://site.test/page1", "Python Web", "Python web development with small frameworks. Python is fun."},
	{"http://site.test/page2", "Gardening", "Tomatoes need sun and water."},
}

func newEngine(t *testing.T, kind string, pages []fixturePage) *Engine {
	t.Helper()
	opened, err := backend.Open(t.TempDir(), kind, testLogger)
	if err != nil {
		t.Fatalf("open %s: %v", kind, err)
	}
	t.Cleanup(func() { opened.Index.Close() })

	for _, p := range pages {
		d := analysis.NewDocument(&types.Page{URL: p.url, Title: p.title, Text: p.text})
		if err := opened.Index.AddDocument(d); err != nil {
			t.Fatalf("AddDocument: %v", err)
		}
	}
	if err := opened.Index.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return NewEngine(opened.Index, config.DefaultConfig().Search, testLogger)
}

func urls(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL
	}
	return out
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery("Python title:Web-Dev python", nil)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	want := []index.FieldTerm{
		{Term: "python", Fields: types.Fields},
		{Term: "web", Fields: []string{types.FieldTitle}},
		{Term: "dev", Fields: []string{types.FieldTitle}},
	}
	if !reflect.DeepEqual(q.Terms, want) {
		t.Errorf("terms = %+v, want %+v", q.Terms, want)
	}

	hl := q.HighlightTerms()
	if !hl["python"] || hl["web"] {
		t.Errorf("highlight terms = %v", hl)
	}

	// Unknown prefixes are ordinary text.
	plain := []struct {
		raw  string
		want []string
	}{
		{"http://site.test", []string{"http", "site", "test"}},
		{"python: web", []string{"python", "web"}},
		{"note:python", []string{"note", "python"}},
		{":python", []string{"python"}},
		{"Content:Basil", nil},
	}
	for _, tt := range plain {
		q, err := ParseQuery(tt.raw, nil)
		if err != nil {
			t.Errorf("ParseQuery(%q): %v", tt.raw, err)
			continue
		}
		var got []string
		for _, ft := range q.Terms {
			if !reflect.DeepEqual(ft.Fields, types.Fields) {
				continue
			}
			got = append(got, ft.Term)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseQuery(%q) default-field terms = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseQueryErrors(t *testing.T) {
	tests := []string{
		"title:",
		"content:!!",
		`"unbalanced`,
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseQuery(raw, nil)
			var qe *QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("err = %v, want *QueryError", err)
			}
		})
	}

	if _, err := ParseQuery("python", []string{"body"}); err == nil {
		t.Error("unknown default field accepted")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeRanked, "Ranked": ModeRanked, "and": ModeBoolean, "boolean": ModeBoolean} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Error("expected error")
	}
}

func TestEmptyQuery(t *testing.T) {
	e := newEngine(t, backend.Inverted, fixture)
	for _, raw := range []string{"", "   ", "!!!"} {
		res, err := e.Search(context.Background(), raw, Options{Mode: ModeBoolean})
		if err != nil || len(res) != 0 {
			t.Errorf("Search(%q) = %v, %v", raw, res, err)
		}
	}

	resp := e.Lookup(context.Background(), "", Options{})
	if resp.Message != "" || resp.Total != 0 || resp.Results == nil {
		t.Errorf("Lookup(empty) = %+v", resp)
	}
}

func TestBooleanAnd(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			e := newEngine(t, kind, fixture)
			ctx := context.Background()

			tests := []struct {
				query string
				want  []string
			}{
				{"python", []string{"http://site.test/", "http://site.test/page1"}},
				{"python frameworks", []string{"http://site.test/page1"}},
				{"PYTHON Frameworks", []string{"http://site.test/page1"}},
				{"welcome", []string{"http://site.test/"}},
				{"python tomatoes", []string{}},
				{"nonexistent", []string{}},
				{"title:python", []string{"http://site.test/page1"}},
				{"content:gardening", []string{}},
			}
			for _, tt := range tests {
				res, err := e.Search(ctx, tt.query, Options{Mode: ModeBoolean})
				if err != nil {
					t.Fatalf("Search(%q): %v", tt.query, err)
				}
				if got := urls(res); !reflect.DeepEqual(got, tt.want) {
					t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.want)
				}
			}
		})
	}
}

func TestBooleanSubset(t *testing.T) {
	// Adding a term never widens an AND result.
	e := newEngine(t, backend.Inverted, fixture)
	ctx := context.Background()

	a, _ := e.Search(ctx, "python", Options{Mode: ModeBoolean})
	ab, _ := e.Search(ctx, "python web", Options{Mode: ModeBoolean})

	set := make(map[string]bool)
	for _, r := range a {
		set[r.URL] = true
	}
	for _, r := range ab {
		if !set[r.URL] {
			t.Errorf("%s in {python web} but not in {python}", r.URL)
		}
	}
}

func TestRankedOrdering(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			e := newEngine(t, kind, fixture)
			res, err := e.Search(context.Background(), "python", Options{Mode: ModeRanked})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			want := []string{"http://site.test/page1", "http://site.test/"}
			if got := urls(res); !reflect.DeepEqual(got, want) {
				t.Fatalf("order = %v, want %v", got, want)
			}
			if res[0].Score < res[1].Score || res[1].Score <= 0 {
				t.Errorf("scores = %v, %v", res[0].Score, res[1].Score)
			}
		})
	}
}

func TestRankedAnyTerm(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			e := newEngine(t, kind, fixture)
			res, err := e.Search(context.Background(), "tomatoes frameworks", Options{Mode: ModeRanked})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(res) != 2 {
				t.Errorf("results = %v, want page1 and page2", urls(res))
			}
		})
	}
}

func TestTitleOutweighsContent(t *testing.T) {
	pages := []fixturePage{
		{"http://site.test/a", "Rust", "A systems language with no garbage collector."},
		{"http://site.test/b", "Languages", "Rust and a systems language with no collector."},
	}
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			e := newEngine(t, kind, pages)
			res, err := e.Search(context.Background(), "rust", Options{Mode: ModeRanked})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(res) != 2 || res[0].URL != "http://site.test/a" {
				t.Errorf("order = %v, want title match first", urls(res))
			}
		})
	}
}

func TestRankedTieBreakByURL(t *testing.T) {
	pages := []fixturePage{
		{"http://site.test/z", "Same", "identical body text"},
		{"http://site.test/m", "Same", "identical body text"},
		{"http://site.test/a", "Same", "identical body text"},
	}
	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			e := newEngine(t, kind, pages)
			res, err := e.Search(context.Background(), "identical", Options{Mode: ModeRanked})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			want := []string{"http://site.test/a", "http://site.test/m", "http://site.test/z"}
			if got := urls(res); !reflect.DeepEqual(got, want) {
				t.Errorf("order = %v, want %v", got, want)
			}
		})
	}
}

func TestLimit(t *testing.T) {
	e := newEngine(t, backend.Inverted, fixture)
	res, err := e.Search(context.Background(), "python", Options{Mode: ModeRanked, Limit: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].URL != "http://site.test/page1" {
		t.Errorf("results = %v", urls(res))
	}
}

func TestFieldsOption(t *testing.T) {
	e := newEngine(t, backend.Inverted, fixture)
	res, err := e.Search(context.Background(), "web", Options{Mode: ModeBoolean, Fields: []string{"title"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := urls(res); !reflect.DeepEqual(got, []string{"http://site.test/page1"}) {
		t.Errorf("results = %v", got)
	}
}

func TestLookupMessages(t *testing.T) {
	e := newEngine(t, backend.Inverted, fixture)
	ctx := context.Background()

	resp := e.Lookup(ctx, "title:", Options{})
	if !strings.HasPrefix(resp.Message, "Invalid query") || !resp.Invalid || len(resp.Results) != 0 {
		t.Errorf("invalid query response = %+v", resp)
	}

	resp = e.Lookup(ctx, "note:python", Options{Mode: ModeRanked})
	if resp.Invalid || resp.Total != 2 {
		t.Errorf("unknown prefix should search as text, got %+v", resp)
	}

	resp = e.Lookup(ctx, "zebra", Options{})
	if resp.Message != "No results found" || resp.Total != 0 {
		t.Errorf("no-hit response = %+v", resp)
	}

	resp = e.Lookup(ctx, "python", Options{Mode: ModeBoolean})
	if resp.Message != "" || resp.Total != 2 || resp.Mode != ModeBoolean {
		t.Errorf("hit response = %+v", resp)
	}
	for _, r := range resp.Results {
		if r.Title == "" || !strings.Contains(r.Snippet, `<b class="highlight">`) {
			t.Errorf("result missing title or highlight: %+v", r)
		}
	}
}

func TestLookupTitleOnlySnippet(t *testing.T) {
	e := newEngine(t, backend.Inverted, fixture)
	resp := e.Lookup(context.Background(), "title:gardening", Options{})
	if resp.Total != 1 {
		t.Fatalf("response = %+v", resp)
	}
	snip := resp.Results[0].Snippet
	if strings.Contains(snip, "<b") || !strings.HasPrefix(snip, "Tomatoes") {
		t.Errorf("snippet = %q, want leading excerpt", snip)
	}
}

func TestIDFPositive(t *testing.T) {
	for _, c := range [][2]int{{1, 1}, {10, 10}, {10, 1}, {1000, 999}} {
		if v := IDF(c[0], c[1]); v <= 0 {
			t.Errorf("IDF(%d, %d) = %v", c[0], c[1], v)
		}
	}
	if IDF(100, 1) <= IDF(100, 50) {
		t.Error("rarer term should weigh more")
	}
}
