// Package dashboard renders the HTML search page.
package dashboard

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/IshaanNene/sitesearch/internal/search"
)

// Searcher answers queries for the page.
type Searcher interface {
	Lookup(ctx context.Context, query string, opts search.Options) search.Response
	DefaultOptions() search.Options
	Stats() map[string]any
}

// OptionsFunc derives per-request options, for example from URL
// parameters.
type OptionsFunc func(r *http.Request, defaults search.Options) (search.Options, error)

// Dashboard serves the search page.
type Dashboard struct {
	searcher Searcher
	options  OptionsFunc
	policy   *bluemonday.Policy
	tmpl     *template.Template
	logger   *slog.Logger
}

// NewDashboard creates the search page handler. options may be nil.
func NewDashboard(searcher Searcher, options OptionsFunc, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		searcher: searcher,
		options:  options,
		policy:   SnippetPolicy(),
		tmpl:     template.Must(template.New("search").Parse(pageHTML)),
		logger:   logger.With("component", "dashboard"),
	}
}

// SnippetPolicy allows only the highlight markup produced by the search
// engine.
func SnippetPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^highlight$`)).OnElements("b")
	p.AllowElements("b")
	return p
}

type resultView struct {
	URL     string
	Title   string
	Snippet template.HTML
	Score   float64
}

type pageView struct {
	Query     string
	Mode      string
	Searched  bool
	Message   string
	Results   []resultView
	Total     int
	Elapsed   string
	Documents any
}

// ServeHTTP renders the page, running a search when q is present.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	view := pageView{
		Query:     r.URL.Query().Get("q"),
		Documents: d.searcher.Stats()["index_documents"],
	}

	opts := d.searcher.DefaultOptions()
	if d.options != nil {
		o, err := d.options(r, opts)
		if err != nil {
			view.Message = err.Error()
		} else {
			opts = o
		}
	}
	view.Mode = string(opts.Mode)

	if strings.TrimSpace(view.Query) != "" && view.Message == "" {
		resp := d.searcher.Lookup(r.Context(), view.Query, opts)
		view.Searched = true
		view.Message = resp.Message
		view.Total = resp.Total
		view.Elapsed = resp.Elapsed.String()
		for _, res := range resp.Results {
			view.Results = append(view.Results, resultView{
				URL:     res.URL,
				Title:   res.Title,
				Snippet: template.HTML(d.policy.Sanitize(res.Snippet)),
				Score:   res.Score,
			})
		}
	}

	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, view); err != nil {
		d.logger.Error("rendering search page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
