// Package repl implements the interactive search shell.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/IshaanNene/sitesearch/internal/config"
	"github.com/IshaanNene/sitesearch/internal/engine"
	"github.com/IshaanNene/sitesearch/internal/search"
)

// Searcher is what the shell queries.
type Searcher interface {
	Lookup(ctx context.Context, query string, opts search.Options) search.Response
	DefaultOptions() search.Options
	Rebuild(ctx context.Context, seed string) (*engine.Summary, error)
	Stats() map[string]any
}

// REPL reads queries line by line and prints ranked results. Lines
// starting with ':' are shell commands.
type REPL struct {
	svc     Searcher
	opts    search.Options
	in      *bufio.Scanner
	out     io.Writer
	printer *Printer
	logger  *slog.Logger
}

// Printer writes search responses as terminal text.
type Printer struct {
	marks *strings.Replacer
}

// NewPrinter converts the configured highlight markers into bold text
// when color is set, and into brackets otherwise.
func NewPrinter(cfg config.SearchConfig, color bool) *Printer {
	open, closing := "[", "]"
	if color {
		open, closing = "\033[1;33m", "\033[0m"
	}
	return &Printer{marks: strings.NewReplacer(cfg.HighlightOpen, open, cfg.HighlightClose, closing)}
}

// Print writes resp's message and numbered results to w.
func (p *Printer) Print(w io.Writer, resp search.Response) {
	if resp.Message != "" {
		fmt.Fprintf(w, "  %s\n", resp.Message)
	}
	if resp.Total == 0 {
		return
	}

	fmt.Fprintf(w, "\n  %d results (%s, %s)\n\n", resp.Total, resp.Mode, resp.Elapsed)
	for i, res := range resp.Results {
		title := res.Title
		if title == "" {
			title = res.URL
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, title)
		fmt.Fprintf(w, "     %s\n", res.URL)
		if res.Snippet != "" {
			fmt.Fprintf(w, "     %s\n", p.plain(res.Snippet))
		}
		fmt.Fprintln(w)
	}
}

// plain turns a highlighted HTML snippet into terminal text.
func (p *Printer) plain(snippet string) string {
	return html.UnescapeString(p.marks.Replace(snippet))
}

// New creates a shell reading from in and writing to out. With color set,
// highlighted terms are printed in bold; otherwise they are bracketed.
func New(svc Searcher, cfg *config.Config, in io.Reader, out io.Writer, color bool, logger *slog.Logger) *REPL {
	return &REPL{
		svc:     svc,
		opts:    svc.DefaultOptions(),
		in:      bufio.NewScanner(in),
		out:     out,
		printer: NewPrinter(cfg.Search, color),
		logger:  logger.With("component", "repl"),
	}
}

// Run loops until quit, end of input or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "SiteSearch interactive shell")
	fmt.Fprintln(r.out, "   Type a query to search, ':help' for commands, 'quit' to exit.")
	fmt.Fprintln(r.out)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.out, "sitesearch> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}

		line := strings.TrimSpace(r.in.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		case line == "help":
			r.printHelp()
		case strings.HasPrefix(line, ":"):
			r.command(ctx, line[1:])
		default:
			r.query(ctx, line)
		}
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, `
Type any query to search. Prefix terms with title: or content: to
restrict them to one field.

Commands:
  :mode ranked|boolean   Switch between ranked and all-terms search
  :fields title,content  Fields searched by unprefixed terms
  :limit N               Maximum results (0 = configured default)
  :stats                 Show index and crawl statistics
  :rebuild [url]         Clear the index and crawl again
  :help                  Show this help
  quit                   Exit the shell`)
}

func (r *REPL) command(ctx context.Context, line string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		r.printHelp()
		return
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "help", "?":
		r.printHelp()
	case "mode":
		if len(args) != 1 {
			fmt.Fprintf(r.out, "  Current mode: %s\n", r.opts.Mode)
			return
		}
		mode, err := search.ParseMode(args[0])
		if err != nil {
			fmt.Fprintf(r.out, "  Error: %v\n", err)
			return
		}
		r.opts.Mode = mode
		fmt.Fprintf(r.out, "  Mode set to %s\n", mode)
	case "fields":
		fields, err := search.CanonicalFields(strings.Split(strings.Join(args, ","), ","))
		if err != nil {
			fmt.Fprintf(r.out, "  Error: %v\n", err)
			return
		}
		r.opts.Fields = fields
		fmt.Fprintf(r.out, "  Fields set to %s\n", strings.Join(fields, ", "))
	case "limit":
		if len(args) != 1 {
			fmt.Fprintf(r.out, "  Current limit: %d\n", r.opts.Limit)
			return
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			fmt.Fprintf(r.out, "  Error: limit must be a non-negative integer\n")
			return
		}
		r.opts.Limit = n
		fmt.Fprintf(r.out, "  Limit set to %d\n", n)
	case "stats":
		r.printStats()
	case "rebuild":
		seed := ""
		if len(args) > 0 {
			seed = args[0]
		}
		fmt.Fprintln(r.out, "  Rebuilding index...")
		summary, err := r.svc.Rebuild(ctx, seed)
		if err != nil {
			fmt.Fprintf(r.out, "  Error: %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "  Indexed %d pages in %s (%s)\n", summary.Indexed, summary.Duration, summary.StopReason)
	default:
		fmt.Fprintf(r.out, "Unknown command: :%s. Type ':help' for available commands.\n", cmd)
	}
}

func (r *REPL) query(ctx context.Context, q string) {
	r.printer.Print(r.out, r.svc.Lookup(ctx, q, r.opts))
}

func (r *REPL) printStats() {
	stats := r.svc.Stats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(r.out, "  %-20s %v\n", k, stats[k])
	}
}
