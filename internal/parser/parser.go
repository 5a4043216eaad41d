package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// Parser extracts the title, visible text and outbound links of a page.
type Parser interface {
	// Parse returns a Page for resp. Links are absolute, fragment-free and
	// resolved against resp.FinalURL. A *types.ParseError is returned when
	// no text can be recovered.
	Parse(resp *types.Response) (*types.Page, error)
}

// New returns the parser named by kind ("html" or "xpath").
func New(kind string, logger *slog.Logger) (Parser, error) {
	switch kind {
	case "", "html":
		return NewHTMLParser(logger), nil
	case "xpath":
		return NewXPathParser(logger), nil
	default:
		return nil, fmt.Errorf("unknown parser type %q", kind)
	}
}

// checkBody rejects bodies with nothing to parse.
func checkBody(resp *types.Response) error {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return &types.ParseError{URL: resp.URL, Err: types.ErrEmptyResponse}
	}
	return nil
}

func baseURL(resp *types.Response) string {
	if resp.FinalURL != "" {
		return resp.FinalURL
	}
	return resp.URL
}

// skipText lists elements whose contents are never visible page text.
var skipText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

// visibleText joins the text nodes under n with single spaces so that
// adjacent block elements never fuse their words together.
func visibleText(nodes ...*html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		case html.ElementNode:
			if skipText[n.DataAtom] {
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// cleanTitle collapses whitespace inside a <title>.
func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// linkResolver turns raw hrefs into absolute, de-duplicated http(s) URLs.
type linkResolver struct {
	base  *url.URL
	seen  map[string]bool
	links []string
}

func newLinkResolver(rawBase string) *linkResolver {
	base, err := url.Parse(rawBase)
	if err != nil {
		return &linkResolver{}
	}
	return &linkResolver{base: base, seen: make(map[string]bool)}
}

func (r *linkResolver) add(href string) {
	if r.base == nil {
		return
	}
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return
	}

	parsedHref, err := url.Parse(href)
	if err != nil {
		return
	}
	resolved := r.base.ResolveReference(parsedHref)

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""

	absURL := resolved.String()
	if !r.seen[absURL] {
		r.seen[absURL] = true
		r.links = append(r.links, absURL)
	}
}
