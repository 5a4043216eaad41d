package parser

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// HTMLParser extracts pages with goquery.
type HTMLParser struct {
	logger *slog.Logger
}

// NewHTMLParser creates a new goquery-backed parser.
func NewHTMLParser(logger *slog.Logger) *HTMLParser {
	return &HTMLParser{
		logger: logger.With("component", "html_parser"),
	}
}

// Parse implements Parser.
func (p *HTMLParser) Parse(resp *types.Response) (*types.Page, error) {
	if err := checkBody(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL, Err: err}
	}

	page := &types.Page{
		URL:       resp.URL,
		Title:     cleanTitle(doc.Find("title").First().Text()),
		Text:      visibleText(doc.Find("body").Nodes...),
		Links:     p.extractLinks(doc, baseURL(resp)),
		FetchedAt: resp.FetchedAt,
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now()
	}

	p.logger.Debug("parsed page",
		"url", resp.URL,
		"title", page.Title,
		"links", len(page.Links),
	)

	return page, nil
}

// extractLinks finds all <a href> links in the document.
func (p *HTMLParser) extractLinks(doc *goquery.Document, base string) []string {
	resolver := newLinkResolver(base)
	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolver.add(href)
	})
	return resolver.links
}
