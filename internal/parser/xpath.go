package parser

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/sitesearch/internal/types"
)

const (
	xpathTitle = "//head/title | //title"
	xpathBody  = "//body"
	xpathLinks = "//a[@href]"
)

// XPathParser extracts pages using XPath expressions over x/net/html.
type XPathParser struct {
	logger *slog.Logger
}

// NewXPathParser creates a new XPath parser.
func NewXPathParser(logger *slog.Logger) *XPathParser {
	return &XPathParser{
		logger: logger.With("component", "xpath_parser"),
	}
}

// Parse implements Parser.
func (p *XPathParser) Parse(resp *types.Response) (*types.Page, error) {
	if err := checkBody(resp); err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL, Err: err}
	}

	page := &types.Page{
		URL:       resp.URL,
		FetchedAt: resp.FetchedAt,
	}
	if page.FetchedAt.IsZero() {
		page.FetchedAt = time.Now()
	}

	if node := htmlquery.FindOne(doc, xpathTitle); node != nil {
		page.Title = cleanTitle(htmlquery.InnerText(node))
	}
	page.Text = visibleText(htmlquery.Find(doc, xpathBody)...)

	resolver := newLinkResolver(baseURL(resp))
	for _, a := range htmlquery.Find(doc, xpathLinks) {
		resolver.add(htmlquery.SelectAttr(a, "href"))
	}
	page.Links = resolver.links

	p.logger.Debug("parsed page",
		"url", resp.URL,
		"title", page.Title,
		"links", len(page.Links),
	)

	return page, nil
}
