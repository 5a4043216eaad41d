package search

import (
	"html"
	"sort"
	"strings"

	"github.com/IshaanNene/sitesearch/internal/analysis"
	"github.com/IshaanNene/sitesearch/internal/config"
)

// Highlighter cuts context fragments around matched terms and wraps each
// match in the configured markers. Surrounding text is HTML-escaped.
type Highlighter struct {
	FragmentChars int
	Surround      int
	MaxFragments  int
	Open          string
	Close         string
	Separator     string
}

// NewHighlighter builds a Highlighter from search settings.
func NewHighlighter(cfg config.SearchConfig) *Highlighter {
	h := &Highlighter{
		FragmentChars: cfg.FragmentChars,
		Surround:      cfg.Surround,
		MaxFragments:  cfg.MaxFragments,
		Open:          cfg.HighlightOpen,
		Close:         cfg.HighlightClose,
		Separator:     "...",
	}
	if h.FragmentChars < 1 {
		h.FragmentChars = 200
	}
	if h.MaxFragments < 1 {
		h.MaxFragments = 1
	}
	return h
}

type fragment struct {
	start, end int
	matches    []analysis.Token
	score      int
}

// Snippet returns the best fragments of text for terms. When no term
// occurs in text the leading words are returned without markers.
func (h *Highlighter) Snippet(text string, terms map[string]bool) string {
	tokens := analysis.Tokens(text)
	if len(tokens) == 0 {
		return ""
	}

	var matches []analysis.Token
	for _, tok := range tokens {
		if terms[tok.Term] {
			matches = append(matches, tok)
		}
	}
	if len(matches) == 0 {
		return h.leading(text, tokens)
	}

	frags := h.fragments(tokens, matches)

	// Keep the best MaxFragments, then restore document order.
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].score > frags[j].score })
	if len(frags) > h.MaxFragments {
		frags = frags[:h.MaxFragments]
	}
	sort.Slice(frags, func(i, j int) bool { return frags[i].start < frags[j].start })

	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = h.render(text, f)
	}
	return strings.Join(parts, h.Separator)
}

// fragments groups matches into windows of at most FragmentChars bytes,
// each starting Surround bytes before its first match and snapped to
// whole tokens.
func (h *Highlighter) fragments(tokens, matches []analysis.Token) []fragment {
	var frags []fragment
	for i := 0; i < len(matches); {
		m := matches[i]
		lo := m.Start - h.Surround
		if lo < 0 {
			lo = 0
		}
		hi := m.End + h.Surround
		if hi-lo > h.FragmentChars {
			hi = lo + h.FragmentChars
			if hi < m.End {
				hi = m.End
				lo = hi - h.FragmentChars
				if lo > m.Start {
					lo = m.Start
				}
			}
		}

		j := i
		for j < len(matches) && matches[j].End <= hi {
			j++
		}

		f := fragment{matches: matches[i:j]}
		f.start, f.end = snap(tokens, lo, hi, m)
		distinct := make(map[string]bool)
		for _, mm := range f.matches {
			distinct[mm.Term] = true
		}
		f.score = len(distinct)*100 + len(f.matches)
		frags = append(frags, f)
		i = j
	}
	return frags
}

// snap shrinks [lo, hi) to the tokens it fully contains, never dropping
// the anchoring match.
func snap(tokens []analysis.Token, lo, hi int, anchor analysis.Token) (int, int) {
	start, end := anchor.Start, anchor.End
	for _, tok := range tokens {
		if tok.Start >= lo && tok.Start < start {
			start = tok.Start
			break
		}
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		if tok.End <= hi && tok.End > end {
			end = tok.End
			break
		}
	}
	return start, end
}

func (h *Highlighter) render(text string, f fragment) string {
	var b strings.Builder
	pos := f.start
	for _, m := range f.matches {
		if m.Start < pos || m.End > f.end {
			continue
		}
		b.WriteString(html.EscapeString(text[pos:m.Start]))
		b.WriteString(h.Open)
		b.WriteString(html.EscapeString(text[m.Start:m.End]))
		b.WriteString(h.Close)
		pos = m.End
	}
	b.WriteString(html.EscapeString(text[pos:f.end]))
	return b.String()
}

func (h *Highlighter) leading(text string, tokens []analysis.Token) string {
	end := tokens[0].End
	for _, tok := range tokens {
		if tok.End-tokens[0].Start > h.FragmentChars {
			break
		}
		end = tok.End
	}
	return html.EscapeString(text[tokens[0].Start:end])
}
