// Package analysis turns raw page text into index terms.
//
// A term is a maximal run of Unicode letters, combining marks, numbers and
// underscores, lower-cased and NFC-normalized. There is no stop-word removal
// and no stemming, so every word on a page stays searchable.
package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/IshaanNene/sitesearch/internal/types"
)

// Token is a term together with its byte span in the source text.
type Token struct {
	Term  string
	Start int
	End   int
}

// Tokenize splits text into normalized terms, in order, with repeats.
func Tokenize(text string) []string {
	toks := Tokens(text)
	if len(toks) == 0 {
		return nil
	}
	terms := make([]string, len(toks))
	for i, tok := range toks {
		terms[i] = tok.Term
	}
	return terms
}

// Tokens is Tokenize with source offsets, used to locate matches for
// highlighting. Offsets index into text as given, not the normalized form.
func Tokens(text string) []Token {
	var tokens []Token
	start := -1

	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, newToken(text, start, i))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text, start, len(text)))
	}
	return tokens
}

// Normalize applies the term normalization to a single word.
func Normalize(word string) string {
	return norm.NFC.String(strings.ToLower(word))
}

// Frequencies counts every term of a page per field.
func Frequencies(title, text string) map[string]types.TermFreq {
	freqs := make(map[string]types.TermFreq)
	for _, term := range Tokenize(title) {
		tf := freqs[term]
		tf.Title++
		freqs[term] = tf
	}
	for _, term := range Tokenize(text) {
		tf := freqs[term]
		tf.Content++
		freqs[term] = tf
	}
	return freqs
}

// NewDocument builds an index document from a parsed page.
func NewDocument(page *types.Page) *types.Document {
	return &types.Document{
		URL:   page.URL,
		Title: page.Title,
		Text:  page.Text,
		Terms: Frequencies(page.Title, page.Text),
	}
}

func newToken(text string, start, end int) Token {
	return Token{Term: Normalize(text[start:end]), Start: start, End: end}
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || r == '_'
}
