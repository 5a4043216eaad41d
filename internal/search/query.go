package search

import (
	"fmt"
	"strings"

	"github.com/IshaanNene/sitesearch/internal/analysis"
	"github.com/IshaanNene/sitesearch/internal/index"
	"github.com/IshaanNene/sitesearch/internal/types"
)

// Mode selects how query terms are combined.
type Mode string

const (
	// ModeRanked returns documents matching any term, best score first.
	ModeRanked Mode = "ranked"
	// ModeBoolean returns documents matching every term, by URL.
	ModeBoolean Mode = "boolean"
)

// ParseMode parses a mode name. The empty string means ranked.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeRanked), "or":
		return ModeRanked, nil
	case string(ModeBoolean), "and":
		return ModeBoolean, nil
	}
	return "", fmt.Errorf("unknown search mode %q (valid: ranked, boolean)", s)
}

// QueryError reports a query that cannot be parsed.
type QueryError struct {
	Query  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}

// Query is a parsed query: a de-duplicated list of field-restricted terms.
type Query struct {
	Raw   string
	Terms []index.FieldTerm
}

// Empty reports whether the query has no terms.
func (q *Query) Empty() bool { return len(q.Terms) == 0 }

// HighlightTerms returns the terms that may match document content.
func (q *Query) HighlightTerms() map[string]bool {
	out := make(map[string]bool)
	for _, ft := range q.Terms {
		for _, f := range ft.Fields {
			if f == types.FieldContent {
				out[ft.Term] = true
			}
		}
	}
	return out
}

// CanonicalFields lower-cases, trims and de-duplicates field names,
// rejecting unknown ones. An empty list selects every field.
func CanonicalFields(fields []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f))
		if name == "" || seen[name] {
			continue
		}
		if !isField(name) {
			return nil, fmt.Errorf("unknown field %q (valid: %s)", f, strings.Join(types.Fields, ", "))
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		out = append(out, types.Fields...)
	}
	return out, nil
}

func isField(name string) bool {
	for _, f := range types.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// ParseQuery splits raw into whitespace-separated clauses. A clause of the
// form field:value with a known field restricts its terms to that field;
// any other clause, including ones like "http://host" or "note:x", is
// plain text over defaultFields. Each clause is tokenized like page text,
// so "Web-Dev" yields the terms web and dev.
func ParseQuery(raw string, defaultFields []string) (*Query, error) {
	defaults, err := CanonicalFields(defaultFields)
	if err != nil {
		return nil, &QueryError{Query: raw, Reason: err.Error()}
	}
	if strings.Count(raw, `"`)%2 != 0 {
		return nil, &QueryError{Query: raw, Reason: "unbalanced quote"}
	}

	q := &Query{Raw: raw}
	seen := make(map[string]bool)

	for _, clause := range strings.Fields(raw) {
		fields := defaults
		value := clause

		if name, rest, ok := strings.Cut(clause, ":"); ok {
			if name = strings.ToLower(strings.Trim(name, `"`)); isField(name) {
				if len(analysis.Tokenize(rest)) == 0 {
					return nil, &QueryError{Query: raw, Reason: fmt.Sprintf("missing value for field %q", name)}
				}
				fields = []string{name}
				value = rest
			}
		}

		for _, term := range analysis.Tokenize(value) {
			key := term + "\x00" + strings.Join(fields, ",")
			if seen[key] {
				continue
			}
			seen[key] = true
			q.Terms = append(q.Terms, index.FieldTerm{Term: term, Fields: fields})
		}
	}
	return q, nil
}
