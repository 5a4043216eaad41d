package types

import "time"

// Field names shared by the index backends and the query parser.
const (
	FieldTitle   = "title"
	FieldContent = "content"
)

// Fields lists every searchable field in a stable order.
var Fields = []string{FieldTitle, FieldContent}

// Page is what the parser recovers from one HTML response.
type Page struct {
	URL       string    `json:"url"        bson:"url"`
	Title     string    `json:"title"      bson:"title"`
	Text      string    `json:"text"       bson:"text"`
	Links     []string  `json:"links"      bson:"links"`
	FetchedAt time.Time `json:"fetched_at" bson:"fetched_at"`
}

// TermFreq counts occurrences of one term in each indexed field.
type TermFreq struct {
	Title   int `json:"t,omitempty"`
	Content int `json:"c,omitempty"`
}

// Total is the posting frequency across all fields.
func (tf TermFreq) Total() int {
	return tf.Title + tf.Content
}

// Field returns the count for a single named field.
func (tf TermFreq) Field(name string) int {
	switch name {
	case FieldTitle:
		return tf.Title
	case FieldContent:
		return tf.Content
	}
	return 0
}

// Document is the unit of indexing, keyed by its canonical URL.
type Document struct {
	URL   string              `json:"url"`
	Title string              `json:"title"`
	Text  string              `json:"text"`
	Terms map[string]TermFreq `json:"-"`
}
