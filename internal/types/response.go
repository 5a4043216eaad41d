package types

import (
	"mime"
	"net/http"
	"strings"
	"time"
)

// Response represents the result of fetching a URL.
type Response struct {
	// URL is the URL that was requested.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers are the response HTTP headers.
	Headers http.Header

	// Body is the raw (decompressed) response body bytes.
	Body []byte

	// ContentType is the MIME type of the response.
	ContentType string

	// FinalURL is the URL after any redirects. Relative links resolve against it.
	FinalURL string

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration

	// FetchedAt is when this response was received.
	FetchedAt time.Time
}

// NewResponse creates a Response from an http.Response.
func NewResponse(rawURL string, httpResp *http.Response, body []byte, duration time.Duration) *Response {
	return &Response{
		URL:           rawURL,
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		ContentType:   httpResp.Header.Get("Content-Type"),
		FinalURL:      httpResp.Request.URL.String(),
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// IsSuccess returns true if the response status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsHTML reports whether the declared content type is text/html.
func (r *Response) IsHTML() bool {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.Contains(strings.ToLower(r.ContentType), "text/html")
	}
	return mediaType == "text/html"
}
