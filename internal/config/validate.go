package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Crawl.SeedURL != "" {
		if err := ValidateURL(cfg.Crawl.SeedURL); err != nil {
			return fmt.Errorf("crawl.seed_url: %w", err)
		}
	}
	if cfg.Crawl.Concurrency < 1 {
		return fmt.Errorf("crawl.concurrency must be >= 1, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.Concurrency > 1000 {
		return fmt.Errorf("crawl.concurrency must be <= 1000, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.MaxDuration < 0 {
		return fmt.Errorf("crawl.max_duration must be >= 0")
	}
	if cfg.Crawl.RequestTimeout <= 0 {
		return fmt.Errorf("crawl.request_timeout must be > 0")
	}
	for _, pattern := range cfg.Crawl.ExcludePaths {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("crawl.exclude_paths: invalid pattern %q", pattern)
		}
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}

	if cfg.Parser.Type != "html" && cfg.Parser.Type != "xpath" {
		return fmt.Errorf("parser.type must be 'html' or 'xpath', got %q", cfg.Parser.Type)
	}

	if cfg.Index.Backend != "inverted" && cfg.Index.Backend != "bleve" {
		return fmt.Errorf("index.backend must be 'inverted' or 'bleve', got %q", cfg.Index.Backend)
	}
	if cfg.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}

	if cfg.Search.Mode != "ranked" && cfg.Search.Mode != "boolean" {
		return fmt.Errorf("search.mode must be 'ranked' or 'boolean', got %q", cfg.Search.Mode)
	}
	if cfg.Search.TitleBoost <= 0 || cfg.Search.ContentBoost <= 0 {
		return fmt.Errorf("search boosts must be > 0")
	}
	if cfg.Search.FragmentChars < 1 {
		return fmt.Errorf("search.fragment_chars must be >= 1, got %d", cfg.Search.FragmentChars)
	}
	if cfg.Search.Surround < 0 {
		return fmt.Errorf("search.surround must be >= 0, got %d", cfg.Search.Surround)
	}
	if cfg.Search.MaxFragments < 1 {
		return fmt.Errorf("search.max_fragments must be >= 1, got %d", cfg.Search.MaxFragments)
	}
	if cfg.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be >= 0, got %d", cfg.Search.Limit)
	}

	switch cfg.Storage.Type {
	case "none", "":
	case "jsonl", "sqlite":
		if cfg.Storage.OutputPath == "" {
			return fmt.Errorf("storage.output_path is required for %s storage", cfg.Storage.Type)
		}
	case "mongodb":
		if cfg.Storage.URI == "" {
			return fmt.Errorf("storage.uri is required for mongodb storage")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported (valid: none, jsonl, mongodb, sqlite)", cfg.Storage.Type)
	}
	if cfg.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be >= 1, got %d", cfg.Storage.BatchSize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		p := cfg.Metrics.Path
		if !strings.HasPrefix(p, "/") || p == "/" || strings.HasPrefix(p, "/api/") || strings.ContainsAny(p, " {}") {
			return fmt.Errorf("metrics.path must be a plain path outside / and /api/, got %q", p)
		}
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
