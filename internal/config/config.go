package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for SiteSearch.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"   yaml:"crawl"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Parser  ParserConfig  `mapstructure:"parser"  yaml:"parser"`
	Index   IndexConfig   `mapstructure:"index"   yaml:"index"`
	Search  SearchConfig  `mapstructure:"search"  yaml:"search"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
}

// CrawlConfig controls the crawl loop. Zero caps mean unbounded.
type CrawlConfig struct {
	SeedURL        string        `mapstructure:"seed_url"        yaml:"seed_url"`
	Concurrency    int           `mapstructure:"concurrency"     yaml:"concurrency"`
	MaxPages       int           `mapstructure:"max_pages"       yaml:"max_pages"`
	MaxDuration    time.Duration `mapstructure:"max_duration"    yaml:"max_duration"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ExcludePaths   []string      `mapstructure:"exclude_paths"   yaml:"exclude_paths"`
}

// FetcherConfig controls the HTTP fetcher.
type FetcherConfig struct {
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       yaml:"retry_delay"`
}

// ParserConfig selects the HTML extractor.
type ParserConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // html, xpath
}

// IndexConfig controls where and how the index is persisted.
type IndexConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // inverted, bleve
	Path    string `mapstructure:"path"    yaml:"path"`
}

// SearchConfig controls query evaluation and snippet rendering.
type SearchConfig struct {
	Mode           string  `mapstructure:"mode"            yaml:"mode"` // ranked, boolean
	TitleBoost     float64 `mapstructure:"title_boost"     yaml:"title_boost"`
	ContentBoost   float64 `mapstructure:"content_boost"   yaml:"content_boost"`
	FragmentChars  int     `mapstructure:"fragment_chars"  yaml:"fragment_chars"`
	Surround       int     `mapstructure:"surround"        yaml:"surround"`
	MaxFragments   int     `mapstructure:"max_fragments"   yaml:"max_fragments"`
	HighlightOpen  string  `mapstructure:"highlight_open"  yaml:"highlight_open"`
	HighlightClose string  `mapstructure:"highlight_close" yaml:"highlight_close"`
	Limit          int     `mapstructure:"limit"           yaml:"limit"`
}

// StorageConfig controls export of crawled pages.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"` // none, jsonl, mongodb, sqlite
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
	URI        string `mapstructure:"uri"         yaml:"uri"`
	Database   string `mapstructure:"database"    yaml:"database"`
	Collection string `mapstructure:"collection"  yaml:"collection"`
	BatchSize  int    `mapstructure:"batch_size"  yaml:"batch_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus-format metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// APIConfig controls the search front-end server.
type APIConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			Concurrency:    1,
			RequestTimeout: 30 * time.Second,
		},
		Fetcher: FetcherConfig{
			UserAgent:       "SiteSearch/1.0 (+https://github.com/IshaanNene/sitesearch)",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			RetryDelay:      2 * time.Second,
		},
		Parser: ParserConfig{
			Type: "html",
		},
		Index: IndexConfig{
			Backend: "inverted",
			Path:    "./indexdir",
		},
		Search: SearchConfig{
			Mode:           "ranked",
			TitleBoost:     2.0,
			ContentBoost:   1.0,
			FragmentChars:  200,
			Surround:       100,
			MaxFragments:   3,
			HighlightOpen:  `<b class="highlight">`,
			HighlightClose: `</b>`,
		},
		Storage: StorageConfig{
			Type:       "none",
			OutputPath: "./output/pages.jsonl",
			Database:   "sitesearch",
			Collection: "pages",
			BatchSize:  100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		API: APIConfig{
			Port: 5000,
		},
	}
}
