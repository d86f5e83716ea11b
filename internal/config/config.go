package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These mirror the politeness and retry settings the upstream site tolerates
// for a long, single-threaded crawl.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "dataroma"

	// DefaultBaseURL is the root that every roster, holdings and activity
	// URL is built from.
	DefaultBaseURL = "https://www.dataroma.com/m/"

	// DefaultRateLimit is the minimum spacing between two outbound requests.
	// The source starts answering 429 when requests arrive faster than
	// roughly one per second.
	DefaultRateLimit = 1 * time.Second

	// DefaultTimeout bounds a single HTTP attempt, not the whole retry loop.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultBackoffFactor seeds the exponential backoff.
	// Retry n waits factor * 2^(n-1).
	DefaultBackoffFactor = 500 * time.Millisecond

	// DefaultHTMLCacheTTL is how long a raw page stays fresh on disk.
	DefaultHTMLCacheTTL = 24 * time.Hour

	// DefaultMaxCacheAge is how old the structured cache may be before a
	// crawl refuses to short-circuit and goes back to the network.
	DefaultMaxCacheAge = 24 * time.Hour

	// DefaultMaxActivityPages caps activity pagination per manager.
	DefaultMaxActivityPages = 20

	// DefaultCheckpointEvery is the number of managers between checkpoints.
	DefaultCheckpointEvery = 10

	// DefaultProgressEvery is the number of managers between progress logs.
	DefaultProgressEvery = 5

	// DefaultUserAgent is a current desktop Chrome user agent.
	// The source rejects generic client signatures.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Config holds all configuration options for a crawl.
// It is populated from the configuration file and CLI flags, then passed
// to components explicitly. Nothing in the module reads it from a global.
type Config struct {
	// BaseURL is the source root, ending in a slash.
	BaseURL string

	// CacheDir is the root of both the raw HTML cache (html/) and the
	// structured JSON cache (json/).
	CacheDir string

	// DBDir holds the SQLite crawl journal. Empty disables the journal.
	DBDir string

	// RateLimit is the minimum spacing between requests.
	RateLimit time.Duration

	// Timeout bounds one HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BackoffFactor seeds the exponential retry delay.
	BackoffFactor time.Duration

	// HTMLCacheTTL is the raw page freshness window.
	HTMLCacheTTL time.Duration

	// UseHTMLCache enables reading raw pages from disk.
	// Fetched pages are always written regardless of this flag.
	UseHTMLCache bool

	// MaxCacheAge is the structured cache freshness window.
	MaxCacheAge time.Duration

	// ForceRefresh ignores a fresh structured cache.
	ForceRefresh bool

	// MaxActivityPages caps activity pagination per manager.
	MaxActivityPages int

	// CheckpointEvery is the number of managers between checkpoints.
	CheckpointEvery int

	// ProgressEvery is the number of managers between progress log lines.
	ProgressEvery int

	// UserAgent overrides the browser user agent.
	UserAgent string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit configuration file path, if any.
	ConfigFilePath string

	// ManagerNames maps manager codes to display names. It fills in names
	// the roster page leaves blank and normalizes names for reports.
	ManagerNames ManagerNames
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		CacheDir:         XDGCacheDir(),
		DBDir:            XDGDataDir(),
		RateLimit:        DefaultRateLimit,
		Timeout:          DefaultTimeout,
		MaxRetries:       DefaultMaxRetries,
		BackoffFactor:    DefaultBackoffFactor,
		HTMLCacheTTL:     DefaultHTMLCacheTTL,
		UseHTMLCache:     true,
		MaxCacheAge:      DefaultMaxCacheAge,
		MaxActivityPages: DefaultMaxActivityPages,
		CheckpointEvery:  DefaultCheckpointEvery,
		ProgressEvery:    DefaultProgressEvery,
		UserAgent:        DefaultUserAgent,
		ManagerNames:     ManagerNames{},
	}
}

// HTMLDir returns the raw page cache root.
func (c *Config) HTMLDir() string {
	return filepath.Join(c.CacheDir, "html")
}

// JSONDir returns the structured cache root.
func (c *Config) JSONDir() string {
	return filepath.Join(c.CacheDir, "json")
}

// XDGDataDir returns the XDG data directory for dataroma.
// On Linux: ~/.local/share/dataroma
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for dataroma.
// On Linux: ~/.config/dataroma
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for dataroma.
// On Linux: ~/.cache/dataroma
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if c.CacheDir == "" {
		return ErrNoCacheDir
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.BackoffFactor < 0 {
		return ErrInvalidBackoffFactor
	}
	if c.HTMLCacheTTL < 0 {
		return ErrInvalidHTMLCacheTTL
	}
	if c.MaxActivityPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.CheckpointEvery <= 0 {
		return ErrInvalidCheckpointEvery
	}
	if c.ProgressEvery <= 0 {
		return ErrInvalidProgressEvery
	}
	return nil
}
