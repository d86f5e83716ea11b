package config

import (
	"fmt"
	"time"
)

// File represents the structure of the .dataroma configuration file.
// Every field is optional; zero values leave the current setting alone.
type File struct {
	// Crawl holds network and cadence overrides.
	Crawl CrawlSettings `yaml:"crawl,omitempty"`

	// Cache holds cache location and freshness overrides.
	Cache CacheSettings `yaml:"cache,omitempty"`

	// Managers maps manager codes to display names.
	Managers map[string]string `yaml:"managers,omitempty"`
}

// CrawlSettings are the crawl-related keys of the configuration file.
// Durations use Go duration syntax ("1s", "500ms").
type CrawlSettings struct {
	BaseURL          string `yaml:"baseURL,omitempty"`
	RateLimit        string `yaml:"rateLimit,omitempty"`
	Timeout          string `yaml:"timeout,omitempty"`
	MaxRetries       *int   `yaml:"maxRetries,omitempty"`
	BackoffFactor    string `yaml:"backoffFactor,omitempty"`
	MaxActivityPages int    `yaml:"maxActivityPages,omitempty"`
	CheckpointEvery  int    `yaml:"checkpointEvery,omitempty"`
	ProgressEvery    int    `yaml:"progressEvery,omitempty"`
	UserAgent        string `yaml:"userAgent,omitempty"`
}

// CacheSettings are the cache-related keys of the configuration file.
type CacheSettings struct {
	Dir          string `yaml:"dir,omitempty"`
	DBDir        string `yaml:"dbDir,omitempty"`
	HTMLTTL      string `yaml:"htmlTTL,omitempty"`
	MaxAge       string `yaml:"maxAge,omitempty"`
	UseHTMLCache *bool  `yaml:"useHTMLCache,omitempty"`
}

// Apply copies every non-zero setting of the file onto cfg.
// It returns an error if a duration field cannot be parsed.
func (f *File) Apply(cfg *Config) error {
	if f == nil {
		return nil
	}

	if f.Crawl.BaseURL != "" {
		cfg.BaseURL = f.Crawl.BaseURL
	}
	if f.Crawl.UserAgent != "" {
		cfg.UserAgent = f.Crawl.UserAgent
	}
	if f.Crawl.MaxRetries != nil {
		cfg.MaxRetries = *f.Crawl.MaxRetries
	}
	if f.Crawl.MaxActivityPages != 0 {
		cfg.MaxActivityPages = f.Crawl.MaxActivityPages
	}
	if f.Crawl.CheckpointEvery != 0 {
		cfg.CheckpointEvery = f.Crawl.CheckpointEvery
	}
	if f.Crawl.ProgressEvery != 0 {
		cfg.ProgressEvery = f.Crawl.ProgressEvery
	}
	if f.Cache.Dir != "" {
		cfg.CacheDir = f.Cache.Dir
	}
	if f.Cache.DBDir != "" {
		cfg.DBDir = f.Cache.DBDir
	}
	if f.Cache.UseHTMLCache != nil {
		cfg.UseHTMLCache = *f.Cache.UseHTMLCache
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"crawl.rateLimit", f.Crawl.RateLimit, &cfg.RateLimit},
		{"crawl.timeout", f.Crawl.Timeout, &cfg.Timeout},
		{"crawl.backoffFactor", f.Crawl.BackoffFactor, &cfg.BackoffFactor},
		{"cache.htmlTTL", f.Cache.HTMLTTL, &cfg.HTMLCacheTTL},
		{"cache.maxAge", f.Cache.MaxAge, &cfg.MaxCacheAge},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if len(f.Managers) > 0 {
		cfg.ManagerNames = cfg.ManagerNames.Merge(f.Managers)
	}
	return nil
}
