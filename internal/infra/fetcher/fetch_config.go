package fetcher

import (
	"fmt"
	"time"

	"feedmesh/pkg/config"
)

// Config controls the Fetchers' HTTP/IMAP behavior: concurrency, per-host
// politeness, retry shape, and the size/redirect caps that bound a single
// fetch attempt.
type Config struct {
	MaxConcurrentFetches int
	HostMinGap           time.Duration
	MaxRedirects         int
	MaxFeedSize          int64
	UserAgent            string
	RespectRobots        bool
	RetryBase            time.Duration
	MaxRetries           int
	RequestTimeout       time.Duration
	ShutdownGrace        time.Duration

	// ContentEnhancement controls the optional readability fetch step that
	// replaces a stub/teaser RSS entry body with the article's own full text.
	ContentEnhancement ContentFetchConfig
}

// DefaultFetchConfig returns the values spec §6 lists as defaults.
func DefaultFetchConfig() Config {
	return Config{
		MaxConcurrentFetches: 10,
		HostMinGap:           1 * time.Second,
		MaxRedirects:         5,
		MaxFeedSize:          10 * 1024 * 1024,
		UserAgent:            "feedmesh/1.0 (+https://example.invalid/bot)",
		RespectRobots:        false,
		RetryBase:            1 * time.Second,
		MaxRetries:           3,
		RequestTimeout:       30 * time.Second,
		ShutdownGrace:        15 * time.Second,
		ContentEnhancement:   DefaultConfig(),
	}
}

// LoadFetchConfigFromEnv overlays environment variables onto the defaults,
// mirroring the pattern pkg/config already establishes for the rest of the
// application's configuration surface.
func LoadFetchConfigFromEnv() (Config, error) {
	cfg := DefaultFetchConfig()

	cfg.MaxConcurrentFetches = config.GetEnvInt("FETCH_MAX_CONCURRENT", cfg.MaxConcurrentFetches)
	cfg.MaxRedirects = config.GetEnvInt("FETCH_MAX_REDIRECTS", cfg.MaxRedirects)
	cfg.MaxRetries = config.GetEnvInt("FETCH_MAX_RETRIES", cfg.MaxRetries)
	cfg.UserAgent = config.GetEnvString("FETCH_USER_AGENT", cfg.UserAgent)
	cfg.RespectRobots = config.GetEnvBool("FETCH_RESPECT_ROBOTS", cfg.RespectRobots)
	cfg.HostMinGap = config.GetEnvDuration("FETCH_HOST_MIN_GAP", cfg.HostMinGap)
	cfg.RetryBase = config.GetEnvDuration("FETCH_RETRY_BASE", cfg.RetryBase)
	cfg.RequestTimeout = config.GetEnvDuration("FETCH_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ShutdownGrace = config.GetEnvDuration("FETCH_SHUTDOWN_GRACE", cfg.ShutdownGrace)

	contentCfg, err := LoadConfigFromEnv()
	if err != nil {
		return cfg, fmt.Errorf("content enhancement config: %w", err)
	}
	cfg.ContentEnhancement = contentCfg

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make the fetch loop either
// unsafe (no cap) or useless (non-positive concurrency).
func (c Config) Validate() error {
	if c.MaxConcurrentFetches < 1 {
		return fmt.Errorf("max_concurrent_fetches must be >= 1, got %d", c.MaxConcurrentFetches)
	}
	if c.HostMinGap < 0 {
		return fmt.Errorf("host_min_gap must be non-negative, got %v", c.HostMinGap)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must be non-negative, got %d", c.MaxRedirects)
	}
	if c.MaxFeedSize <= 0 {
		return fmt.Errorf("max_feed_size must be positive, got %d", c.MaxFeedSize)
	}
	if c.RetryBase <= 0 {
		return fmt.Errorf("retry_base must be positive, got %v", c.RetryBase)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	return nil
}
