package config

import (
	"fmt"
	"time"

	"github.com/justapithecus/ndarchive/fetch"
	"github.com/justapithecus/ndarchive/locate"
	"github.com/justapithecus/ndarchive/manifest"
	"github.com/justapithecus/ndarchive/reconstruct"
)

// RepoEnv names the environment variable that overrides the source
// repository from the defaults and the config file. --repo overrides it.
const RepoEnv = "NDARCHIVE_REPO"

// Config represents an ndarchive.yaml configuration file.
// All values are optional. CLI flags always override config values.
type Config struct {
	Repo             string           `yaml:"repo"`
	ManifestURL      string           `yaml:"manifest_url"`
	ChunkURLTemplate string           `yaml:"chunk_url_template"`
	Download         DownloadConfig   `yaml:"download"`
	Decompress       DecompressConfig `yaml:"decompress"`
	Locate           LocateConfig     `yaml:"locate"`
	S3               S3Config         `yaml:"s3"`
	Ledger           LedgerConfig     `yaml:"ledger"`
	Metrics          MetricsConfig    `yaml:"metrics"`
	Notify           NotifyConfig     `yaml:"notify"`
	Report           string           `yaml:"report"`
}

// DownloadConfig bounds chunk retrieval.
type DownloadConfig struct {
	Attempts   int      `yaml:"attempts"`
	RetryDelay Duration `yaml:"retry_delay"`
	Timeout    Duration `yaml:"timeout"`
}

// DecompressConfig sizes the decompression pool. Zero means one worker per CPU.
type DecompressConfig struct {
	Workers int `yaml:"workers"`
}

// LocateConfig tunes the offset search.
type LocateConfig struct {
	ProbeWindow   int64 `yaml:"probe_window"`
	VerifySamples *int  `yaml:"verify_samples,omitempty"`
	// CheckBounds matches each chunk's first and last records against the
	// manifest range. Unset means enabled.
	CheckBounds *bool `yaml:"check_bounds,omitempty"`
}

// S3Config configures the s3:// chunk and manifest fetcher.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// LedgerConfig selects where run records are written.
// An empty Path disables the ledger.
type LedgerConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// NotifyConfig selects where run completion events are published.
// Each adapter is enabled by a non-empty URL.
type NotifyConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
	Redis   RedisConfig   `yaml:"redis"`
}

// WebhookConfig configures the HTTP POST notification adapter.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// RedisConfig configures the Redis pub/sub notification adapter.
type RedisConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	samples := reconstruct.DefaultVerifySamples
	return &Config{
		Repo: manifest.DefaultRepo,
		Download: DownloadConfig{
			Attempts:   fetch.DefaultAttempts,
			RetryDelay: Duration{fetch.DefaultRetryDelay},
		},
		Locate: LocateConfig{
			ProbeWindow:   locate.DefaultMaxProbe,
			VerifySamples: &samples,
		},
		Ledger: LedgerConfig{Backend: "fs"},
	}
}

// VerifySampleCount returns the configured sample count, or the default
// when the config leaves it unset.
func (c *Config) VerifySampleCount() int {
	if c.Locate.VerifySamples == nil {
		return reconstruct.DefaultVerifySamples
	}
	return *c.Locate.VerifySamples
}

// BoundsCheckEnabled reports whether chunk range verification runs.
func (c *Config) BoundsCheckEnabled() bool {
	return c.Locate.CheckBounds == nil || *c.Locate.CheckBounds
}

// ApplyEnv fills the repository from NDARCHIVE_REPO when set, overriding the
// file value. Flags are applied after this.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(RepoEnv); ok && v != "" {
		c.Repo = v
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.Download.Attempts < 1 {
		return fmt.Errorf("download.attempts must be >= 1, got %d", c.Download.Attempts)
	}
	if c.Decompress.Workers < 0 {
		return fmt.Errorf("decompress.workers must be >= 0, got %d", c.Decompress.Workers)
	}
	if c.Locate.ProbeWindow < 0 {
		return fmt.Errorf("locate.probe_window must be >= 0, got %d", c.Locate.ProbeWindow)
	}
	if c.Locate.VerifySamples != nil && *c.Locate.VerifySamples < 0 {
		return fmt.Errorf("locate.verify_samples must be >= 0, got %d", *c.Locate.VerifySamples)
	}
	if r := c.Notify.Webhook.Retries; r != nil && *r < 0 {
		return fmt.Errorf("notify.webhook.retries must be >= 0, got %d", *r)
	}
	if r := c.Notify.Redis.Retries; r != nil && *r < 0 {
		return fmt.Errorf("notify.redis.retries must be >= 0, got %d", *r)
	}
	switch c.Ledger.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("unknown ledger.backend: %s (must be fs or s3)", c.Ledger.Backend)
	}
	return nil
}
