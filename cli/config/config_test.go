package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/ndarchive/fetch"
	"github.com/justapithecus/ndarchive/locate"
	"github.com/justapithecus/ndarchive/manifest"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `repo: owner/archive
manifest_url: https://mirror.example.com/manifest.json
chunk_url_template: https://mirror.example.com/{name}.ndjson.zst

download:
  attempts: 5
  retry_delay: 10s
  timeout: 30m

decompress:
  workers: 4

locate:
  probe_window: 1048576
  verify_samples: 8

s3:
  region: eu-west-1
  endpoint: http://localhost:9000
  path_style: true

ledger:
  backend: s3
  path: my-bucket/runs
  region: us-east-1
  endpoint: https://s3.example.com
  s3_path_style: true

metrics:
  textfile: /var/lib/node_exporter/ndarchive.prom

notify:
  webhook:
    url: https://hooks.example.com/ndarchive
    headers:
      Authorization: Bearer token123
    timeout: 10s
    retries: 0
  redis:
    url: redis://localhost:6379/0
    channel: mirrors:updated

report: run.json
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "repo", cfg.Repo, "owner/archive")
	assertEqual(t, "manifest_url", cfg.ManifestURL, "https://mirror.example.com/manifest.json")
	assertEqual(t, "chunk_url_template", cfg.ChunkURLTemplate, "https://mirror.example.com/{name}.ndjson.zst")

	if cfg.Download.Attempts != 5 {
		t.Errorf("expected download.attempts=5, got %d", cfg.Download.Attempts)
	}
	if cfg.Download.RetryDelay.Duration != 10*time.Second {
		t.Errorf("expected retry_delay=10s, got %v", cfg.Download.RetryDelay.Duration)
	}
	if cfg.Download.Timeout.Duration != 30*time.Minute {
		t.Errorf("expected timeout=30m, got %v", cfg.Download.Timeout.Duration)
	}
	if cfg.Decompress.Workers != 4 {
		t.Errorf("expected workers=4, got %d", cfg.Decompress.Workers)
	}
	if cfg.Locate.ProbeWindow != 1<<20 {
		t.Errorf("expected probe_window=1MiB, got %d", cfg.Locate.ProbeWindow)
	}
	if cfg.VerifySampleCount() != 8 {
		t.Errorf("expected verify_samples=8, got %d", cfg.VerifySampleCount())
	}

	assertEqual(t, "s3.region", cfg.S3.Region, "eu-west-1")
	assertEqual(t, "s3.endpoint", cfg.S3.Endpoint, "http://localhost:9000")
	if !cfg.S3.PathStyle {
		t.Error("expected s3.path_style=true")
	}

	assertEqual(t, "ledger.backend", cfg.Ledger.Backend, "s3")
	assertEqual(t, "ledger.path", cfg.Ledger.Path, "my-bucket/runs")
	assertEqual(t, "ledger.region", cfg.Ledger.Region, "us-east-1")
	assertEqual(t, "ledger.endpoint", cfg.Ledger.Endpoint, "https://s3.example.com")
	if !cfg.Ledger.S3PathStyle {
		t.Error("expected ledger.s3_path_style=true")
	}

	assertEqual(t, "metrics.textfile", cfg.Metrics.Textfile, "/var/lib/node_exporter/ndarchive.prom")
	assertEqual(t, "report", cfg.Report, "run.json")

	assertEqual(t, "notify.webhook.url", cfg.Notify.Webhook.URL, "https://hooks.example.com/ndarchive")
	assertEqual(t, "notify.webhook.headers", cfg.Notify.Webhook.Headers["Authorization"], "Bearer token123")
	if cfg.Notify.Webhook.Timeout.Duration != 10*time.Second {
		t.Errorf("expected webhook timeout=10s, got %v", cfg.Notify.Webhook.Timeout.Duration)
	}
	// retries: 0 should parse as *int(0), not nil.
	if cfg.Notify.Webhook.Retries == nil || *cfg.Notify.Webhook.Retries != 0 {
		t.Errorf("expected webhook retries=0, got %v", cfg.Notify.Webhook.Retries)
	}
	assertEqual(t, "notify.redis.url", cfg.Notify.Redis.URL, "redis://localhost:6379/0")
	assertEqual(t, "notify.redis.channel", cfg.Notify.Redis.Channel, "mirrors:updated")
	if cfg.Notify.Redis.Retries != nil {
		t.Errorf("omitted redis retries should be nil, got %d", *cfg.Notify.Redis.Retries)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_EmptyConfigKeepsDefaults(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "repo", cfg.Repo, manifest.DefaultRepo)
	if cfg.Download.Attempts != fetch.DefaultAttempts {
		t.Errorf("expected default attempts %d, got %d", fetch.DefaultAttempts, cfg.Download.Attempts)
	}
	if cfg.Download.RetryDelay.Duration != fetch.DefaultRetryDelay {
		t.Errorf("expected default retry delay, got %v", cfg.Download.RetryDelay.Duration)
	}
	if cfg.Locate.ProbeWindow != locate.DefaultMaxProbe {
		t.Errorf("expected default probe window, got %d", cfg.Locate.ProbeWindow)
	}
	assertEqual(t, "ledger.backend", cfg.Ledger.Backend, "fs")
}

func TestLoad_PartialSectionKeepsSiblingDefaults(t *testing.T) {
	path := writeTemp(t, "download:\n  timeout: 1m\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Download.Timeout.Duration != time.Minute {
		t.Errorf("expected timeout=1m, got %v", cfg.Download.Timeout.Duration)
	}
	if cfg.Download.Attempts != fetch.DefaultAttempts {
		t.Errorf("expected default attempts, got %d", cfg.Download.Attempts)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/ndarchive.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should say not found, got: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_REPO", "someone/dump")

	path := writeTemp(t, "repo: ${TEST_REPO}\nledger:\n  path: ${UNSET_LEDGER_12345:-./runs}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "repo", cfg.Repo, "someone/dump")
	assertEqual(t, "ledger.path", cfg.Ledger.Path, "./runs")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `repo: owner/archive
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `ledger:
  backend: fs
  path: ./data
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n   \n# Another comment\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
	assertEqual(t, "repo", cfg.Repo, manifest.DefaultRepo)
}

func TestLoad_VerifySamplesZeroDistinctFromUnset(t *testing.T) {
	path := writeTemp(t, "locate:\n  verify_samples: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.VerifySampleCount() != 0 {
		t.Errorf("expected verify_samples=0, got %d", cfg.VerifySampleCount())
	}

	unset := &Config{}
	if unset.VerifySampleCount() == 0 {
		t.Error("unset verify_samples should fall back to the default")
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	path := writeTemp(t, "download:\n  retry_delay: not-a-duration\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestDuration_NegativeRejected(t *testing.T) {
	path := writeTemp(t, "download:\n  timeout: -5s\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestDuration_EmptyKeepsDefault(t *testing.T) {
	path := writeTemp(t, "download:\n  retry_delay: \"\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Download.RetryDelay.Duration != fetch.DefaultRetryDelay {
		t.Errorf("expected default retry delay, got %v", cfg.Download.RetryDelay.Duration)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{RepoEnv: "env/repo"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Defaults()
	cfg.Repo = "file/repo"
	cfg.ApplyEnv(lookup)
	assertEqual(t, "repo", cfg.Repo, "env/repo")

	env[RepoEnv] = ""
	cfg.Repo = "file/repo"
	cfg.ApplyEnv(lookup)
	assertEqual(t, "repo", cfg.Repo, "file/repo")
}

func TestValidate(t *testing.T) {
	negative := -1
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero attempts", func(c *Config) { c.Download.Attempts = 0 }, "download.attempts"},
		{"negative workers", func(c *Config) { c.Decompress.Workers = -2 }, "decompress.workers"},
		{"negative probe window", func(c *Config) { c.Locate.ProbeWindow = -1 }, "locate.probe_window"},
		{"negative samples", func(c *Config) { c.Locate.VerifySamples = &negative }, "locate.verify_samples"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "gcs" }, "ledger.backend"},
		{"negative webhook retries", func(c *Config) { c.Notify.Webhook.Retries = &negative }, "notify.webhook.retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ndarchive.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

func TestBoundsCheckEnabled(t *testing.T) {
	if !Defaults().BoundsCheckEnabled() {
		t.Error("bounds check should be on by default")
	}

	cfg, err := Load(writeTemp(t, "locate:\n  check_bounds: false\n  verify_samples: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BoundsCheckEnabled() {
		t.Error("check_bounds: false should disable the bounds check")
	}

	cfg, err = Load(writeTemp(t, "locate:\n  verify_samples: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.BoundsCheckEnabled() {
		t.Error("verify_samples: 0 must not disable the bounds check")
	}
}
