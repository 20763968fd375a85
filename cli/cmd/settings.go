package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ndarchive/cli/config"
	"github.com/justapithecus/ndarchive/ledger"
)

// loadSettings merges defaults, the config file, NDARCHIVE_REPO and flags,
// in increasing precedence.
func loadSettings(c *cli.Context) (*config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.LookupEnv)
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("repo") {
		cfg.Repo = c.String("repo")
	}
	if c.IsSet("manifest-url") {
		cfg.ManifestURL = c.String("manifest-url")
	}
	if c.IsSet("chunk-url") {
		cfg.ChunkURLTemplate = c.String("chunk-url")
	}
	if c.IsSet("attempts") {
		cfg.Download.Attempts = c.Int("attempts")
	}
	if c.IsSet("retry-delay") {
		cfg.Download.RetryDelay.Duration = c.Duration("retry-delay")
	}
	if c.IsSet("timeout") {
		cfg.Download.Timeout.Duration = c.Duration("timeout")
	}
	if c.IsSet("workers") {
		cfg.Decompress.Workers = c.Int("workers")
	}
	if c.IsSet("metrics-file") {
		cfg.Metrics.Textfile = c.String("metrics-file")
	}
	if c.IsSet("report") {
		cfg.Report = c.String("report")
	}
	if c.IsSet("notify-webhook") {
		cfg.Notify.Webhook.URL = c.String("notify-webhook")
	}
	if c.IsSet("notify-redis") {
		cfg.Notify.Redis.URL = c.String("notify-redis")
	}
	applyLedgerFlags(c, &cfg.Ledger)
}

func applyLedgerFlags(c *cli.Context, l *config.LedgerConfig) {
	if c.IsSet("ledger-backend") {
		l.Backend = c.String("ledger-backend")
	}
	if c.IsSet("ledger-path") {
		l.Path = c.String("ledger-path")
	}
	if c.IsSet("ledger-region") {
		l.Region = c.String("ledger-region")
	}
}

// openLedger opens the configured run ledger. It returns a nil client when
// no ledger path is configured.
func openLedger(ctx context.Context, l config.LedgerConfig) (*ledger.Client, error) {
	if l.Path == "" {
		return nil, nil
	}
	switch l.Backend {
	case "fs", "":
		return ledger.NewFSClient(l.Path)
	case "s3":
		bucket, prefix := ledger.ParseS3Path(l.Path)
		return ledger.NewS3Client(ctx, ledger.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       l.Region,
			Endpoint:     l.Endpoint,
			UsePathStyle: l.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s (must be fs or s3)", l.Backend)
	}
}

// ledgerBackendName is the backend label recorded in metrics.
func ledgerBackendName(l config.LedgerConfig) string {
	switch {
	case l.Path == "":
		return "none"
	case l.Backend == "":
		return "fs"
	default:
		return l.Backend
	}
}
