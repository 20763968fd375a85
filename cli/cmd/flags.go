// Package cmd provides CLI commands for the ndarchive binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only history supports it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (history only)",
	}

	// ConfigFlag points at an ndarchive.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML config file",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// LedgerFlags returns the flags that locate the run ledger.
func LedgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "ledger-backend",
			Usage: "Run ledger backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "ledger-path",
			Usage: "Run ledger location (fs: directory, s3: bucket/prefix); empty disables the ledger",
		},
		&cli.StringFlag{
			Name:  "ledger-region",
			Usage: "AWS region for the S3 ledger backend (optional, uses default chain)",
		},
	}
}

// SyncFlags returns the flags of the default reconstruct action.
func SyncFlags() []cli.Flag {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.BoolFlag{
			Name:    "attempt-repair",
			Aliases: []string{"r"},
			Usage:   "Truncate a corrupt final line instead of failing",
		},
		&cli.StringFlag{
			Name:  "repo",
			Usage: "Source repository (owner/name) substituted for {repo}; overrides NDARCHIVE_REPO",
		},
		&cli.StringFlag{
			Name:  "manifest-url",
			Usage: "Manifest location (http(s), s3 or file); may contain {repo}",
		},
		&cli.StringFlag{
			Name:  "chunk-url",
			Usage: "Chunk URL template for monthly and daily chunks; may contain {repo} and {name}",
		},
		&cli.IntFlag{
			Name:  "attempts",
			Usage: "Download attempts per chunk",
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Fixed delay between download attempts",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-attempt download timeout (0 = none)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Parallel decompression workers (0 = one per CPU)",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write run metrics to this Prometheus textfile",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON run report to this path (- for stderr)",
		},
		&cli.StringFlag{
			Name:  "notify-webhook",
			Usage: "POST a JSON run completion event to this URL",
		},
		&cli.StringFlag{
			Name:  "notify-redis",
			Usage: "PUBLISH a JSON run completion event via this Redis URL",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Only log warnings and errors; suppress the run summary",
		},
	}
	return append(flags, LedgerFlags()...)
}
