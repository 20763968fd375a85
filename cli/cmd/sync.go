package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/ndarchive/cli/config"
	"github.com/justapithecus/ndarchive/fetch"
	"github.com/justapithecus/ndarchive/log"
	"github.com/justapithecus/ndarchive/manifest"
	"github.com/justapithecus/ndarchive/metrics"
	"github.com/justapithecus/ndarchive/reconstruct"
	"github.com/justapithecus/ndarchive/types"
)

// DefaultArchive is the archive path used when none is given.
const DefaultArchive = "archive.ndjson"

// SyncAction brings the archive named by the first argument up to date.
// This is the only action that writes to the archive.
func SyncAction(c *cli.Context) error {
	archivePath, trailingRepair, err := splitArchiveArgs(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), reconstruct.ExitCodeFailure)
	}

	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), reconstruct.ExitCodeFailure)
	}

	runMeta := &types.RunMeta{
		RunID:       uuid.NewString(),
		ArchivePath: archivePath,
		Repair:      c.Bool("attempt-repair") || trailingRepair,
	}
	if err := runMeta.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid archive path: %v", err), reconstruct.ExitCodeFailure)
	}

	level := zapcore.InfoLevel
	if c.Bool("quiet") {
		level = zapcore.WarnLevel
	}
	logger := log.NewLoggerWithLevel(runMeta, c.App.ErrWriter, level)
	defer logger.Sync()

	// SIGINT/SIGTERM cancel the run so scratch cleanup still runs.
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerClient, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open run ledger: %v", err), reconstruct.ExitCodeFailure)
	}

	adapters, err := buildAdapters(cfg.Notify)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid notification settings: %v", err), reconstruct.ExitCodeFailure)
	}
	defer closeAdapters(adapters)

	collector := metrics.NewCollector(archivePath, cfg.Repo, ledgerBackendName(cfg.Ledger), runMeta.RunID)
	rc := buildRunConfig(cfg, runMeta, logger, collector)
	if ledgerClient != nil {
		defer func() { _ = ledgerClient.Close() }()
		rc.Ledger = ledgerClient
	}

	orchestrator, err := reconstruct.NewOrchestrator(rc)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create orchestrator: %v", err), reconstruct.ExitCodeFailure)
	}

	result, err := orchestrator.Execute(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("execution failed: %v", err), reconstruct.ExitCodeFailure)
	}

	snap := collector.Snapshot()
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, snap); err != nil {
			logger.Warn("failed to write metrics textfile", map[string]any{"error": err.Error()})
		}
	}
	if cfg.Report != "" {
		if err := reconstruct.WriteRunReport(reconstruct.BuildRunReport(result, snap), cfg.Report); err != nil {
			logger.Warn("failed to write run report", map[string]any{"error": err.Error()})
		}
	}

	publishAll(ctx, adapters, runCompletedEvent(result, cfg.Repo, time.Now()), logger)

	if !c.Bool("quiet") {
		printRunResult(c.App.Writer, result)
	}

	code := reconstruct.ExitCode(result.Outcome.Status)
	if code == reconstruct.ExitCodeSuccess {
		return nil
	}
	return cli.Exit(failureMessage(result.Outcome), code)
}

// splitArchiveArgs separates the archive path from a repair flag given after
// it. Flag parsing stops at the first positional argument, so
// "ndarchive archive.ndjson -r" leaves -r among the arguments.
func splitArchiveArgs(args []string) (archivePath string, repair bool, err error) {
	var paths []string
	for _, arg := range args {
		switch {
		case arg == "-r" || arg == "--attempt-repair" || arg == "-attempt-repair":
			repair = true
		case strings.HasPrefix(arg, "-") && arg != "-":
			return "", false, fmt.Errorf("flag %s must come before the archive path", arg)
		default:
			paths = append(paths, arg)
		}
	}
	switch len(paths) {
	case 0:
		return DefaultArchive, repair, nil
	case 1:
		return paths[0], repair, nil
	default:
		return "", false, fmt.Errorf("expected at most one archive path, got %d arguments", len(paths))
	}
}

func buildRunConfig(cfg *config.Config, runMeta *types.RunMeta, logger *log.Logger, collector *metrics.Collector) *reconstruct.Config {
	fetcher := fetch.NewRouter(fetch.NewHTTPFetcher(), fetch.S3Config{
		Region:       cfg.S3.Region,
		Endpoint:     cfg.S3.Endpoint,
		UsePathStyle: cfg.S3.PathStyle,
	})
	resolver := manifest.NewResolver(fetcher, manifest.Options{
		URL:           cfg.ManifestURL,
		ChunkTemplate: cfg.ChunkURLTemplate,
		Repo:          cfg.Repo,
	})

	return &reconstruct.Config{
		RunMeta:  runMeta,
		Repo:     cfg.Repo,
		Resolver: resolver,
		Fetcher:  fetcher,
		Download: fetch.DownloadOptions{
			Attempts:   cfg.Download.Attempts,
			RetryDelay: cfg.Download.RetryDelay.Duration,
			Timeout:    cfg.Download.Timeout.Duration,
		},
		Workers:         cfg.Decompress.Workers,
		MaxProbe:        cfg.Locate.ProbeWindow,
		VerifySamples:   cfg.VerifySampleCount(),
		SkipBoundsCheck: !cfg.BoundsCheckEnabled(),
		Logger:          logger,
		Collector:       collector,
	}
}

func failureMessage(outcome *types.RunOutcome) string {
	if outcome.Remediation == "" {
		return outcome.Message
	}
	return outcome.Message + "\n" + outcome.Remediation
}

func printRunResult(w io.Writer, result *reconstruct.Result) {
	fmt.Fprintf(w, "run_id=%s, outcome=%s, duration=%s\n",
		result.RunMeta.RunID,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)

	switch result.Outcome.Status {
	case types.OutcomeUpToDate:
		fmt.Fprintf(w, "already up to date at record %d\n", result.EndRecord)
	case types.OutcomeSuccess:
		fmt.Fprintf(w, "records %d -> %d (latest %d), %d chunk(s), %s downloaded, %s appended\n",
			result.StartRecord,
			result.EndRecord,
			result.LatestAvailable,
			len(result.Chunks),
			humanize.IBytes(uint64(result.BytesDownloaded)),
			humanize.IBytes(uint64(result.BytesAppended)),
		)
	case types.OutcomeRepaired:
		if result.Repair != nil {
			fmt.Fprintf(w, "truncated %s, archive now ends at record %d\n",
				humanize.IBytes(uint64(result.Repair.Truncated)),
				result.Repair.LastRecord,
			)
		}
	}

	if len(result.Swept) > 0 {
		fmt.Fprintf(w, "removed %d scratch director(ies) left by earlier runs\n", len(result.Swept))
	}
}
