// Package reconstruct drives one end-to-end archive reconstruction run:
// inspect, resolve, plan, download, decompress, trim and append.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/justapithecus/ndarchive/archive"
	"github.com/justapithecus/ndarchive/decompress"
	"github.com/justapithecus/ndarchive/fetch"
	"github.com/justapithecus/ndarchive/iox"
	"github.com/justapithecus/ndarchive/ledger"
	"github.com/justapithecus/ndarchive/locate"
	"github.com/justapithecus/ndarchive/log"
	"github.com/justapithecus/ndarchive/metrics"
	"github.com/justapithecus/ndarchive/plan"
	"github.com/justapithecus/ndarchive/scratch"
	"github.com/justapithecus/ndarchive/types"
)

// DefaultVerifySamples is the number of lines sampled to check ordering
// before searching a chunk.
const DefaultVerifySamples = 16

// ledgerTimeout bounds the best-effort ledger write at the end of a run.
const ledgerTimeout = 15 * time.Second

// ManifestResolver abstracts manifest retrieval for testing.
type ManifestResolver interface {
	Resolve(ctx context.Context) (*types.Manifest, error)
}

// Config configures a single run.
type Config struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Repo is the source repository identity, recorded in the ledger.
	Repo string
	// Resolver fetches the manifest.
	Resolver ManifestResolver
	// Fetcher retrieves chunks.
	Fetcher fetch.Fetcher
	// Download bounds chunk retrieval attempts.
	Download fetch.DownloadOptions
	// Workers bounds parallel decompression. Values < 1 mean NumCPU.
	Workers int
	// MaxProbe bounds bytes scanned per search probe. Zero uses the default.
	MaxProbe int64
	// VerifySamples is the number of lines sampled for the ordering check
	// before searching. Zero disables the check.
	VerifySamples int
	// SkipBoundsCheck disables matching each chunk's first and last records
	// against its descriptor range.
	SkipBoundsCheck bool
	// Logger receives structured run logs. If nil, a stderr logger is created.
	Logger *log.Logger
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Ledger records the run outcome. If nil, nothing is recorded.
	Ledger ledger.Recorder
}

// ChunkReport summarizes one chunk appended by the run.
type ChunkReport struct {
	Name              string `json:"name"`
	Start             int64  `json:"start"`
	End               int64  `json:"end"`
	CompressedBytes   int64  `json:"compressed_bytes"`
	UncompressedBytes int64  `json:"uncompressed_bytes"`
	Digest            string `json:"blake3"`
	Trimmed           bool   `json:"trimmed"`
}

// Result represents the result of a run.
type Result struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Outcome is the run outcome.
	Outcome *types.RunOutcome
	// Err is the failure behind a non-successful outcome.
	Err error
	// Duration is the total run duration.
	Duration time.Duration

	// StartRecord is the archive's last record before the run.
	StartRecord int64
	// EndRecord is the archive's last record after the run.
	EndRecord int64
	// LatestAvailable is the manifest's latest record, if resolved.
	LatestAvailable int64

	Chunks          []ChunkReport
	BytesDownloaded int64
	BytesAppended   int64

	// Repair is set when a corrupt tail was truncated.
	Repair *archive.RepairResult
	// Swept lists scratch directories removed from earlier killed runs.
	Swept []string
}

// Orchestrator orchestrates a single run.
type Orchestrator struct {
	config    *Config
	logger    *log.Logger
	startTime time.Time
}

// NewOrchestrator creates a new run orchestrator.
// Returns error if the configuration is unusable.
func NewOrchestrator(config *Config) (*Orchestrator, error) {
	if config.RunMeta == nil {
		return nil, fmt.Errorf("invalid run metadata: missing")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Resolver == nil {
		return nil, fmt.Errorf("manifest resolver is required")
	}
	if config.Fetcher == nil {
		return nil, fmt.Errorf("chunk fetcher is required")
	}
	if config.VerifySamples < 0 {
		return nil, fmt.Errorf("verify samples must be >= 0, got %d", config.VerifySamples)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}

	return &Orchestrator{
		config: config,
		logger: logger,
	}, nil
}

// Execute executes the run end-to-end. Failures are reported through
// Result.Outcome; the error return is reserved for misuse.
//
// Execution flow:
//  1. Inspect the archive tail (repair and stop if requested and corrupt)
//  2. Acquire the scratch directory, sweeping leftovers
//  3. Resolve the manifest and plan the chunks
//  4. Download sequentially, decompress in parallel
//  5. Locate and trim the first chunk at the resume point
//  6. Append in manifest order and verify the new tail
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	o.startTime = time.Now()
	o.config.Collector.IncRunStarted()

	o.logger.Info("starting run", map[string]any{
		"workers":  o.config.Workers,
		"attempts": o.config.Download.Attempts,
	})

	result := &Result{RunMeta: o.config.RunMeta}
	outcome, err := o.run(ctx, result)
	if err != nil {
		outcome = DetermineOutcome(err)
		result.Err = err
	}
	result.Outcome = outcome
	result.Duration = time.Since(o.startTime)

	o.record(ctx, result)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, result *Result) (*types.RunOutcome, error) {
	path := o.config.RunMeta.ArchivePath

	state, err := archive.Inspect(path)
	if err != nil {
		var corrupt *archive.CorruptTailError
		if errors.As(err, &corrupt) && o.config.RunMeta.Repair {
			return o.repair(path, result)
		}
		return nil, err
	}
	result.StartRecord = state.LastRecord
	result.EndRecord = state.LastRecord
	o.logger.Info("archive inspected", map[string]any{
		"last_record":   state.LastRecord,
		"size":          state.Size,
		"needs_newline": state.NeedsNewline,
	})

	dir, swept, err := scratch.Open(path, o.config.RunMeta.RunID)
	result.Swept = swept
	if len(swept) > 0 {
		o.logger.Warn("swept scratch directories from an interrupted run", map[string]any{
			"dirs": swept,
		})
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := dir.Close(); err != nil {
			o.logger.Warn("failed to remove scratch directory", map[string]any{
				"dir":   dir.Root(),
				"error": err.Error(),
			})
		}
	}()

	m, err := o.config.Resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	result.LatestAvailable = m.LatestAvailable
	o.logger.Info("manifest resolved", map[string]any{
		"latest_available": m.LatestAvailable,
		"chunks":           len(m.Chunks),
	})

	p, err := plan.Build(m, state, dir)
	if err != nil {
		return nil, err
	}
	o.config.Collector.SetChunksPlanned(len(p.Items))
	if p.UpToDate() {
		return &types.RunOutcome{
			Status:  types.OutcomeUpToDate,
			Message: fmt.Sprintf("already up to date at record %d", state.LastRecord),
		}, nil
	}
	o.logger.Info("chunks planned", map[string]any{
		"resume":     p.Resume,
		"chunks":     len(p.Items),
		"records":    p.Records(),
		"needs_trim": p.NeedsTrim,
	})

	downloader := fetch.NewDownloader(o.config.Fetcher, o.config.Download, o.logger, o.config.Collector)
	if err := downloader.Download(ctx, p.Items); err != nil {
		return nil, err
	}
	for _, it := range p.Items {
		result.BytesDownloaded += it.CompressedBytes
	}

	pool := decompress.NewPool(o.logger, o.config.Collector, decompress.WithWorkers(o.config.Workers))
	if err := pool.DecompressAll(ctx, p.Items); err != nil {
		return nil, err
	}

	if err := o.verify(p.Items); err != nil {
		return nil, err
	}
	if p.NeedsTrim {
		if err := o.trimFirst(&p.Items[0], p.Resume, dir); err != nil {
			return nil, err
		}
	}
	result.Chunks = reports(p)

	// Past this point the archive is mutated; cancellation is no longer honored.
	written, err := archive.Append(path, p.Items, state.NeedsNewline)
	result.BytesAppended = written
	if err != nil {
		return nil, err
	}

	after, err := archive.Inspect(path)
	if err != nil {
		return nil, &archive.AppendError{Err: fmt.Errorf("verify appended tail: %w", err)}
	}
	result.EndRecord = after.LastRecord
	want := p.Items[len(p.Items)-1].Descriptor.End
	if after.LastRecord != want {
		return nil, &archive.AppendError{Err: fmt.Errorf("archive ends at record %d after append, want %d", after.LastRecord, want)}
	}

	appended := after.LastRecord - state.LastRecord
	o.config.Collector.AddAppended(written, appended)
	return &types.RunOutcome{
		Status: types.OutcomeSuccess,
		Message: fmt.Sprintf("appended %d records (%d..%d) from %d chunk(s), %s",
			appended, p.Resume, after.LastRecord, len(p.Items), humanize.IBytes(uint64(written))),
	}, nil
}

func (o *Orchestrator) repair(path string, result *Result) (*types.RunOutcome, error) {
	rr, err := archive.Repair(path)
	if err != nil {
		return nil, err
	}
	result.Repair = &rr
	result.StartRecord = rr.LastRecord
	result.EndRecord = rr.LastRecord
	o.config.Collector.AddRepaired(rr.Truncated)
	o.logger.Warn("truncated corrupt archive tail", map[string]any{
		"truncated":   rr.Truncated,
		"size":        rr.Size,
		"last_record": rr.LastRecord,
	})
	return &types.RunOutcome{
		Status: types.OutcomeRepaired,
		Message: fmt.Sprintf("truncated %d byte(s); archive now ends at record %d; run again to resume",
			rr.Truncated, rr.LastRecord),
	}, nil
}

// verify checks every chunk's first and last records against its
// descriptor range. Skipped when SkipBoundsCheck is set.
func (o *Orchestrator) verify(items []types.WorkItem) error {
	if o.config.SkipBoundsCheck {
		return nil
	}
	for _, it := range items {
		if err := withFile(it.UncompressedPath, func(f *os.File) error {
			d := it.Descriptor
			return locate.CheckBounds(f, it.UncompressedPath, it.UncompressedBytes, d.Start, d.End, o.config.MaxProbe)
		}); err != nil {
			return err
		}
	}
	return nil
}

// trimFirst replaces item's uncompressed file with the suffix starting at
// the record numbered resume.
func (o *Orchestrator) trimFirst(item *types.WorkItem, resume int64, dir *scratch.Dir) error {
	src := item.UncompressedPath
	size := item.UncompressedBytes

	var found locate.Result
	err := withFile(src, func(f *os.File) error {
		if o.config.VerifySamples > 0 {
			if err := locate.CheckAscending(f, src, size, o.config.VerifySamples, o.config.MaxProbe); err != nil {
				return err
			}
		}
		var err error
		found, err = locate.Search(f, src, size, resume, o.config.MaxProbe)
		return err
	})
	if err != nil {
		return err
	}

	dst := dir.Path(item.Descriptor.Name + ".trimmed")
	n, err := locate.Trim(src, dst, found.Start)
	if err != nil {
		return err
	}
	if err := iox.RemoveIfExists(src); err != nil {
		o.logger.Warn("failed to remove untrimmed chunk", map[string]any{
			"chunk": item.Descriptor.Name,
			"error": err.Error(),
		})
	}

	item.UncompressedPath = dst
	item.UncompressedBytes = n
	o.config.Collector.AddTrim(found.Probes, found.Start)
	o.logger.Info("chunk trimmed", map[string]any{
		"chunk":     item.Descriptor.Name,
		"resume":    resume,
		"offset":    found.Start,
		"probes":    found.Probes,
		"kept":      n,
		"discarded": found.Start,
	})
	return nil
}

func withFile(path string, fn func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(f)
	return fn(f)
}

func reports(p *plan.Plan) []ChunkReport {
	out := make([]ChunkReport, len(p.Items))
	for i, it := range p.Items {
		out[i] = ChunkReport{
			Name:              it.Descriptor.Name,
			Start:             it.Descriptor.Start,
			End:               it.Descriptor.End,
			CompressedBytes:   it.CompressedBytes,
			UncompressedBytes: it.UncompressedBytes,
			Digest:            it.Digest,
			Trimmed:           i == 0 && p.NeedsTrim,
		}
	}
	return out
}

// record updates metrics and writes the ledger entry. Both are best effort.
func (o *Orchestrator) record(ctx context.Context, result *Result) {
	c := o.config.Collector
	switch result.Outcome.Status {
	case types.OutcomeSuccess:
		c.IncRunCompleted()
	case types.OutcomeUpToDate:
		c.IncRunUpToDate()
	case types.OutcomeRepaired:
		c.IncRunRepaired()
	default:
		c.IncRunFailed()
	}

	fields := map[string]any{
		"outcome":      result.Outcome.Status,
		"message":      result.Outcome.Message,
		"start_record": result.StartRecord,
		"end_record":   result.EndRecord,
		"duration":     result.Duration.String(),
	}
	if result.Outcome.Status.Succeeded() {
		o.logger.Info("run completed", fields)
	} else {
		o.logger.Error("run failed", fields)
	}

	if o.config.Ledger == nil {
		return
	}
	// Use WithoutCancel so an interrupted run is still recorded.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	if err := o.config.Ledger.Record(lctx, o.runRecord(result)); err != nil {
		c.IncLedgerWriteFailure()
		o.logger.Warn("ledger write failed (best effort)", map[string]any{
			"error": err.Error(),
		})
		return
	}
	c.IncLedgerWriteSuccess()
}

func (o *Orchestrator) runRecord(result *Result) ledger.RunRecord {
	snap := o.config.Collector.Snapshot()
	rec := ledger.RunRecord{
		RunID:           result.RunMeta.RunID,
		Archive:         result.RunMeta.ArchivePath,
		Repo:            o.config.Repo,
		Version:         types.Version,
		Status:          string(result.Outcome.Status),
		Message:         result.Outcome.Message,
		Remediation:     result.Outcome.Remediation,
		StartedAt:       o.startTime.UTC(),
		DurationMS:      result.Duration.Milliseconds(),
		StartRecord:     result.StartRecord,
		EndRecord:       result.EndRecord,
		LatestAvailable: result.LatestAvailable,
		ChunksPlanned:   snap.ChunksPlanned,
		ChunksTrimmed:   snap.ChunksTrimmed,
		BytesDownloaded: result.BytesDownloaded,
		BytesAppended:   result.BytesAppended,
		RecordsAppended: result.EndRecord - result.StartRecord,
	}
	if result.Repair != nil {
		rec.BytesRepaired = result.Repair.Truncated
	}
	return rec
}
