// Package metrics provides per-run metrics collection for reconstruction runs.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies; every increment method is nil-receiver safe so
// components may be constructed without a collector in tests.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsUpToDate  int64
	RunsRepaired  int64

	// Planning
	ChunksPlanned int64
	ChunksTrimmed int64

	// Download
	ChunksDownloaded int64
	DownloadAttempts int64
	DownloadRetries  int64
	BytesDownloaded  int64

	// Decompression
	ChunksDecompressed int64
	DecompressFailures int64
	BytesDecompressed  int64

	// Locate / trim
	SearchProbes int64
	BytesTrimmed int64 // leading bytes discarded from the first chunk

	// Append
	BytesAppended   int64
	RecordsAppended int64

	// Repair
	BytesRepaired int64

	// Ledger
	LedgerWriteSuccess int64
	LedgerWriteFailure int64

	// Dimensions (informational, set at construction)
	Archive       string
	Repo          string
	LedgerBackend string
	RunID         string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
// repo and runID may be empty.
func NewCollector(archive, repo, ledgerBackend, runID string) *Collector {
	return &Collector{s: Snapshot{
		Archive:       archive,
		Repo:          repo,
		LedgerBackend: ledgerBackend,
		RunID:         runID,
	}}
}

func (c *Collector) update(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() { c.update(func(s *Snapshot) { s.RunsStarted++ }) }

// IncRunCompleted records a run that appended data.
func (c *Collector) IncRunCompleted() { c.update(func(s *Snapshot) { s.RunsCompleted++ }) }

// IncRunFailed records a fatal run failure.
func (c *Collector) IncRunFailed() { c.update(func(s *Snapshot) { s.RunsFailed++ }) }

// IncRunUpToDate records a run that found nothing to do.
func (c *Collector) IncRunUpToDate() { c.update(func(s *Snapshot) { s.RunsUpToDate++ }) }

// IncRunRepaired records a run that truncated a corrupt tail.
func (c *Collector) IncRunRepaired() { c.update(func(s *Snapshot) { s.RunsRepaired++ }) }

// --- Planning ---

// SetChunksPlanned records the number of chunks selected by the planner.
func (c *Collector) SetChunksPlanned(n int) {
	c.update(func(s *Snapshot) { s.ChunksPlanned = int64(n) })
}

// --- Download ---

// IncDownloadAttempt records a single retrieval attempt. Attempts beyond
// the first for a chunk are also counted as retries.
func (c *Collector) IncDownloadAttempt(retry bool) {
	c.update(func(s *Snapshot) {
		s.DownloadAttempts++
		if retry {
			s.DownloadRetries++
		}
	})
}

// AddChunkDownloaded records a completed download of n bytes.
func (c *Collector) AddChunkDownloaded(n int64) {
	c.update(func(s *Snapshot) {
		s.ChunksDownloaded++
		s.BytesDownloaded += n
	})
}

// --- Decompression ---

// AddChunkDecompressed records a completed decompression producing n bytes.
func (c *Collector) AddChunkDecompressed(n int64) {
	c.update(func(s *Snapshot) {
		s.ChunksDecompressed++
		s.BytesDecompressed += n
	})
}

// IncDecompressFailure records a decompression failure.
func (c *Collector) IncDecompressFailure() {
	c.update(func(s *Snapshot) { s.DecompressFailures++ })
}

// --- Locate / trim ---

// AddTrim records a trimmed chunk after a search of probes steps that
// discarded n leading bytes.
func (c *Collector) AddTrim(probes int, n int64) {
	c.update(func(s *Snapshot) {
		s.ChunksTrimmed++
		s.SearchProbes += int64(probes)
		s.BytesTrimmed += n
	})
}

// --- Append / repair ---

// AddAppended records bytes and records added to the archive.
func (c *Collector) AddAppended(bytes, records int64) {
	c.update(func(s *Snapshot) {
		s.BytesAppended += bytes
		s.RecordsAppended += records
	})
}

// AddRepaired records bytes truncated by a repair.
func (c *Collector) AddRepaired(n int64) {
	c.update(func(s *Snapshot) { s.BytesRepaired += n })
}

// --- Ledger ---
// Ledger counters are per-call. One run record written counts as one success.

// IncLedgerWriteSuccess records a successful ledger write.
func (c *Collector) IncLedgerWriteSuccess() {
	c.update(func(s *Snapshot) { s.LedgerWriteSuccess++ })
}

// IncLedgerWriteFailure records a failed ledger write.
func (c *Collector) IncLedgerWriteFailure() {
	c.update(func(s *Snapshot) { s.LedgerWriteFailure++ })
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
