package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ndarchive"

type gaugeDef struct {
	name  string
	help  string
	value func(Snapshot) int64
}

var gaugeDefs = []gaugeDef{
	{"runs_started_total", "Runs started.", func(s Snapshot) int64 { return s.RunsStarted }},
	{"runs_completed_total", "Runs that appended data.", func(s Snapshot) int64 { return s.RunsCompleted }},
	{"runs_failed_total", "Runs that ended with a fatal error.", func(s Snapshot) int64 { return s.RunsFailed }},
	{"runs_up_to_date_total", "Runs with nothing to fetch.", func(s Snapshot) int64 { return s.RunsUpToDate }},
	{"runs_repaired_total", "Runs that truncated a corrupt tail.", func(s Snapshot) int64 { return s.RunsRepaired }},
	{"chunks_planned", "Chunks selected for the run.", func(s Snapshot) int64 { return s.ChunksPlanned }},
	{"chunks_downloaded_total", "Chunks downloaded.", func(s Snapshot) int64 { return s.ChunksDownloaded }},
	{"download_attempts_total", "Chunk retrieval attempts.", func(s Snapshot) int64 { return s.DownloadAttempts }},
	{"download_retries_total", "Chunk retrieval retries.", func(s Snapshot) int64 { return s.DownloadRetries }},
	{"downloaded_bytes_total", "Compressed bytes downloaded.", func(s Snapshot) int64 { return s.BytesDownloaded }},
	{"chunks_decompressed_total", "Chunks decompressed.", func(s Snapshot) int64 { return s.ChunksDecompressed }},
	{"decompress_failures_total", "Chunk decompression failures.", func(s Snapshot) int64 { return s.DecompressFailures }},
	{"decompressed_bytes_total", "Uncompressed bytes produced.", func(s Snapshot) int64 { return s.BytesDecompressed }},
	{"chunks_trimmed_total", "Chunks trimmed at the resume point.", func(s Snapshot) int64 { return s.ChunksTrimmed }},
	{"search_probes_total", "Binary search probes.", func(s Snapshot) int64 { return s.SearchProbes }},
	{"trimmed_bytes_total", "Leading bytes discarded by trimming.", func(s Snapshot) int64 { return s.BytesTrimmed }},
	{"appended_bytes_total", "Bytes appended to the archive.", func(s Snapshot) int64 { return s.BytesAppended }},
	{"appended_records_total", "Records appended to the archive.", func(s Snapshot) int64 { return s.RecordsAppended }},
	{"repaired_bytes_total", "Bytes truncated by repair.", func(s Snapshot) int64 { return s.BytesRepaired }},
	{"ledger_write_success_total", "Successful ledger writes.", func(s Snapshot) int64 { return s.LedgerWriteSuccess }},
	{"ledger_write_failure_total", "Failed ledger writes.", func(s Snapshot) int64 { return s.LedgerWriteFailure }},
}

// Registry builds a Prometheus registry holding one gauge per snapshot
// counter. Dimensions become constant labels.
func Registry(s Snapshot) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{
		"archive":        s.Archive,
		"repo":           s.Repo,
		"ledger_backend": s.LedgerBackend,
	}
	for _, def := range gaugeDefs {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        def.name,
			Help:        def.help,
			ConstLabels: labels,
		})
		g.Set(float64(def.value(s)))
		if err := reg.Register(g); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// WriteTextfile writes s in the Prometheus text exposition format to path,
// for pickup by the node_exporter textfile collector. The write is atomic.
func WriteTextfile(path string, s Snapshot) error {
	reg, err := Registry(s)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
