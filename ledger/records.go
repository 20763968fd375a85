package ledger

import (
	"path/filepath"
	"strings"
	"time"
)

// RecordKindRun discriminates run records from anything else sharing the dataset.
const RecordKindRun = "run"

// RunRecord is the stored summary of one reconstruction run.
type RunRecord struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Archive string `json:"archive" yaml:"archive"` // path as given on the command line
	Repo    string `json:"repo,omitempty" yaml:"repo,omitempty"`
	Version string `json:"version" yaml:"version"`

	Status      string `json:"status" yaml:"status"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
	Remediation string `json:"remediation,omitempty" yaml:"remediation,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`

	// Archive position before and after the run.
	StartRecord     int64 `json:"start_record" yaml:"start_record"`
	EndRecord       int64 `json:"end_record" yaml:"end_record"`
	LatestAvailable int64 `json:"latest_available" yaml:"latest_available"`

	ChunksPlanned   int64 `json:"chunks_planned" yaml:"chunks_planned"`
	ChunksTrimmed   int64 `json:"chunks_trimmed" yaml:"chunks_trimmed"`
	BytesDownloaded int64 `json:"bytes_downloaded" yaml:"bytes_downloaded"`
	BytesAppended   int64 `json:"bytes_appended" yaml:"bytes_appended"`
	RecordsAppended int64 `json:"records_appended" yaml:"records_appended"`
	BytesRepaired   int64 `json:"bytes_repaired" yaml:"bytes_repaired"`
}

// partitionName reduces an archive path to a value safe for a Hive
// partition segment.
func partitionName(archive string) string {
	base := filepath.Base(archive)
	return strings.NewReplacer("/", "_", "=", "_").Replace(base)
}

// toRecordMap converts a RunRecord to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toRecordMap(r RunRecord) map[string]any {
	m := map[string]any{
		"record_kind":      RecordKindRun,
		"run_id":           r.RunID,
		"archive":          r.Archive,
		"archive_name":     partitionName(r.Archive), // partition key
		"version":          r.Version,
		"status":           r.Status,
		"started_at":       r.StartedAt.UTC().Format(time.RFC3339Nano),
		"day":              r.StartedAt.UTC().Format("2006-01-02"), // partition key
		"duration_ms":      r.DurationMS,
		"start_record":     r.StartRecord,
		"end_record":       r.EndRecord,
		"latest_available": r.LatestAvailable,
		"chunks_planned":   r.ChunksPlanned,
		"chunks_trimmed":   r.ChunksTrimmed,
		"bytes_downloaded": r.BytesDownloaded,
		"bytes_appended":   r.BytesAppended,
		"records_appended": r.RecordsAppended,
		"bytes_repaired":   r.BytesRepaired,
	}
	if r.Repo != "" {
		m["repo"] = r.Repo
	}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if r.Remediation != "" {
		m["remediation"] = r.Remediation
	}
	return m
}

// fromRecordMap reverses toRecordMap. Numbers decoded from JSONL arrive as
// float64; both float64 and int64 are accepted.
func fromRecordMap(m map[string]any) (RunRecord, bool) {
	if toString(m["record_kind"]) != RecordKindRun {
		return RunRecord{}, false
	}
	r := RunRecord{
		RunID:           toString(m["run_id"]),
		Archive:         toString(m["archive"]),
		Repo:            toString(m["repo"]),
		Version:         toString(m["version"]),
		Status:          toString(m["status"]),
		Message:         toString(m["message"]),
		Remediation:     toString(m["remediation"]),
		DurationMS:      toInt64(m["duration_ms"]),
		StartRecord:     toInt64(m["start_record"]),
		EndRecord:       toInt64(m["end_record"]),
		LatestAvailable: toInt64(m["latest_available"]),
		ChunksPlanned:   toInt64(m["chunks_planned"]),
		ChunksTrimmed:   toInt64(m["chunks_trimmed"]),
		BytesDownloaded: toInt64(m["bytes_downloaded"]),
		BytesAppended:   toInt64(m["bytes_appended"]),
		RecordsAppended: toInt64(m["records_appended"]),
		BytesRepaired:   toInt64(m["bytes_repaired"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, toString(m["started_at"])); err == nil {
		r.StartedAt = ts
	}
	return r, true
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
