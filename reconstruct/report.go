package reconstruct

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/ndarchive/metrics"
	"github.com/justapithecus/ndarchive/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID       string              `json:"run_id"`
	Archive     string              `json:"archive"`
	Outcome     types.OutcomeStatus `json:"outcome"`
	Message     string              `json:"message"`
	Remediation string              `json:"remediation,omitempty"`
	ExitCode    int                 `json:"exit_code"`
	DurationMs  int64               `json:"duration_ms"`

	StartRecord     int64 `json:"start_record"`
	EndRecord       int64 `json:"end_record"`
	LatestAvailable int64 `json:"latest_available"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
	BytesAppended   int64 `json:"bytes_appended"`

	Chunks  []ChunkReport     `json:"chunks,omitempty"`
	Repair  *ReportRepair     `json:"repair,omitempty"`
	Swept   []string          `json:"swept,omitempty"`
	Metrics *metrics.Snapshot `json:"metrics"`
}

// ReportRepair holds repair details in the report.
type ReportRepair struct {
	Truncated  int64 `json:"truncated"`
	Size       int64 `json:"size"`
	LastRecord int64 `json:"last_record"`
}

// BuildRunReport composes a RunReport from a Result and metrics snapshot.
func BuildRunReport(result *Result, snap metrics.Snapshot) *RunReport {
	report := &RunReport{
		RunID:           result.RunMeta.RunID,
		Archive:         result.RunMeta.ArchivePath,
		Outcome:         result.Outcome.Status,
		Message:         result.Outcome.Message,
		Remediation:     result.Outcome.Remediation,
		ExitCode:        ExitCode(result.Outcome.Status),
		DurationMs:      result.Duration.Milliseconds(),
		StartRecord:     result.StartRecord,
		EndRecord:       result.EndRecord,
		LatestAvailable: result.LatestAvailable,
		BytesDownloaded: result.BytesDownloaded,
		BytesAppended:   result.BytesAppended,
		Chunks:          result.Chunks,
		Swept:           result.Swept,
		Metrics:         &snap,
	}
	if result.Repair != nil {
		report.Repair = &ReportRepair{
			Truncated:  result.Repair.Truncated,
			Size:       result.Repair.Size,
			LastRecord: result.Repair.LastRecord,
		}
	}
	return report
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
