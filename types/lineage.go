// Package types defines core domain types for ndarchive reconstruction runs.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"path/filepath"
)

// RunMeta contains run identity for a single reconstruction run.
type RunMeta struct {
	// RunID is the run identifier. Must be unique per invocation.
	RunID string
	// ArchivePath is the local archive being reconstructed.
	ArchivePath string
	// Repair enables tail truncation of a corrupt final record.
	Repair bool
}

// Validate checks that the run identity is usable.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if r.ArchivePath == "" {
		return errors.New("archive path must be non-empty")
	}
	if filepath.Base(r.ArchivePath) == "." || filepath.Base(r.ArchivePath) == string(filepath.Separator) {
		return errors.New("archive path must name a file")
	}
	return nil
}
