package archive

import (
	"errors"
	"fmt"
	"os"
)

// RepairResult describes a tail repair.
type RepairResult struct {
	// Truncated is the number of bytes removed; 0 when the tail was valid.
	Truncated int64
	// Size is the archive size after repair.
	Size int64
	// LastRecord is the final record number after repair. It stays 0 when
	// the line before the truncated one is itself unreadable.
	LastRecord int64
}

// Repair truncates an incomplete final line. Every preceding byte is left
// untouched. A valid tail is reported with Truncated == 0 and no change.
func Repair(path string) (RepairResult, error) {
	state, err := Inspect(path)
	if err == nil {
		return RepairResult{Size: state.Size, LastRecord: state.LastRecord}, nil
	}

	var corrupt *CorruptTailError
	if !errors.As(err, &corrupt) {
		return RepairResult{}, err
	}

	newSize := corrupt.Size - corrupt.TailBytes
	if err := os.Truncate(path, newSize); err != nil {
		return RepairResult{}, fmt.Errorf("truncate archive to %d bytes: %w", newSize, err)
	}
	res := RepairResult{Truncated: corrupt.TailBytes, Size: newSize}
	if after, err := Inspect(path); err == nil {
		res.LastRecord = after.LastRecord
	}
	return res, nil
}
